package mqtt

import "fmt"

// maxPayloadSize bounds a single message. An access event with a full
// detail map is a few kilobytes; anything near this limit indicates a
// bug upstream, not a legitimate payload.
const maxPayloadSize = 256 << 10

// publish sends one message and waits for the broker ack within the
// publish timeout. Oversized payloads are rejected, never truncated.
func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
