package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/velagate/velagate-core/internal/event"
)

// PublishEvent republishes a persisted access event to its device
// topic as JSON. Satisfies the ingest pipeline's Publisher interface.
func (c *Client) PublishEvent(e *event.AccessEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return c.publish(Topics{}.Events(e.DeviceID), payload, byte(c.cfg.QoS), false)
}

// deviceStatusPayload is the JSON body published on device status
// topics.
type deviceStatusPayload struct {
	DeviceID  string `json:"device_id"`
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
}

// PublishDeviceStatus publishes a device's liveness as a retained
// message so late subscribers see the current state.
func (c *Client) PublishDeviceStatus(deviceID string, online bool) error {
	payload, err := json.Marshal(deviceStatusPayload{
		DeviceID:  deviceID,
		Online:    online,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding device status: %w", err)
	}
	if err := c.publish(Topics{}.DeviceStatus(deviceID), payload, byte(c.cfg.QoS), true); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("publishing device status failed", "device_id", deviceID, "error", err)
		}
		return err
	}
	return nil
}
