package mqtt

import "fmt"

// Topic prefixes. All topics live under the velagate/ root:
//
//	velagate/events/{device_id}   persisted access events, one per message
//	velagate/device/{id}/status   device online/offline state
//	velagate/system/status        core online/offline (retained, LWT)
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "velagate"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "velagate/system"
)

// Topics provides builders for the MQTT topic hierarchy. Using these
// helpers keeps topic naming consistent across publishers and external
// subscribers.
type Topics struct{}

// Events returns the per-device access event topic.
//
// Example: velagate/events/cam-entrance-01
func (Topics) Events(deviceID string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefix, deviceID)
}

// AllEvents returns the wildcard subscription covering every device's
// event topic.
func (Topics) AllEvents() string {
	return TopicPrefix + "/events/+"
}

// DeviceStatus returns the device liveness topic.
//
// Example: velagate/device/cam-entrance-01/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, deviceID)
}

// SystemStatus returns the core online/offline topic. Retained; also
// the LWT target.
//
// Example: velagate/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
