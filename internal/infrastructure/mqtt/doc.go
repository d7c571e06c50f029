// Package mqtt provides the MQTT client used to republish access
// events onto the site message bus.
//
// External consumers (building management, notification services,
// dashboards) subscribe to velagate/events/+ rather than polling the
// HTTP API. The client wraps paho.mqtt.golang with connection
// management, Last Will and Testament for offline detection, and
// automatic reconnection with exponential backoff.
//
// Delivery is at-most-once from the platform's point of view: events
// are republished after persistence and never replayed.
package mqtt
