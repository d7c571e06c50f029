package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/velagate/velagate-core/internal/event"
)

// WriteAccessEvent records one persisted access event as a telemetry
// point. Satisfies the ingest pipeline's Telemetry interface.
//
// The write is non-blocking; points are batched and sent
// asynchronously. A disconnected client drops the point silently:
// telemetry is best effort and never gates ingestion.
//
// Tags (low cardinality): device_id, brand, decision, direction,
// access_type. Fields: count, confidence when reported, dwell_seconds
// when the passage paired with a prior opposite passage.
func (c *Client) WriteAccessEvent(e *event.AccessEvent, brand string, dwellSeconds float64) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":   e.DeviceID,
		"brand":       brand,
		"decision":    string(e.Decision),
		"access_type": string(e.AccessType),
	}
	if e.Direction != "" {
		tags["direction"] = string(e.Direction)
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if v, ok := e.Details["confidence"]; ok {
		if confidence, err := strconv.Atoi(v); err == nil {
			fields["confidence"] = confidence
		}
	}
	if dwellSeconds > 0 {
		fields["dwell_seconds"] = dwellSeconds
	}

	c.writeAPI.WritePoint(write.NewPoint("access_events", tags, fields, e.Timestamp))
}

// WriteDeviceStatus records a device liveness probe result.
func (c *Client) WriteDeviceStatus(deviceID string, brand string, online bool) {
	if !c.IsConnected() {
		return
	}

	online01 := 0
	if online {
		online01 = 1
	}
	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
			"brand":     brand,
		},
		map[string]interface{}{
			"online": online01,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}
