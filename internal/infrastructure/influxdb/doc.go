// Package influxdb provides the telemetry sink for access events and
// device liveness.
//
// Every persisted event becomes one point in the access_events
// measurement; status poller probes land in device_status. Writes are
// batched and asynchronous through the InfluxDB v2 non-blocking write
// API, and the sink is strictly best effort: a down InfluxDB never
// delays an inbound webhook or a device acknowledgment.
package influxdb
