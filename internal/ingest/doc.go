// Package ingest turns inbound device webhook payloads into stored
// access events.
//
// Cameras and terminals push XML EventNotificationAlert bodies or
// multipart/url-encoded forms. Each delivery is parsed into a single
// canonical shape, matched to a registered device by IP or MAC,
// de-duplicated inside a short window, resolved against the active
// credential set and decided, then persisted exactly once. Everything
// that happens after the persist (live broadcast, bus republish,
// liveness, telemetry) runs in the background so the device gets its
// acknowledgment promptly.
//
// One bad payload never takes the pipeline down: parse failures are
// isolated, logged with the raw body, and dropped.
package ingest
