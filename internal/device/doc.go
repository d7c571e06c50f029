// Package device defines access-control endpoints and their registry.
//
// A Device is an LPR camera, facial-recognition terminal, or door
// controller with a management API the platform drives through brand
// drivers. The Registry wraps persistence with an in-memory cache and
// owns all liveness state: the status poller reports successful pulls,
// the ingestion pipeline reports inbound pushes, and every other
// component reads point-in-time snapshots.
package device
