// Package credential defines presentable access tokens (plates, face
// template references, RFID tags, PINs, fingerprints) and their
// persistence.
//
// The package owns value normalization: every comparison between a
// stored credential and a device-reported or camera-detected value goes
// through Normalize so "ab-123 cd" and "AB123CD" are the same plate.
//
// Credentials are written by admin tooling and consumed read-only by
// the sync engine and the ingestion pipeline. Revocation is a soft
// delete that propagates to device memory on the next sync cycle.
package credential
