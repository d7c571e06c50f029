package ingest

import (
	"fmt"
	"time"

	"github.com/velagate/velagate-core/internal/credential"
)

// Kind classifies what an inbound payload reports.
type Kind string

const (
	KindCredential Kind = "credential"
	KindDoorOpen   Kind = "door_open"
	KindDoorClose  Kind = "door_close"
)

// RawEvent is the canonical parse result of one inbound payload,
// before identity resolution and decision.
type RawEvent struct {
	Kind      Kind
	Timestamp time.Time

	// Device identity as reported on the wire; MAC preferred over IP
	// when both are present.
	DeviceIP  string
	DeviceMAC string

	CredentialValue string
	CredentialType  credential.Type

	Confidence        int
	VehicleAttributes map[string]string
	ListMembership    string

	// Snapshot holds inbound image bytes from multipart payloads.
	Snapshot     []byte
	SnapshotName string
}

// DeviceIdentifier returns the identity key used against the device
// registry.
func (r *RawEvent) DeviceIdentifier() string {
	if r.DeviceMAC != "" {
		return r.DeviceMAC
	}
	return r.DeviceIP
}

// ParseError wraps a payload that could not be parsed. It isolates the
// failure to the one delivery: callers log it and move on.
type ParseError struct {
	Reason  string
	Payload []byte
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest: parse failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ingest: parse failed: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
