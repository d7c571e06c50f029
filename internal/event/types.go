package event

import (
	"time"

	"github.com/velagate/velagate-core/internal/device"
)

// Decision is the outcome of the access policy for one presentation.
type Decision string

// Access decisions.
const (
	DecisionGrant Decision = "GRANT"
	DecisionDeny  Decision = "DENY"
)

// AccessType classifies what kind of occurrence an event records.
type AccessType string

// Access types. Credential presentations carry a decision; door state
// changes are pseudo-events correlated to a preceding presentation.
const (
	AccessPlate       AccessType = "PLATE"
	AccessFace        AccessType = "FACE"
	AccessTag         AccessType = "TAG"
	AccessPIN         AccessType = "PIN"
	AccessFingerprint AccessType = "FINGERPRINT"
	AccessDoorOpen    AccessType = "DOOR_OPEN"
	AccessDoorClose   AccessType = "DOOR_CLOSE"
)

// IsDoorState reports whether the access type is a door pseudo-event
// rather than a credential presentation.
func (a AccessType) IsDoorState() bool {
	return a == AccessDoorOpen || a == AccessDoorClose
}

// AccessEvent is the canonical, append-only record of one hardware
// occurrence. Once written, Timestamp, DeviceID and Decision are
// immutable; correlation attributes are computed on read and never
// stored.
type AccessEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`

	AccessType AccessType       `json:"access_type"`
	Decision   Decision         `json:"decision"`
	Direction  device.Direction `json:"direction,omitempty"`

	// PlateDetected preserves the raw camera output, sentinel values
	// ("NO_LEIDA", "unknown") included, for audit.
	PlateDetected string `json:"plate_detected,omitempty"`

	// Details is a brand-specific key:value blob preserved verbatim.
	Details map[string]string `json:"details,omitempty"`

	// SnapshotPath is an opaque reference to the stored image, if any.
	SnapshotPath string `json:"snapshot_path,omitempty"`

	// UserID is the resolved identity. Nil for DENY/anonymous events.
	UserID *string `json:"user_id,omitempty"`

	// CredentialID is the matched credential. Nil when unresolved.
	CredentialID *string `json:"credential_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Query filters a read of the canonical event log. Zero values mean
// "no constraint".
type Query struct {
	DeviceID  string
	Plate     string // normalized plate value
	UserID    string
	Since     time.Time
	Until     time.Time
	Decision  Decision
	Limit     int
}
