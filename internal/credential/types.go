package credential

import "time"

// Type classifies a presentable token.
type Type string

// Credential types supported by the platform.
const (
	TypePlate       Type = "PLATE"
	TypeFace        Type = "FACE"
	TypeTag         Type = "TAG"
	TypePIN         Type = "PIN"
	TypeFingerprint Type = "FINGERPRINT"
)

// ValidTypes lists all recognised credential types.
var ValidTypes = []Type{TypePlate, TypeFace, TypeTag, TypePIN, TypeFingerprint}

// IsValid reports whether t is a recognised credential type.
func (t Type) IsValid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Credential identifies a presentable token bound to an identity.
//
// A credential is immutable once it has been matched against a
// historical event; revocation is a soft delete (RevokedAt set) so the
// next sync cycle removes it from device memory without breaking event
// history references.
type Credential struct {
	ID    string `json:"id"`
	Type  Type   `json:"type"`
	Value string `json:"value"`

	// NormalizedValue is the comparison key used for device diffing and
	// identity resolution. See Normalize.
	NormalizedValue string `json:"normalized_value"`

	// UserID references the owning identity. Nil for unassigned tokens.
	UserID *string `json:"user_id,omitempty"`

	Note string `json:"note,omitempty"`

	// Denylisted credentials resolve but are always denied.
	Denylisted bool `json:"denylisted"`

	// RevokedAt marks a soft delete. Revoked credentials are excluded
	// from the authoritative sync set and from identity resolution.
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the credential participates in sync and
// identity resolution.
func (c *Credential) Active() bool {
	return c.RevokedAt == nil
}
