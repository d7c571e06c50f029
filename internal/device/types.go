package device

import "time"

// Brand identifies the wire protocol family a device speaks.
type Brand string

// Supported device brands.
const (
	BrandHikvision Brand = "hikvision"
	BrandDahua     Brand = "dahua"
)

// ValidBrands lists all recognised brands.
var ValidBrands = []Brand{BrandHikvision, BrandDahua}

// IsValid reports whether b is a recognised brand.
func (b Brand) IsValid() bool {
	for _, v := range ValidBrands {
		if b == v {
			return true
		}
	}
	return false
}

// Type classifies the physical endpoint.
type Type string

// Device types.
const (
	TypeLPRCamera      Type = "LPR_CAMERA"
	TypeFaceTerminal   Type = "FACE_TERMINAL"
	TypeDoorController Type = "DOOR_CONTROLLER"
)

// ValidTypes lists all recognised device types.
var ValidTypes = []Type{TypeLPRCamera, TypeFaceTerminal, TypeDoorController}

// IsValid reports whether t is a recognised device type.
func (t Type) IsValid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Direction is the traffic direction a device guards, when applicable.
type Direction string

// Traffic directions.
const (
	DirectionEntry Direction = "ENTRY"
	DirectionExit  Direction = "EXIT"
)

// Opposite returns the paired direction, or empty for unknown values.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionEntry:
		return DirectionExit
	case DirectionExit:
		return DirectionEntry
	}
	return ""
}

// AuthMode selects the HTTP authentication scheme for a device's
// management API.
type AuthMode string

// Management API authentication modes.
const (
	AuthDigest AuthMode = "digest"
	AuthBasic  AuthMode = "basic"
)

// Device represents a physical access-control endpoint: an LPR camera,
// a facial-recognition terminal, or a door/relay controller.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Classification
	Brand Brand `json:"brand"`
	Type  Type  `json:"type"`

	// Network address of the device's management API.
	Host string `json:"host"`
	Port int    `json:"port"`

	// MAC is the hardware address some brands report instead of an IP
	// in their event payloads. Optional; drivers tolerate both.
	MAC string `json:"mac,omitempty"`

	// Management API credentials.
	AuthMode AuthMode `json:"auth_mode"`
	Username string   `json:"username"`
	Password string   `json:"-"`

	// Direction is set for entry/exit lanes, empty for plain doors.
	Direction Direction `json:"direction,omitempty"`

	// RelayChannel is the relay/door number used by TriggerRelay.
	RelayChannel int `json:"relay_channel"`

	Enabled bool `json:"enabled"`

	// Liveness timestamps. LastOnlinePull is set when a driver poll
	// succeeds; LastOnlinePush when the device delivers an event. Both
	// are mutated only through the Registry.
	LastOnlinePull *time.Time `json:"last_online_pull,omitempty"`
	LastOnlinePush *time.Time `json:"last_online_push,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Copy creates an independent copy of the Device. Pointer fields hold
// immutable values (time.Time), so a value copy with re-pointed
// timestamps is sufficient for cache isolation.
func (d *Device) Copy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.LastOnlinePull != nil {
		t := *d.LastOnlinePull
		cpy.LastOnlinePull = &t
	}
	if d.LastOnlinePush != nil {
		t := *d.LastOnlinePush
		cpy.LastOnlinePush = &t
	}
	return &cpy
}

// Online reports whether either liveness timestamp is within the given
// staleness window.
func (d *Device) Online(window time.Duration, now time.Time) bool {
	cutoff := now.Add(-window)
	if d.LastOnlinePull != nil && d.LastOnlinePull.After(cutoff) {
		return true
	}
	if d.LastOnlinePush != nil && d.LastOnlinePush.After(cutoff) {
		return true
	}
	return false
}
