package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
)

// DeviceCredential is a credential record as held on a device.
//
// Value carries the raw on-device representation; comparisons against
// the authoritative store go through credential.Normalize on both
// sides.
type DeviceCredential struct {
	Type  credential.Type
	Value string
	Note  string
}

// DoorState is the reported position of a controlled door or barrier.
type DoorState string

const (
	DoorOpen    DoorState = "OPEN"
	DoorClosed  DoorState = "CLOSED"
	DoorUnknown DoorState = "UNKNOWN"
)

// Status is a point-in-time device health snapshot.
type Status struct {
	Online    bool
	DoorState DoorState
}

// Driver speaks one brand's management protocol.
//
// Drivers are stateless with respect to devices: the target device is
// passed on every call, so one driver instance serves every device of
// its brand concurrently.
//
// ListCredentials pulls the complete on-device set for a type,
// paginating internally. The stream restarts from the beginning on
// every call; there is no mid-stream resume.
//
// A capability the brand or device type cannot perform returns
// ErrNotSupported.
type Driver interface {
	ListCredentials(ctx context.Context, dev *device.Device, t credential.Type) ([]DeviceCredential, error)
	AddCredential(ctx context.Context, dev *device.Device, c DeviceCredential) error
	RemoveCredential(ctx context.Context, dev *device.Device, c DeviceCredential) error
	RemoveAll(ctx context.Context, dev *device.Device, t credential.Type) error
	TriggerRelay(ctx context.Context, dev *device.Device, channel int) error
	GetStatus(ctx context.Context, dev *device.Device) (*Status, error)
}

// Registry maps device brands to driver instances.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[device.Brand]Driver
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[device.Brand]Driver),
	}
}

// Register installs a driver for a brand, replacing any previous one.
func (r *Registry) Register(brand device.Brand, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[brand] = d
}

// ForDevice returns the driver for a device's brand.
func (r *Registry) ForDevice(dev *device.Device) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[dev.Brand]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBrand, dev.Brand)
	}
	return d, nil
}

// Brands returns the registered brand names.
func (r *Registry) Brands() []device.Brand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	brands := make([]device.Brand, 0, len(r.drivers))
	for b := range r.drivers {
		brands = append(brands, b)
	}
	return brands
}
