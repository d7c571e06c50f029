package credsync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
)

// maxConcurrentSyncs bounds how many devices sync at once during a
// sync-all run. Gate hardware dislikes being hammered.
const maxConcurrentSyncs = 4

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CredentialSource supplies the authoritative active credential set.
type CredentialSource interface {
	ListActiveByType(ctx context.Context, t credential.Type) ([]credential.Credential, error)
}

// DeviceSource supplies sync targets and records liveness.
type DeviceSource interface {
	ListEnabled(ctx context.Context) ([]device.Device, error)
	MarkOnline(ctx context.Context, id string, kind device.LivenessKind) error
}

// Failure records one credential operation that did not apply. Partial
// failure is data, not an aborted run.
type Failure struct {
	Op    string `json:"op"`
	Value string `json:"value"`
	Err   string `json:"error"`
}

// Report summarises one device sync run.
type Report struct {
	DeviceID   string          `json:"device_id"`
	Type       credential.Type `json:"type"`
	Added      int             `json:"added"`
	Removed    int             `json:"removed"`
	Failed     []Failure       `json:"failed,omitempty"`
	Err        string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// TypeFor maps a device type onto the credential type it enforces.
func TypeFor(dev *device.Device) credential.Type {
	switch dev.Type {
	case device.TypeLPRCamera:
		return credential.TypePlate
	case device.TypeFaceTerminal:
		return credential.TypeFace
	default:
		return credential.TypeTag
	}
}

// Engine reconciles device credential tables against the authoritative
// store.
//
// A run pulls the full on-device set, diffs it against the active
// store set on normalized values, and applies removes before adds so a
// device never briefly holds both an old and a replacement entry for
// the same slot. Unchanged inputs produce an empty diff.
//
// Concurrent syncs of the same device collapse into one run via
// singleflight; distinct devices sync independently.
//
// Thread Safety: all methods are safe for concurrent use.
type Engine struct {
	drivers *driver.Registry
	creds   CredentialSource
	devices DeviceSource
	logger  Logger

	group singleflight.Group
}

// New creates a sync engine.
func New(drivers *driver.Registry, creds CredentialSource, devices DeviceSource) *Engine {
	return &Engine{
		drivers: drivers,
		creds:   creds,
		devices: devices,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SyncDevice runs one reconciliation for a device. Calls for the same
// device id while a run is in flight share that run's report.
func (e *Engine) SyncDevice(ctx context.Context, dev *device.Device) (*Report, error) {
	v, err, shared := e.group.Do(dev.ID, func() (any, error) {
		return e.syncOne(ctx, dev)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("sync request joined in-flight run", "device_id", dev.ID)
	}
	return v.(*Report), nil
}

func (e *Engine) syncOne(ctx context.Context, dev *device.Device) (*Report, error) {
	t := TypeFor(dev)
	report := &Report{DeviceID: dev.ID, Type: t, StartedAt: time.Now().UTC()}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	drv, err := e.drivers.ForDevice(dev)
	if err != nil {
		return nil, err
	}

	onDevice, err := drv.ListCredentials(ctx, dev, t)
	if err != nil {
		return nil, fmt.Errorf("pulling device set: %w", err)
	}
	if err := e.devices.MarkOnline(ctx, dev.ID, device.LivenessPull); err != nil {
		e.logger.Warn("recording pull liveness failed", "device_id", dev.ID, "error", err)
	}

	want, err := e.creds.ListActiveByType(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("pulling store set: %w", err)
	}

	toAdd, toRemove := diff(onDevice, want)
	e.logger.Info("sync diff computed",
		"device_id", dev.ID, "type", t,
		"on_device", len(onDevice), "want", len(want),
		"to_add", len(toAdd), "to_remove", len(toRemove))

	// Removes first: a full credential table must free slots before
	// new entries land.
	for _, c := range toRemove {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := drv.RemoveCredential(ctx, dev, c); err != nil {
			report.Failed = append(report.Failed, Failure{Op: "remove", Value: c.Value, Err: err.Error()})
			e.logger.Warn("credential remove failed", "device_id", dev.ID, "value", c.Value, "error", err)
			continue
		}
		report.Removed++
	}

	for _, c := range toAdd {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := drv.AddCredential(ctx, dev, c); err != nil {
			report.Failed = append(report.Failed, Failure{Op: "add", Value: c.Value, Err: err.Error()})
			e.logger.Warn("credential add failed", "device_id", dev.ID, "value", c.Value, "error", err)
			continue
		}
		report.Added++
	}

	if report.Added > 0 || report.Removed > 0 {
		if err := e.devices.MarkOnline(ctx, dev.ID, device.LivenessPush); err != nil {
			e.logger.Warn("recording push liveness failed", "device_id", dev.ID, "error", err)
		}
	}

	return report, nil
}

// diff compares the on-device set against the desired store set on
// normalized values. Denylisted credentials are treated as absent from
// the desired set so they drain off devices.
func diff(onDevice []driver.DeviceCredential, want []credential.Credential) (toAdd, toRemove []driver.DeviceCredential) {
	wanted := make(map[string]*credential.Credential, len(want))
	for i := range want {
		if want[i].Denylisted {
			continue
		}
		wanted[want[i].NormalizedValue] = &want[i]
	}

	present := make(map[string]bool, len(onDevice))
	for _, dc := range onDevice {
		key := credential.Normalize(dc.Type, dc.Value)
		if present[key] {
			// Duplicate on-device entries collapse to one.
			continue
		}
		present[key] = true
		if _, ok := wanted[key]; !ok {
			toRemove = append(toRemove, dc)
		}
	}

	for key, c := range wanted {
		if !present[key] {
			toAdd = append(toAdd, driver.DeviceCredential{Type: c.Type, Value: c.Value, Note: c.Note})
		}
	}
	return toAdd, toRemove
}

// SyncAll reconciles every enabled device concurrently. A device whose
// run fails outright is reported with Err set; other devices are
// unaffected.
func (e *Engine) SyncAll(ctx context.Context) ([]*Report, error) {
	devices, err := e.devices.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	reports := make([]*Report, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSyncs)

	for i := range devices {
		i := i
		dev := &devices[i]
		g.Go(func() error {
			report, err := e.SyncDevice(gctx, dev)
			if err != nil {
				e.logger.Error("device sync failed", "device_id", dev.ID, "error", err)
				report = &Report{
					DeviceID:   dev.ID,
					Type:       TypeFor(dev),
					Err:        err.Error(),
					StartedAt:  time.Now().UTC(),
					FinishedAt: time.Now().UTC(),
				}
			}
			reports[i] = report
			// Device failures are data in the report, not run failures.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// Run executes SyncAll on the configured interval until the context is
// cancelled. A zero interval disables the loop.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		e.logger.Info("periodic sync disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("periodic sync started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("periodic sync stopped")
			return
		case <-ticker.C:
			if _, err := e.SyncAll(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("periodic sync run failed", "error", err)
			}
		}
	}
}
