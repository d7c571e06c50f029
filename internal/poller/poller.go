// Package poller periodically polls every enabled device for a health
// snapshot, feeds the liveness bookkeeping, and mirrors the result to
// the status sinks (MQTT retained topics, telemetry).
package poller

import (
	"context"
	"time"

	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
)

const (
	// pollTimeout bounds one device's status call so a dead device
	// never stalls the rest of the cycle.
	pollTimeout = 10 * time.Second

	// degradedThreshold is the number of consecutive failed polls
	// after which a device is reported as degraded.
	degradedThreshold = 3
)

// Logger is the minimal logging interface the poller needs.
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

// DeviceSource lists the devices to poll and records liveness.
type DeviceSource interface {
	ListEnabled(ctx context.Context) ([]device.Device, error)
	MarkOnline(ctx context.Context, id string, kind device.LivenessKind) error
}

// StatusPublisher mirrors device status to the message bus.
type StatusPublisher interface {
	PublishDeviceStatus(deviceID string, online bool) error
}

// StatusRecorder writes device status as a telemetry point.
type StatusRecorder interface {
	WriteDeviceStatus(deviceID string, brand string, online bool)
}

// Options carries the optional status sinks. Nil fields are skipped.
type Options struct {
	Publisher StatusPublisher
	Recorder  StatusRecorder
	Logger    Logger
}

// Poller drives periodic device health polls.
//
// Thread Safety: Run and PollAll must not be called concurrently with
// each other; the failure counters are owned by the poll loop.
type Poller struct {
	devices  DeviceSource
	drivers  *driver.Registry
	opts     Options
	logger   Logger
	failures map[string]int
}

// New creates a Poller.
func New(devices DeviceSource, drivers *driver.Registry, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		devices:  devices,
		drivers:  drivers,
		opts:     opts,
		logger:   logger,
		failures: make(map[string]int),
	}
}

// Run polls on the given interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollAll(ctx)
		}
	}
}

// PollAll polls every enabled device once, sequentially. Status polls
// are cheap single requests; the sync engine handles the heavy
// concurrent traffic.
func (p *Poller) PollAll(ctx context.Context) {
	devices, err := p.devices.ListEnabled(ctx)
	if err != nil {
		p.logger.Error("listing devices for status poll", "error", err)
		return
	}

	for i := range devices {
		if ctx.Err() != nil {
			return
		}
		p.pollOne(ctx, &devices[i])
	}
}

func (p *Poller) pollOne(ctx context.Context, dev *device.Device) {
	drv, err := p.drivers.ForDevice(dev)
	if err != nil {
		p.logger.Warn("no driver for device", "device_id", dev.ID, "brand", dev.Brand)
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	status, err := drv.GetStatus(pollCtx, dev)
	online := err == nil && status.Online
	if err != nil {
		p.logger.Debug("device status poll failed", "device_id", dev.ID, "error", err)
	}

	if online {
		delete(p.failures, dev.ID)
		if err := p.devices.MarkOnline(ctx, dev.ID, device.LivenessPull); err != nil {
			p.logger.Warn("marking device online", "device_id", dev.ID, "error", err)
		}
	} else {
		p.failures[dev.ID]++
		if p.failures[dev.ID] == degradedThreshold {
			p.logger.Error("device degraded",
				"device_id", dev.ID,
				"consecutive_failures", degradedThreshold,
				"error", err,
			)
		}
	}

	if p.opts.Publisher != nil {
		if err := p.opts.Publisher.PublishDeviceStatus(dev.ID, online); err != nil {
			p.logger.Debug("publishing device status", "device_id", dev.ID, "error", err)
		}
	}
	if p.opts.Recorder != nil {
		p.opts.Recorder.WriteDeviceStatus(dev.ID, string(dev.Brand), online)
	}
}
