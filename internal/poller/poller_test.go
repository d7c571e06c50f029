package poller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
)

type fakeDevices struct {
	devices []device.Device
	mu      sync.Mutex
	marked  []string
}

func (f *fakeDevices) ListEnabled(_ context.Context) ([]device.Device, error) {
	return f.devices, nil
}

func (f *fakeDevices) MarkOnline(_ context.Context, id string, kind device.LivenessKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id+":"+string(kind))
	return nil
}

type fakeStatusDriver struct {
	online map[string]bool
	err    error
}

func (f *fakeStatusDriver) ListCredentials(context.Context, *device.Device, credential.Type) ([]driver.DeviceCredential, error) {
	return nil, driver.ErrNotSupported
}
func (f *fakeStatusDriver) AddCredential(context.Context, *device.Device, driver.DeviceCredential) error {
	return driver.ErrNotSupported
}
func (f *fakeStatusDriver) RemoveCredential(context.Context, *device.Device, driver.DeviceCredential) error {
	return driver.ErrNotSupported
}
func (f *fakeStatusDriver) RemoveAll(context.Context, *device.Device, credential.Type) error {
	return driver.ErrNotSupported
}
func (f *fakeStatusDriver) TriggerRelay(context.Context, *device.Device, int) error {
	return driver.ErrNotSupported
}

func (f *fakeStatusDriver) GetStatus(_ context.Context, dev *device.Device) (*driver.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &driver.Status{Online: f.online[dev.ID]}, nil
}

type recordedStatus struct {
	deviceID string
	online   bool
}

type fakeSink struct {
	mu        sync.Mutex
	published []recordedStatus
	recorded  []recordedStatus
}

func (f *fakeSink) PublishDeviceStatus(deviceID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, recordedStatus{deviceID, online})
	return nil
}

func (f *fakeSink) WriteDeviceStatus(deviceID string, _ string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, recordedStatus{deviceID, online})
}

func testDevice(id string) device.Device {
	return device.Device{
		ID:      id,
		Brand:   device.BrandHikvision,
		Type:    device.TypeLPRCamera,
		Host:    "10.0.0.5",
		Enabled: true,
	}
}

func TestPollAllMarksOnline(t *testing.T) {
	devices := &fakeDevices{devices: []device.Device{testDevice("cam1"), testDevice("cam2")}}
	drv := &fakeStatusDriver{online: map[string]bool{"cam1": true, "cam2": false}}
	drivers := driver.NewRegistry()
	drivers.Register(device.BrandHikvision, drv)
	sink := &fakeSink{}

	p := New(devices, drivers, Options{Publisher: sink, Recorder: sink})
	p.PollAll(context.Background())

	devices.mu.Lock()
	marked := append([]string(nil), devices.marked...)
	devices.mu.Unlock()
	if len(marked) != 1 || marked[0] != "cam1:pull" {
		t.Errorf("marked = %v, want [cam1:pull]", marked)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.published) != 2 {
		t.Fatalf("published %d statuses, want 2", len(sink.published))
	}
	if !sink.published[0].online || sink.published[1].online {
		t.Errorf("published = %v, want cam1 online and cam2 offline", sink.published)
	}
	if len(sink.recorded) != 2 {
		t.Errorf("recorded %d statuses, want 2", len(sink.recorded))
	}
}

func TestPollAllUnreachableDeviceIsOffline(t *testing.T) {
	devices := &fakeDevices{devices: []device.Device{testDevice("cam1")}}
	drv := &fakeStatusDriver{err: errors.New("connection refused")}
	drivers := driver.NewRegistry()
	drivers.Register(device.BrandHikvision, drv)
	sink := &fakeSink{}

	p := New(devices, drivers, Options{Publisher: sink})
	p.PollAll(context.Background())

	devices.mu.Lock()
	marked := len(devices.marked)
	devices.mu.Unlock()
	if marked != 0 {
		t.Errorf("marked %d devices online, want 0", marked)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.published) != 1 || sink.published[0].online {
		t.Errorf("published = %v, want one offline status", sink.published)
	}
}

type captureLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Warn(string, ...any)  {}
func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestRepeatedFailuresReportDegraded(t *testing.T) {
	devices := &fakeDevices{devices: []device.Device{testDevice("cam1")}}
	drv := &fakeStatusDriver{err: errors.New("401 rejected")}
	drivers := driver.NewRegistry()
	drivers.Register(device.BrandHikvision, drv)
	log := &captureLogger{}

	p := New(devices, drivers, Options{Logger: log})
	for i := 0; i < 4; i++ {
		p.PollAll(context.Background())
	}

	log.mu.Lock()
	degraded := 0
	for _, msg := range log.errors {
		if msg == "device degraded" {
			degraded++
		}
	}
	log.mu.Unlock()
	if degraded != 1 {
		t.Errorf("degraded reports = %d, want exactly 1", degraded)
	}

	// A successful poll clears the failure streak.
	drv.err = nil
	drv.online = map[string]bool{"cam1": true}
	p.PollAll(context.Background())
	if n := p.failures["cam1"]; n != 0 {
		t.Errorf("failure count after recovery = %d, want 0", n)
	}
}

func TestPollAllSkipsUnregisteredBrand(t *testing.T) {
	dev := testDevice("gate1")
	dev.Brand = device.BrandDahua
	devices := &fakeDevices{devices: []device.Device{dev}}
	drivers := driver.NewRegistry()
	sink := &fakeSink{}

	p := New(devices, drivers, Options{Publisher: sink})
	p.PollAll(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.published) != 0 {
		t.Errorf("published = %v, want none", sink.published)
	}
}
