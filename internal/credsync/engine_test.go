package credsync

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
)

// The production repository and registry must satisfy the engine's
// source interfaces.
var (
	_ CredentialSource = (*credential.SQLiteRepository)(nil)
	_ DeviceSource     = (*device.Registry)(nil)
)

// fakeDriver holds an in-memory credential set and records operations.
type fakeDriver struct {
	mu       sync.Mutex
	values   map[string]bool
	ops      []string
	listGate chan struct{} // when set, ListCredentials waits on it
	lists    int

	failAdd    map[string]error
	failRemove map[string]error
}

func newFakeDriver(values ...string) *fakeDriver {
	f := &fakeDriver{values: make(map[string]bool)}
	for _, v := range values {
		f.values[v] = true
	}
	return f
}

func (f *fakeDriver) ListCredentials(_ context.Context, _ *device.Device, t credential.Type) ([]driver.DeviceCredential, error) {
	f.mu.Lock()
	f.lists++
	gate := f.listGate
	out := make([]driver.DeviceCredential, 0, len(f.values))
	for v := range f.values {
		out = append(out, driver.DeviceCredential{Type: t, Value: v})
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return out, nil
}

func (f *fakeDriver) AddCredential(_ context.Context, _ *device.Device, c driver.DeviceCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failAdd[c.Value]; err != nil {
		return err
	}
	f.values[c.Value] = true
	f.ops = append(f.ops, "add:"+c.Value)
	return nil
}

func (f *fakeDriver) RemoveCredential(_ context.Context, _ *device.Device, c driver.DeviceCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRemove[c.Value]; err != nil {
		return err
	}
	delete(f.values, c.Value)
	f.ops = append(f.ops, "remove:"+c.Value)
	return nil
}

func (f *fakeDriver) RemoveAll(_ context.Context, _ *device.Device, _ credential.Type) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[string]bool)
	return nil
}

func (f *fakeDriver) TriggerRelay(_ context.Context, _ *device.Device, _ int) error { return nil }

func (f *fakeDriver) GetStatus(_ context.Context, _ *device.Device) (*driver.Status, error) {
	return &driver.Status{Online: true}, nil
}

type fakeCreds struct {
	creds []*credential.Credential
}

func (f *fakeCreds) ListActiveByType(_ context.Context, t credential.Type) ([]credential.Credential, error) {
	var out []credential.Credential
	for _, c := range f.creds {
		if c.Type == t {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeDevices struct {
	mu      sync.Mutex
	devices []device.Device
	marks   []string
	listErr error
}

func (f *fakeDevices) ListEnabled(_ context.Context) ([]device.Device, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.devices, nil
}

func (f *fakeDevices) MarkOnline(_ context.Context, id string, kind device.LivenessKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, fmt.Sprintf("%s:%s", id, kind))
	return nil
}

func activeCred(t credential.Type, value string) *credential.Credential {
	return &credential.Credential{
		ID:              "cred-" + value,
		Type:            t,
		Value:           value,
		NormalizedValue: credential.Normalize(t, value),
	}
}

func testEngine(drv driver.Driver, creds *fakeCreds, devs *fakeDevices) *Engine {
	reg := driver.NewRegistry()
	reg.Register(device.BrandHikvision, drv)
	return New(reg, creds, devs)
}

func lprDevice(id string) *device.Device {
	return &device.Device{
		ID:    id,
		Brand: device.BrandHikvision,
		Type:  device.TypeLPRCamera,
	}
}

// TestSyncDeviceDiff: device holds {A,B,C}, store wants {B,C,D}; the
// run must add D and remove A, nothing else.
func TestSyncDeviceDiff(t *testing.T) {
	drv := newFakeDriver("AAA111", "BBB222", "CCC333")
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "BBB222"),
		activeCred(credential.TypePlate, "CCC333"),
		activeCred(credential.TypePlate, "DDD444"),
	}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	report, err := e.SyncDevice(context.Background(), lprDevice("cam1"))
	if err != nil {
		t.Fatalf("SyncDevice() error = %v", err)
	}
	if report.Added != 1 || report.Removed != 1 || len(report.Failed) != 0 {
		t.Errorf("report = %+v, want 1 added 1 removed 0 failed", report)
	}
	if len(drv.ops) != 2 {
		t.Fatalf("ops = %v, want exactly 2", drv.ops)
	}
	// Removes apply before adds.
	if drv.ops[0] != "remove:AAA111" || drv.ops[1] != "add:DDD444" {
		t.Errorf("ops = %v, want [remove:AAA111 add:DDD444]", drv.ops)
	}
}

// TestSyncDeviceIdempotent: a second run over unchanged inputs is a
// no-op.
func TestSyncDeviceIdempotent(t *testing.T) {
	drv := newFakeDriver("AAA111")
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "AAA111"),
		activeCred(credential.TypePlate, "BBB222"),
	}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	if _, err := e.SyncDevice(context.Background(), lprDevice("cam1")); err != nil {
		t.Fatalf("first SyncDevice() error = %v", err)
	}

	report, err := e.SyncDevice(context.Background(), lprDevice("cam1"))
	if err != nil {
		t.Fatalf("second SyncDevice() error = %v", err)
	}
	if report.Added != 0 || report.Removed != 0 {
		t.Errorf("second run report = %+v, want empty diff", report)
	}
}

// TestSyncDeviceNormalizedMatch: formatting differences on either side
// must not produce churn.
func TestSyncDeviceNormalizedMatch(t *testing.T) {
	drv := newFakeDriver("ab-123 cd")
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "AB123CD"),
	}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	report, err := e.SyncDevice(context.Background(), lprDevice("cam1"))
	if err != nil {
		t.Fatalf("SyncDevice() error = %v", err)
	}
	if report.Added != 0 || report.Removed != 0 {
		t.Errorf("report = %+v, want empty diff for normalized match", report)
	}
}

func TestSyncDeviceDrainsDenylisted(t *testing.T) {
	bad := activeCred(credential.TypePlate, "BAD999")
	bad.Denylisted = true

	drv := newFakeDriver("BAD999")
	creds := &fakeCreds{creds: []*credential.Credential{bad}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	report, err := e.SyncDevice(context.Background(), lprDevice("cam1"))
	if err != nil {
		t.Fatalf("SyncDevice() error = %v", err)
	}
	if report.Removed != 1 {
		t.Errorf("Removed = %d, want 1 (denylisted must drain)", report.Removed)
	}
	if drv.values["BAD999"] {
		t.Error("denylisted credential still on device")
	}
}

// TestSyncDevicePartialFailure: a failing add is reported, the rest of
// the run still applies.
func TestSyncDevicePartialFailure(t *testing.T) {
	drv := newFakeDriver()
	drv.failAdd = map[string]error{"BBB222": errors.New("device full")}
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "AAA111"),
		activeCred(credential.TypePlate, "BBB222"),
		activeCred(credential.TypePlate, "CCC333"),
	}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	report, err := e.SyncDevice(context.Background(), lprDevice("cam1"))
	if err != nil {
		t.Fatalf("SyncDevice() error = %v", err)
	}
	if report.Added != 2 {
		t.Errorf("Added = %d, want 2", report.Added)
	}
	if len(report.Failed) != 1 || report.Failed[0].Value != "BBB222" || report.Failed[0].Op != "add" {
		t.Errorf("Failed = %+v, want one add failure for BBB222", report.Failed)
	}
}

// TestSyncDeviceSingleFlight: concurrent syncs of one device share a
// single run.
func TestSyncDeviceSingleFlight(t *testing.T) {
	drv := newFakeDriver("AAA111")
	drv.listGate = make(chan struct{})
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "AAA111"),
	}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	var wg sync.WaitGroup
	results := make([]*Report, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.SyncDevice(context.Background(), lprDevice("cam1"))
			if err != nil {
				t.Errorf("SyncDevice() error = %v", err)
				return
			}
			results[i] = r
		}()
	}

	// Let both callers queue before the in-flight list completes.
	for {
		drv.mu.Lock()
		n := drv.lists
		drv.mu.Unlock()
		if n >= 1 {
			break
		}
		runtime.Gosched()
	}
	close(drv.listGate)
	wg.Wait()

	drv.mu.Lock()
	lists := drv.lists
	drv.mu.Unlock()
	if lists > 2 {
		t.Errorf("driver listed %d times for 2 concurrent calls", lists)
	}
	if results[0] == nil || results[1] == nil {
		t.Fatal("missing reports")
	}
}

func TestSyncAll(t *testing.T) {
	drv := newFakeDriver()
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "AAA111"),
	}}
	devs := &fakeDevices{devices: []device.Device{
		{ID: "cam1", Brand: device.BrandHikvision, Type: device.TypeLPRCamera},
		{ID: "cam2", Brand: device.BrandHikvision, Type: device.TypeLPRCamera},
		{ID: "bad", Brand: device.BrandDahua, Type: device.TypeLPRCamera}, // no dahua driver registered
	}}
	e := testEngine(drv, creds, devs)

	reports, err := e.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("SyncAll() = %d reports, want 3", len(reports))
	}

	byDevice := make(map[string]*Report)
	for _, r := range reports {
		byDevice[r.DeviceID] = r
	}
	if byDevice["cam1"].Err != "" || byDevice["cam2"].Err != "" {
		t.Errorf("healthy devices reported errors: %+v", reports)
	}
	if byDevice["bad"].Err == "" {
		t.Error("unregistered brand should report an error")
	}
}

func TestSyncAllCancelled(t *testing.T) {
	devs := &fakeDevices{devices: []device.Device{
		{ID: "cam1", Brand: device.BrandHikvision, Type: device.TypeLPRCamera},
	}}
	e := testEngine(newFakeDriver(), &fakeCreds{}, devs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.SyncAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("SyncAll() error = %v, want context.Canceled", err)
	}
}

func TestSyncDeviceRecordsLiveness(t *testing.T) {
	drv := newFakeDriver()
	creds := &fakeCreds{creds: []*credential.Credential{
		activeCred(credential.TypePlate, "AAA111"),
	}}
	devs := &fakeDevices{}
	e := testEngine(drv, creds, devs)

	if _, err := e.SyncDevice(context.Background(), lprDevice("cam1")); err != nil {
		t.Fatalf("SyncDevice() error = %v", err)
	}

	want := []string{"cam1:pull", "cam1:push"}
	if len(devs.marks) != 2 || devs.marks[0] != want[0] || devs.marks[1] != want[1] {
		t.Errorf("liveness marks = %v, want %v", devs.marks, want)
	}
}
