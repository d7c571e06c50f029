package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/event"
)

type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	marks   []string
}

func (f *fakeDevices) GetByIdentifier(_ context.Context, identifier string) (*device.Device, error) {
	if d, ok := f.devices[identifier]; ok {
		return d, nil
	}
	return nil, device.ErrNotFound
}

func (f *fakeDevices) MarkOnline(_ context.Context, id string, kind device.LivenessKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, fmt.Sprintf("%s:%s", id, kind))
	return nil
}

type fakeCreds struct {
	mu      sync.Mutex
	byValue map[string]*credential.Credential
	lookups int
}

func (f *fakeCreds) FindActive(_ context.Context, t credential.Type, normalized string) (*credential.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if c, ok := f.byValue[string(t)+"|"+normalized]; ok {
		return c, nil
	}
	return nil, credential.ErrNotFound
}

type fakeEvents struct {
	mu     sync.Mutex
	stored []*event.AccessEvent
	err    error
}

func (f *fakeEvents) Insert(_ context.Context, e *event.AccessEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, e)
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*event.AccessEvent
}

func (f *fakeBroadcaster) BroadcastEvent(e *event.AccessEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func testPipeline(t *testing.T) (*Pipeline, *fakeDevices, *fakeCreds, *fakeEvents, *fakeBroadcaster) {
	t.Helper()

	userID := "user-1"
	devs := &fakeDevices{devices: map[string]*device.Device{
		"10.0.0.20": {ID: "cam1", Brand: device.BrandHikvision, Type: device.TypeLPRCamera, Direction: device.DirectionEntry},
	}}
	creds := &fakeCreds{byValue: map[string]*credential.Credential{
		"PLATE|AB123CD": {ID: "cred-1", Type: credential.TypePlate, Value: "AB123CD", NormalizedValue: "AB123CD", UserID: &userID},
	}}
	events := &fakeEvents{}
	hub := &fakeBroadcaster{}

	p := New(Config{
		SnapshotDir:      t.TempDir(),
		DedupeWindow:     10 * time.Second,
		ResolverCacheTTL: 30 * time.Second,
	}, devs, creds, events, Options{Broadcaster: hub})

	return p, devs, creds, events, hub
}

func xmlPayload(ip, plate, at string) []byte {
	return []byte(fmt.Sprintf(
		`<EventNotificationAlert><ipAddress>%s</ipAddress><dateTime>%s</dateTime><eventType>ANPR</eventType><ANPR><licensePlate>%s</licensePlate></ANPR></EventNotificationAlert>`,
		ip, at, plate))
}

func TestProcessGrantsKnownPlate(t *testing.T) {
	p, devs, _, events, hub := testPipeline(t)

	e, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.0.0.20", "AB123CD", "2026-03-14T09:00:00Z"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	p.Close()

	if e.Decision != event.DecisionGrant {
		t.Errorf("Decision = %s, want GRANT", e.Decision)
	}
	if e.CredentialID == nil || *e.CredentialID != "cred-1" {
		t.Errorf("CredentialID = %v, want cred-1", e.CredentialID)
	}
	if e.UserID == nil || *e.UserID != "user-1" {
		t.Errorf("UserID = %v, want user-1", e.UserID)
	}
	if e.Direction != device.DirectionEntry {
		t.Errorf("Direction = %s, want ENTRY from device", e.Direction)
	}
	if len(events.stored) != 1 {
		t.Fatalf("stored %d events, want 1", len(events.stored))
	}
	if len(hub.events) != 1 {
		t.Errorf("broadcast %d events, want 1", len(hub.events))
	}
	if len(devs.marks) != 1 || devs.marks[0] != "cam1:push" {
		t.Errorf("liveness marks = %v, want [cam1:push]", devs.marks)
	}
}

func TestProcessDeniesUnknownPlate(t *testing.T) {
	p, _, _, events, _ := testPipeline(t)

	e, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.0.0.20", "ZZ999ZZ", "2026-03-14T09:00:00Z"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	p.Close()

	if e.Decision != event.DecisionDeny {
		t.Errorf("Decision = %s, want DENY", e.Decision)
	}
	if e.CredentialID != nil || e.UserID != nil {
		t.Errorf("unresolved event carries identity: %+v", e)
	}
	if len(events.stored) != 1 {
		t.Errorf("stored %d events, want 1 (denies are persisted)", len(events.stored))
	}
}

// TestProcessSentinelPlate: an unreadable plate denies without a store
// lookup and without an error.
func TestProcessSentinelPlate(t *testing.T) {
	p, _, creds, events, _ := testPipeline(t)

	e, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.0.0.20", "NO_LEIDA", "2026-03-14T09:00:00Z"))
	if err != nil {
		t.Fatalf("Process() error = %v, want nil for sentinel plate", err)
	}
	p.Close()

	if e.Decision != event.DecisionDeny {
		t.Errorf("Decision = %s, want DENY", e.Decision)
	}
	if e.PlateDetected != "NO_LEIDA" {
		t.Errorf("PlateDetected = %q, want raw sentinel preserved", e.PlateDetected)
	}
	if creds.lookups != 0 {
		t.Errorf("store lookups = %d, want 0 for sentinel", creds.lookups)
	}
	if len(events.stored) != 1 {
		t.Errorf("stored %d events, want 1", len(events.stored))
	}
}

func TestProcessDenylistedCredential(t *testing.T) {
	p, _, creds, _, _ := testPipeline(t)
	creds.byValue["PLATE|BAD999"] = &credential.Credential{
		ID: "cred-bad", Type: credential.TypePlate, Value: "BAD999",
		NormalizedValue: "BAD999", Denylisted: true,
	}

	e, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.0.0.20", "BAD999", "2026-03-14T09:00:00Z"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	p.Close()

	if e.Decision != event.DecisionDeny {
		t.Errorf("Decision = %s, want DENY for denylisted", e.Decision)
	}
	if e.CredentialID == nil || *e.CredentialID != "cred-bad" {
		t.Errorf("CredentialID = %v, want cred-bad recorded on the deny", e.CredentialID)
	}
}

func TestProcessUnknownDevice(t *testing.T) {
	p, _, _, events, _ := testPipeline(t)

	_, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.9.9.9", "AB123CD", "2026-03-14T09:00:00Z"))
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("Process() error = %v, want ErrUnknownDevice", err)
	}
	if len(events.stored) != 0 {
		t.Errorf("stored %d events, want 0", len(events.stored))
	}
}

// TestProcessMalformedPayloadIsolated: a bad body fails alone; the
// next delivery processes normally.
func TestProcessMalformedPayloadIsolated(t *testing.T) {
	p, _, _, events, _ := testPipeline(t)

	var perr *ParseError
	_, err := p.Process(context.Background(), "application/xml", []byte("<garbage"))
	if !errors.As(err, &perr) {
		t.Fatalf("Process() error = %T, want *ParseError", err)
	}

	if _, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.0.0.20", "AB123CD", "2026-03-14T09:00:00Z")); err != nil {
		t.Fatalf("pipeline broken after bad payload: %v", err)
	}
	p.Close()

	if len(events.stored) != 1 {
		t.Errorf("stored %d events, want 1", len(events.stored))
	}
}

func TestProcessDuplicateDelivery(t *testing.T) {
	p, _, _, events, _ := testPipeline(t)
	payload := xmlPayload("10.0.0.20", "AB123CD", "2026-03-14T09:00:00Z")

	if _, err := p.Process(context.Background(), "application/xml", payload); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	_, err := p.Process(context.Background(), "application/xml", payload)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second delivery error = %v, want ErrDuplicate", err)
	}
	p.Close()

	if len(events.stored) != 1 {
		t.Errorf("stored %d events, want exactly 1", len(events.stored))
	}
}

// TestProcessResolverCache: repeated sightings of one plate hit the
// store once inside the TTL.
func TestProcessResolverCache(t *testing.T) {
	p, _, creds, _, _ := testPipeline(t)

	for i := 0; i < 3; i++ {
		at := time.Date(2026, 3, 14, 9, 0, i, 0, time.UTC).Format(time.RFC3339)
		if _, err := p.Process(context.Background(), "application/xml",
			xmlPayload("10.0.0.20", "AB123CD", at)); err != nil {
			t.Fatalf("delivery %d error = %v", i, err)
		}
	}
	p.Close()

	if creds.lookups != 1 {
		t.Errorf("store lookups = %d, want 1 (cache)", creds.lookups)
	}
}

func TestProcessDoorEvent(t *testing.T) {
	p, _, _, events, _ := testPipeline(t)

	e, err := p.Process(context.Background(), "application/xml",
		[]byte(`<EventNotificationAlert><ipAddress>10.0.0.20</ipAddress><dateTime>2026-03-14T09:00:10Z</dateTime><eventType>doorOpen</eventType></EventNotificationAlert>`))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	p.Close()

	if e.AccessType != event.AccessDoorOpen {
		t.Errorf("AccessType = %s, want DOOR_OPEN", e.AccessType)
	}
	if len(events.stored) != 1 {
		t.Errorf("stored %d events, want 1", len(events.stored))
	}
}

func TestProcessPersistFailure(t *testing.T) {
	p, _, _, events, hub := testPipeline(t)
	events.err = errors.New("disk full")

	_, err := p.Process(context.Background(), "application/xml",
		xmlPayload("10.0.0.20", "AB123CD", "2026-03-14T09:00:00Z"))
	if err == nil {
		t.Fatal("Process() error = nil, want persist failure")
	}
	p.Close()

	if len(hub.events) != 0 {
		t.Errorf("broadcast %d events after failed persist, want 0", len(hub.events))
	}
}
