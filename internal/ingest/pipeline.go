package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/velagate/velagate-core/internal/correlate"
	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/event"
)

// postPersistTimeout bounds the asynchronous fan-out after an event is
// stored. The device's ack never waits on any of it.
const postPersistTimeout = 5 * time.Second

// Logger is the logging interface used by the pipeline.
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

// DeviceResolver maps wire identities onto registered devices and
// records liveness.
type DeviceResolver interface {
	GetByIdentifier(ctx context.Context, identifier string) (*device.Device, error)
	MarkOnline(ctx context.Context, id string, kind device.LivenessKind) error
}

// CredentialFinder resolves a normalized value to an active credential.
type CredentialFinder interface {
	FindActive(ctx context.Context, t credential.Type, normalizedValue string) (*credential.Credential, error)
}

// EventSink persists canonical events.
type EventSink interface {
	Insert(ctx context.Context, e *event.AccessEvent) error
}

// Broadcaster pushes a persisted event to live subscribers.
type Broadcaster interface {
	BroadcastEvent(e *event.AccessEvent)
}

// Publisher republishes a persisted event to the message bus.
type Publisher interface {
	PublishEvent(e *event.AccessEvent) error
}

// Telemetry records a persisted event as a metrics point. dwellSeconds
// is zero when the passage paired with no prior opposite passage.
type Telemetry interface {
	WriteAccessEvent(e *event.AccessEvent, brand string, dwellSeconds float64)
}

// Pairer finds the prior opposite-direction passage of a plate, for
// dwell telemetry.
type Pairer interface {
	LastOppositeDirection(ctx context.Context, plate string, direction device.Direction, ref time.Time) (*event.AccessEvent, error)
}

// Options carries the optional fan-out targets. Nil fields are skipped.
type Options struct {
	Broadcaster Broadcaster
	Publisher   Publisher
	Telemetry   Telemetry
	Pairer      Pairer
	Logger      Logger
}

// Pipeline turns inbound device payloads into stored access events.
//
// Stages per payload: parse, device lookup, duplicate check, identity
// resolution, decision, persist. After the persist the event fans out
// to the hub, the message bus and telemetry on a background goroutine
// so the device's acknowledgment is never delayed.
//
// A payload that fails any stage is dropped in isolation; the pipeline
// itself never stops.
type Pipeline struct {
	devices  DeviceResolver
	creds    CredentialFinder
	events   EventSink
	opts     Options
	logger   Logger
	resolver *gocache.Cache
	dedupe   *gocache.Cache

	snapshotDir  string
	dedupeWindow time.Duration

	wg sync.WaitGroup
}

// Config carries pipeline tuning.
type Config struct {
	SnapshotDir      string
	DedupeWindow     time.Duration
	ResolverCacheTTL time.Duration
}

// New creates an ingestion pipeline.
func New(cfg Config, devices DeviceResolver, creds CredentialFinder, events EventSink, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	resolverTTL := cfg.ResolverCacheTTL
	if resolverTTL <= 0 {
		resolverTTL = 30 * time.Second
	}

	return &Pipeline{
		devices:      devices,
		creds:        creds,
		events:       events,
		opts:         opts,
		logger:       logger,
		resolver:     gocache.New(resolverTTL, 2*resolverTTL),
		dedupe:       gocache.New(cfg.DedupeWindow, 2*cfg.DedupeWindow),
		snapshotDir:  cfg.SnapshotDir,
		dedupeWindow: cfg.DedupeWindow,
	}
}

// Close waits for in-flight fan-out goroutines to finish.
func (p *Pipeline) Close() {
	p.wg.Wait()
}

// Process runs one inbound payload through the pipeline and returns
// the persisted event.
func (p *Pipeline) Process(ctx context.Context, contentType string, body []byte) (*event.AccessEvent, error) {
	raw, err := ParsePayload(contentType, body)
	if err != nil {
		return nil, err
	}

	dev, err := p.devices.GetByIdentifier(ctx, raw.DeviceIdentifier())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, raw.DeviceIdentifier())
	}

	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now().UTC()
	}

	if p.isDuplicate(dev.ID, raw) {
		return nil, fmt.Errorf("%w: device %s at %s", ErrDuplicate, dev.ID, raw.Timestamp.Format(time.RFC3339))
	}

	e := p.decide(ctx, dev, raw)

	if len(raw.Snapshot) > 0 {
		if path, err := p.storeSnapshot(raw); err != nil {
			p.logger.Warn("storing snapshot failed", "device_id", dev.ID, "error", err)
		} else {
			e.SnapshotPath = path
		}
	}

	if err := p.events.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("persisting event: %w", err)
	}

	p.fanOut(dev, e)
	return e, nil
}

// isDuplicate records and checks the delivery key inside the window.
func (p *Pipeline) isDuplicate(deviceID string, raw *RawEvent) bool {
	if p.dedupeWindow <= 0 {
		return false
	}
	key := fmt.Sprintf("%s|%d|%s", deviceID, raw.Timestamp.Unix(), raw.CredentialValue)
	if _, seen := p.dedupe.Get(key); seen {
		return true
	}
	p.dedupe.SetDefault(key, struct{}{})
	return false
}

// decide resolves identity and applies the access policy, producing
// the canonical event.
func (p *Pipeline) decide(ctx context.Context, dev *device.Device, raw *RawEvent) *event.AccessEvent {
	e := &event.AccessEvent{
		ID:        uuid.New().String(),
		Timestamp: raw.Timestamp.UTC(),
		DeviceID:  dev.ID,
		Direction: dev.Direction,
		Details:   buildDetails(raw),
	}

	switch raw.Kind {
	case KindDoorOpen:
		e.AccessType = event.AccessDoorOpen
		e.Decision = event.DecisionGrant
		return e
	case KindDoorClose:
		e.AccessType = event.AccessDoorClose
		e.Decision = event.DecisionGrant
		return e
	}

	e.AccessType = accessTypeFor(raw.CredentialType)
	if raw.CredentialType == credential.TypePlate {
		e.PlateDetected = raw.CredentialValue
	}

	// Unread sentinels deny without touching the store. The camera saw
	// something, it just could not read it.
	if credential.IsUnread(raw.CredentialValue) {
		e.Decision = event.DecisionDeny
		return e
	}

	cred := p.resolve(ctx, raw.CredentialType, raw.CredentialValue)
	if cred == nil {
		e.Decision = event.DecisionDeny
		return e
	}

	e.CredentialID = &cred.ID
	e.UserID = cred.UserID
	if cred.Denylisted {
		e.Decision = event.DecisionDeny
		return e
	}
	e.Decision = event.DecisionGrant
	return e
}

// resolve looks up an active credential through the short-TTL cache.
// Misses are cached too; a burst of unknown plates must not hammer the
// store.
func (p *Pipeline) resolve(ctx context.Context, t credential.Type, value string) *credential.Credential {
	normalized := credential.Normalize(t, value)
	key := string(t) + "|" + normalized

	if v, ok := p.resolver.Get(key); ok {
		return v.(*credential.Credential)
	}

	cred, err := p.creds.FindActive(ctx, t, normalized)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug("credential lookup miss", "type", t, "value", normalized, "error", err)
		}
		cred = nil
	}
	p.resolver.SetDefault(key, cred)
	return cred
}

// fanOut pushes a persisted event to the optional targets without
// blocking the caller.
func (p *Pipeline) fanOut(dev *device.Device, e *event.AccessEvent) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), postPersistTimeout)
		defer cancel()

		if err := p.devices.MarkOnline(ctx, dev.ID, device.LivenessPush); err != nil {
			p.logger.Warn("recording device liveness failed", "device_id", dev.ID, "error", err)
		}
		if p.opts.Broadcaster != nil {
			p.opts.Broadcaster.BroadcastEvent(e)
		}
		if p.opts.Publisher != nil {
			if err := p.opts.Publisher.PublishEvent(e); err != nil {
				p.logger.Warn("publishing event failed", "event_id", e.ID, "error", err)
			}
		}
		if p.opts.Telemetry != nil {
			p.opts.Telemetry.WriteAccessEvent(e, string(dev.Brand), p.dwellFor(ctx, e))
		}
	}()
}

// dwellFor pairs a directional passage with the prior opposite passage
// and returns the dwell in seconds, or zero when unpaired.
func (p *Pipeline) dwellFor(ctx context.Context, e *event.AccessEvent) float64 {
	if p.opts.Pairer == nil || e.AccessType.IsDoorState() || e.Direction == "" {
		return 0
	}
	if e.PlateDetected == "" || credential.IsUnread(e.PlateDetected) {
		return 0
	}

	plate := credential.Normalize(credential.TypePlate, e.PlateDetected)
	prior, err := p.opts.Pairer.LastOppositeDirection(ctx, plate, e.Direction, e.Timestamp)
	if err != nil || prior == nil {
		return 0
	}
	return correlate.Pair(e, prior).DwellSeconds
}

// storeSnapshot writes inbound image bytes under the snapshot dir and
// returns the stored path.
func (p *Pipeline) storeSnapshot(raw *RawEvent) (string, error) {
	if p.snapshotDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(p.snapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(raw.SnapshotName))
	if ext == "" {
		ext = ".jpg"
	}
	path := filepath.Join(p.snapshotDir, uuid.New().String()+ext)
	if err := os.WriteFile(path, raw.Snapshot, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}

func buildDetails(raw *RawEvent) map[string]string {
	details := make(map[string]string)
	if raw.Confidence > 0 {
		details["confidence"] = fmt.Sprintf("%d", raw.Confidence)
	}
	if raw.ListMembership != "" {
		details["list"] = raw.ListMembership
	}
	for k, v := range raw.VehicleAttributes {
		details[k] = v
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func accessTypeFor(t credential.Type) event.AccessType {
	switch t {
	case credential.TypeFace:
		return event.AccessFace
	case credential.TypeTag:
		return event.AccessTag
	case credential.TypePIN:
		return event.AccessPIN
	case credential.TypeFingerprint:
		return event.AccessFingerprint
	default:
		return event.AccessPlate
	}
}
