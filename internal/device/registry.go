package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups,
// including lookups by the network identifiers (IP or MAC) devices put
// in their event payloads.
//
// The Registry is the single authority for liveness timestamps: the
// driver poller and the ingestion pipeline both report liveness here,
// and everything else reads snapshots.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache and identifier index
	byIdent map[string]string  // host or lowercase MAC -> device ID
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		cache:   make(map[string]*Device),
		byIdent: make(map[string]string),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	r.byIdent = make(map[string]string, len(devices)*2)
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.Copy()
		r.indexLocked(&d)
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// indexLocked adds a device's network identifiers to the lookup index.
// Caller must hold cacheMu.
func (r *Registry) indexLocked(d *Device) {
	if d.Host != "" {
		r.byIdent[d.Host] = d.ID
	}
	if d.MAC != "" {
		r.byIdent[normalizeMAC(d.MAC)] = d.ID
	}
}

// normalizeMAC lowercases a MAC and strips separator variants so
// "AA:BB:CC:DD:EE:FF" and "aa-bb-cc-dd-ee-ff" index identically.
func normalizeMAC(mac string) string {
	mac = strings.ToLower(mac)
	mac = strings.ReplaceAll(mac, "-", ":")
	return mac
}

// Get retrieves a device by ID.
// Returns ErrNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Copy(), nil
	}

	// Fall back to repository (might be a new device not yet cached).
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.Copy()
	r.indexLocked(d)
	r.cacheMu.Unlock()

	return d, nil
}

// GetByIdentifier retrieves a device by the identifier it reports in
// event payloads: its IP address, host name, or MAC address.
// Returns ErrNotFound when nothing matches.
func (r *Registry) GetByIdentifier(ctx context.Context, identifier string) (*Device, error) {
	r.cacheMu.RLock()
	id, ok := r.byIdent[identifier]
	if !ok {
		id, ok = r.byIdent[normalizeMAC(identifier)]
	}
	r.cacheMu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

// List returns copies of all cached devices. When the cache has not
// been refreshed yet it falls through to the repository.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.Copy())
	}
	r.cacheMu.RUnlock()

	if len(devices) == 0 {
		return r.repo.List(ctx)
	}
	return devices, nil
}

// ListEnabled returns copies of all enabled devices, the working set for
// sync and polling cycles.
func (r *Registry) ListEnabled(ctx context.Context) ([]Device, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, d := range all {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	return enabled, nil
}

// Create persists a new device and adds it to the cache.
func (r *Registry) Create(ctx context.Context, d *Device) error {
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.Copy()
	r.indexLocked(d)
	r.cacheMu.Unlock()

	r.logger.Info("device created", "device_id", d.ID, "brand", d.Brand, "type", d.Type)
	return nil
}

// Update persists device changes and refreshes the cache entry.
func (r *Registry) Update(ctx context.Context, d *Device) error {
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	// Stale identifiers from a previous host/MAC stay in the index until
	// the next RefreshCache; they point at the same device ID.
	r.cacheMu.Lock()
	r.cache[d.ID] = d.Copy()
	r.indexLocked(d)
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "device_id", d.ID)
	return nil
}

// Delete removes a device from the store and cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		delete(r.byIdent, d.Host)
		delete(r.byIdent, normalizeMAC(d.MAC))
		delete(r.cache, id)
	}
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "device_id", id)
	return nil
}

// MarkOnline records a liveness observation for a device. kind selects
// the pull (driver poll) or push (inbound event) timestamp.
func (r *Registry) MarkOnline(ctx context.Context, id string, kind LivenessKind) error {
	now := time.Now().UTC()
	if err := r.repo.TouchLiveness(ctx, id, kind, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		t := now
		if kind == LivenessPush {
			d.LastOnlinePush = &t
		} else {
			d.LastOnlinePull = &t
		}
	}
	r.cacheMu.Unlock()

	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
