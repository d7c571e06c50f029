package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Velagate Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Transport TransportConfig `yaml:"transport"`
	Sync      SyncConfig      `yaml:"sync"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Poller    PollerConfig    `yaml:"poller"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information for the gated community.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
// The same listener serves the admin API and the inbound device webhooks.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains live event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for event republishing.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains access-event telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TransportConfig contains settings for the device management HTTP client.
type TransportConfig struct {
	// RequestTimeout is the per-request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// MaxRetries is the number of attempts for read operations that fail
	// with a transient network error. Write operations are never retried.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the initial retry backoff in milliseconds.
	// The delay doubles on each attempt.
	RetryBackoff int `yaml:"retry_backoff"`
}

// SyncConfig contains credential synchronization settings.
type SyncConfig struct {
	// Interval is how often the background sync cycle runs, in seconds.
	// 0 disables periodic sync; runs can still be triggered via the API.
	Interval int `yaml:"interval"`

	// PageSize is the page size requested from device credential searches.
	PageSize int `yaml:"page_size"`
}

// IngestConfig contains webhook ingestion settings.
type IngestConfig struct {
	// SnapshotDir is where inbound event images are written.
	SnapshotDir string `yaml:"snapshot_dir"`

	// DedupeWindow is the in-memory duplicate-delivery window in seconds.
	// Payloads with the same device, timestamp and credential value seen
	// within this window are dropped. 0 disables deduplication.
	DedupeWindow int `yaml:"dedupe_window"`

	// ResolverCacheTTL is the identity-resolution cache TTL in seconds.
	ResolverCacheTTL int `yaml:"resolver_cache_ttl"`
}

// PollerConfig contains device status poller settings.
type PollerConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VELAGATE_SECTION_KEY
// For example: VELAGATE_DATABASE_PATH, VELAGATE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Velagate",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/velagate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "velagate-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Transport: TransportConfig{
			RequestTimeout: 10,
			MaxRetries:     3,
			RetryBackoff:   250,
		},
		Sync: SyncConfig{
			Interval: 300,
			PageSize: 400,
		},
		Ingest: IngestConfig{
			SnapshotDir:      "./data/snapshots",
			DedupeWindow:     10,
			ResolverCacheTTL: 30,
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VELAGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VELAGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("VELAGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("VELAGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("VELAGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VELAGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VELAGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("VELAGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("VELAGATE_SNAPSHOT_DIR"); v != "" {
		cfg.Ingest.SnapshotDir = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Transport.RequestTimeout < 1 {
		errs = append(errs, "transport.request_timeout must be at least 1 second")
	}
	if c.Transport.MaxRetries < 1 {
		errs = append(errs, "transport.max_retries must be at least 1")
	}

	if c.Sync.PageSize < 1 {
		errs = append(errs, "sync.page_size must be at least 1")
	}

	if c.Ingest.SnapshotDir == "" {
		errs = append(errs, "ingest.snapshot_dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the device transport request timeout as a Duration.
func (c *TransportConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetRetryBackoff returns the initial transport retry backoff as a Duration.
func (c *TransportConfig) GetRetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoff) * time.Millisecond
}

// GetInterval returns the background sync interval as a Duration.
func (c *SyncConfig) GetInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// GetDedupeWindow returns the ingest duplicate-delivery window as a Duration.
func (c *IngestConfig) GetDedupeWindow() time.Duration {
	return time.Duration(c.DedupeWindow) * time.Second
}

// GetResolverCacheTTL returns the identity-resolution cache TTL as a Duration.
func (c *IngestConfig) GetResolverCacheTTL() time.Duration {
	return time.Duration(c.ResolverCacheTTL) * time.Second
}

// GetInterval returns the device status poll interval as a Duration.
func (c *PollerConfig) GetInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
