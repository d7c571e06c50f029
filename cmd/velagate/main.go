// Velagate Core - access control platform for gated communities.
//
// This is the main entry point for the Velagate Core application. It
// wires the device registry, brand drivers, credential sync engine,
// webhook ingestion pipeline, and the HTTP API into one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/velagate/velagate-core/migrations"

	"github.com/velagate/velagate-core/internal/api"
	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/credsync"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
	"github.com/velagate/velagate-core/internal/driver/dahua"
	"github.com/velagate/velagate-core/internal/driver/hikvision"
	"github.com/velagate/velagate-core/internal/event"
	"github.com/velagate/velagate-core/internal/infrastructure/config"
	"github.com/velagate/velagate-core/internal/infrastructure/database"
	"github.com/velagate/velagate-core/internal/infrastructure/influxdb"
	"github.com/velagate/velagate-core/internal/infrastructure/logging"
	"github.com/velagate/velagate-core/internal/infrastructure/mqtt"
	"github.com/velagate/velagate-core/internal/ingest"
	"github.com/velagate/velagate-core/internal/poller"
	"github.com/velagate/velagate-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Velagate Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	credRepo := credential.NewSQLiteRepository(db.DB)
	eventRepo := event.NewSQLiteRepository(db.DB)

	// Device management transport and brand drivers
	httpClient := transport.New(cfg.Transport)
	httpClient.SetLogger(log)

	drivers := driver.NewRegistry()
	drivers.Register(device.BrandHikvision, hikvision.New(httpClient, cfg.Sync.PageSize))
	drivers.Register(device.BrandDahua, dahua.New(httpClient, cfg.Sync.PageSize))
	log.Info("brand drivers registered", "brands", drivers.Brands())

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub, created early so the ingest pipeline can broadcast
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Ingest pipeline with optional fan-out targets. Interface fields
	// must stay nil (not a typed nil pointer) when a sink is disabled.
	ingestOpts := ingest.Options{
		Broadcaster: hub,
		Pairer:      eventRepo,
		Logger:      log,
	}
	if mqttClient != nil {
		ingestOpts.Publisher = mqttClient
	}
	if influxClient != nil {
		ingestOpts.Telemetry = influxClient
	}

	pipeline := ingest.New(ingest.Config{
		SnapshotDir:      cfg.Ingest.SnapshotDir,
		DedupeWindow:     time.Duration(cfg.Ingest.DedupeWindow) * time.Second,
		ResolverCacheTTL: time.Duration(cfg.Ingest.ResolverCacheTTL) * time.Second,
	}, registry, credRepo, eventRepo, ingestOpts)
	defer pipeline.Close()

	// Credential sync engine
	engine := credsync.New(drivers, credRepo, registry)
	engine.SetLogger(log)
	if cfg.Sync.Interval > 0 {
		go engine.Run(ctx, time.Duration(cfg.Sync.Interval)*time.Second)
		log.Info("background sync started", "interval_s", cfg.Sync.Interval)
	} else {
		log.Info("background sync disabled")
	}

	// Device status poller
	if cfg.Poller.Enabled {
		pollerOpts := poller.Options{Logger: log}
		if mqttClient != nil {
			pollerOpts.Publisher = mqttClient
		}
		if influxClient != nil {
			pollerOpts.Recorder = influxClient
		}
		statusPoller := poller.New(registry, drivers, pollerOpts)
		go statusPoller.Run(ctx, time.Duration(cfg.Poller.Interval)*time.Second)
		log.Info("status poller started", "interval_s", cfg.Poller.Interval)
	} else {
		log.Info("status poller disabled")
	}

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Registry:    registry,
		Credentials: credRepo,
		Events:      eventRepo,
		Pipeline:    pipeline,
		Sync:        engine,
		Drivers:     drivers,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Ingest pipeline (drains fan-out goroutines)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Velagate Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VELAGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VELAGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
