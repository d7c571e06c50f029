// Package api provides the HTTP server for Velagate Core: the admin
// REST API, the inbound device webhook endpoint, and the WebSocket
// live event feed.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/credsync"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
	"github.com/velagate/velagate-core/internal/event"
	"github.com/velagate/velagate-core/internal/infrastructure/config"
	"github.com/velagate/velagate-core/internal/infrastructure/logging"
	"github.com/velagate/velagate-core/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Credentials credential.Repository
	Events      event.Repository
	Pipeline    *ingest.Pipeline
	Sync        *credsync.Engine
	Drivers     *driver.Registry
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP server for Velagate Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	registry    *device.Registry
	credentials credential.Repository
	events      event.Repository
	pipeline    *ingest.Pipeline
	sync        *credsync.Engine
	drivers     *driver.Registry
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Credentials == nil {
		return nil, fmt.Errorf("credential repository is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event repository is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("ingest pipeline is required")
	}
	// Sync and Drivers are optional; the sync and relay endpoints
	// return 503 without them so reads and webhooks still function.

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		registry:    deps.Registry,
		credentials: deps.Credentials,
		events:      deps.Events,
		pipeline:    deps.Pipeline,
		sync:        deps.Sync,
		drivers:     deps.Drivers,
		version:     deps.Version,
	}

	// Use an externally-provided hub if available (needed when the
	// ingest pipeline is wired to the hub before the server exists).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the WebSocket hub, creating it if necessary. The hub is
// the ingest pipeline's broadcast target and must exist before Start().
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
