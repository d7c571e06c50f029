package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/velagate/velagate-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client is the telemetry sink over the InfluxDB v2 non-blocking write
// API. Points are batched in the client and flushed on an interval;
// per-point errors arrive asynchronously through the error callback.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected bool
	mu        sync.RWMutex

	// onError receives async write failures, set via SetOnError.
	onError func(err error)
}

// Connect builds the batching client and verifies the server with a
// ping before handing it out. A sink that cannot reach its server at
// startup is reported immediately rather than dropping points forever.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values forced positive above
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}

	go c.handleWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// handleWriteErrors forwards async write failures to the callback.
// The channel closes when the write API is shut down.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes pending points and shuts down the client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()

	return nil
}

// HealthCheck pings the server within the ping timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}

	return nil
}

// IsConnected returns the last known connection state. HealthCheck
// performs an active ping when that matters.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback invoked for asynchronous write
// failures. Point writes never block or return errors themselves.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}
