package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/infrastructure/config"
)

// maxResponseBody bounds how much of a device response we read (4 MB).
// Credential search pages and status documents are far smaller; only a
// misbehaving device would exceed this.
const maxResponseBody = 4 << 20

// Logger is the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Response is the outcome of a successful device call.
type Response struct {
	Status int
	Body   []byte
}

// Client issues authenticated HTTP requests to device management APIs.
//
// Digest authentication is handled transparently: a 401 with a digest
// challenge triggers exactly one authenticated retry. Basic auth is a
// per-device fallback for brands that never implemented digest.
//
// Transient network failures are retried with exponential backoff for
// read (GET) calls only. Writes are never blindly retried: some devices
// are not idempotent on a duplicate add.
//
// All methods are safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        config.TransportConfig
	logger     Logger
}

// New creates a transport client with the given configuration.
func New(cfg config.TransportConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.GetRequestTimeout(),
		},
		cfg:    cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Get issues an authenticated GET. Transient failures are retried with
// bounded exponential backoff.
func (c *Client) Get(ctx context.Context, dev *device.Device, path string) (*Response, error) {
	return c.do(ctx, dev, http.MethodGet, path, nil, "", true)
}

// Post issues an authenticated POST. Never retried on network failure.
func (c *Client) Post(ctx context.Context, dev *device.Device, path string, body []byte, contentType string) (*Response, error) {
	return c.do(ctx, dev, http.MethodPost, path, body, contentType, false)
}

// Put issues an authenticated PUT. Never retried on network failure.
func (c *Client) Put(ctx context.Context, dev *device.Device, path string, body []byte, contentType string) (*Response, error) {
	return c.do(ctx, dev, http.MethodPut, path, body, contentType, false)
}

// Delete issues an authenticated DELETE. Never retried on network failure.
func (c *Client) Delete(ctx context.Context, dev *device.Device, path string, body []byte, contentType string) (*Response, error) {
	return c.do(ctx, dev, http.MethodDelete, path, body, contentType, false)
}

// do runs one logical device call: attempt, digest handshake if
// challenged, and bounded retries for transient failures on idempotent
// calls.
func (c *Client) do(ctx context.Context, dev *device.Device, method, path string, body []byte, contentType string, idempotent bool) (*Response, error) {
	attempts := 1
	if idempotent && c.cfg.MaxRetries > 1 {
		attempts = c.cfg.MaxRetries
	}

	backoff := c.cfg.GetRetryBackoff()
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// Context-aware wait so a cancelled sync run or a dying
			// device doesn't pin a goroutine in time.Sleep.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := c.attempt(ctx, dev, method, path, body, contentType)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isTransient(err) {
			return nil, err
		}
		c.logger.Debug("device call failed, will retry",
			"device_id", dev.ID, "method", method, "path", path,
			"attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

// attempt performs a single request including the digest handshake.
func (c *Client) attempt(ctx context.Context, dev *device.Device, method, path string, body []byte, contentType string) (*Response, error) {
	url := fmt.Sprintf("http://%s:%d%s", dev.Host, dev.Port, path)

	req, err := c.newRequest(ctx, method, url, body, contentType)
	if err != nil {
		return nil, err
	}
	if dev.AuthMode == device.AuthBasic {
		req.Header.Set("Authorization", basicAuth(dev.Username, dev.Password))
	}

	status, respBody, header, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && dev.AuthMode == device.AuthDigest {
		ch, err := parseChallenge(header.Get("WWW-Authenticate"))
		if err != nil {
			return nil, err
		}

		// Exactly one authenticated retry per call. A second 401 means
		// the credentials are wrong, not that the nonce went stale.
		req, err = c.newRequest(ctx, method, url, body, contentType)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization",
			digestResponse(ch, dev.Username, dev.Password, method, req.URL.RequestURI(), newCnonce(), 1))

		status, respBody, _, err = c.roundTrip(req)
		if err != nil {
			return nil, err
		}
	}

	if status == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: device %s", ErrAuth, dev.ID)
	}

	return &Response{Status: status, Body: respBody}, nil
}

// newRequest builds a request with a fresh body reader.
func (c *Client) newRequest(ctx context.Context, method, url string, body []byte, contentType string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// roundTrip executes a request and drains the response.
func (c *Client) roundTrip(req *http.Request) (int, []byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Respect caller cancellation over the transient classification.
		if req.Context().Err() != nil {
			return 0, nil, nil, req.Context().Err()
		}
		return 0, nil, nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	return resp.StatusCode, body, resp.Header, nil
}

// isTransient reports whether an error is worth a retry.
func isTransient(err error) bool {
	return err != nil && !isContextErr(err) && errors.Is(err, ErrTransient)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// basicAuth builds a Basic Authorization header value.
func basicAuth(username, password string) string {
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + credentials
}
