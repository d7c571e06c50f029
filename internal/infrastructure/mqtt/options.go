package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/velagate/velagate-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long Disconnect waits for
	// in-flight publishes, in milliseconds per the paho API.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive = 60 * time.Second
)

// buildClientOptions maps the broker section of the config onto paho
// options. Reconnection is delegated to paho with the configured
// backoff bounds.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// The republisher carries no broker-side state worth resuming:
	// events missed while offline are served by the HTTP API, not
	// queued on the broker.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT registers the retained offline status the broker emits
// if the core drops without a graceful shutdown, so subscribers can
// distinguish "no events" from "core is down".
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(Topics{}.SystemStatus(), statusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// systemStatus is the JSON body published on the system status topic.
type systemStatus struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(clientID, status, reason string) string {
	b, _ := json.Marshal(systemStatus{ //nolint:errcheck // fixed shape
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(b)
}
