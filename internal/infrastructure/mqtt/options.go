package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	maxQoS = 2
)

// Values of statusPayload.Status and .Reason.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonLostClient = "unexpected_disconnect"
)

// brokerURL returns tcp://host:port, or ssl:// when TLS is on.
func brokerURL(b config.MQTTBrokerConfig) *url.URL {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return &url.URL{Scheme: scheme, Host: net.JoinHostPort(b.Host, strconv.Itoa(b.Port))}
}

// buildClientOptions maps the mqtt config section onto paho options. The
// session is clean; Client restores its routes itself on every connect.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	retry := time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker).String()).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retry).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// statusPayload is the retained body of the system status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusMessage(status, clientID, reason string) []byte {
	b, _ := json.Marshal(statusPayload{ //nolint:errcheck // only strings
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// configureLWT has the broker mark the daemon offline when the session
// drops without a DISCONNECT.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetBinaryWill(topics.SystemStatus(), statusMessage(statusOffline, clientID, reasonLostClient), 1, true)
}
