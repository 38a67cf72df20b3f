package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
)

// Client is the broker connection of dss-sync.
//
// Command subscriptions are remembered and re-established after every
// reconnect, and the retained online status is republished with them.
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	up atomic.Bool

	mu           sync.RWMutex
	routes       map[string]route
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// route is one remembered subscription.
type route struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one received message. A returned error is
// logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the CONNACK. The broker is told
// to publish a retained offline status if the connection drops uncleanly.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		routes: make(map[string]route),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := await(ctx, c.paho.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}

	// The OnConnect handler runs on its own goroutine and may still be
	// pending here.
	c.up.Store(true)
	return c, nil
}

// await waits for a paho token, bounded by limit and ctx.
func await(ctx context.Context, tok pahomqtt.Token, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("no acknowledgement after %v", limit)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// connected runs on the initial connect and on every reconnect.
func (c *Client) connected() {
	c.up.Store(true)

	c.mu.RLock()
	routes := make(map[string]route, len(c.routes))
	for filter, r := range c.routes {
		routes[filter] = r
	}
	cb := c.onConnect
	c.mu.RUnlock()

	for filter, r := range routes {
		tok := c.paho.Subscribe(filter, r.qos, c.wrapHandler(r.handler))
		go func() {
			if err := await(context.Background(), tok, defaultPublishTimeout); err != nil {
				c.log().Error("MQTT resubscribe failed", "topic", filter, "error", err)
			}
		}()
	}
	c.paho.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, statusMessage(statusOnline, c.cfg.Broker.ClientID, ""))
	c.log().Info("MQTT session established", "subscriptions", len(routes))

	if cb != nil {
		cb()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)
	c.log().Warn("MQTT connection lost", "error", err)

	c.mu.RLock()
	cb := c.onDisconnect
	c.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// Close publishes the graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		tok := c.paho.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, statusMessage(statusOffline, c.cfg.Broker.ClientID, reasonShutdown))
		if err := await(context.Background(), tok, defaultPublishTimeout); err != nil {
			c.log().Warn("MQTT offline status not acknowledged", "error", err)
		}
	}
	c.up.Store(false)
	c.paho.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.paho != nil && c.paho.IsConnectionOpen()
}

// SetOnConnect registers a callback for the initial connect and every
// reconnect.
func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for a lost connection.
func (c *Client) SetOnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

// SetLogger sets the logger for connection changes and handler failures.
func (c *Client) SetLogger(l Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return discard{}
	}
	return c.logger
}

type discard struct{}

func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

// wrapHandler logs handler errors and recovers handler panics, so a bad
// command payload cannot take down paho's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
