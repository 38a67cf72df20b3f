package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// requestTimeoutSeconds bounds each HTTP call, including batch flushes.
	requestTimeoutSeconds = 10

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Stats counts the points handed to the batching writer.
type Stats struct {
	Queued uint64 `json:"queued"`
	Failed uint64 `json:"failed"`
}

// Client records dSS group statuses in InfluxDB.
//
// Writes never block: points are batched by the library and failures are
// counted and reported through the SetOnError callback. All methods are
// safe for concurrent use, including on the zero Client, which behaves
// as a closed one.
type Client struct {
	client influxdb2.Client
	writer api.WriteAPI

	open   atomic.Bool
	queued atomic.Uint64
	failed atomic.Uint64

	cbMu    sync.RWMutex
	onError func(err error)
}

// Connect pings the server and starts the batching writer for cfg.Org and
// cfg.Bucket. It returns ErrDisabled when influxdb.enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush / time.Millisecond)).
		SetPrecision(time.Millisecond).
		SetHTTPRequestTimeout(requestTimeoutSeconds)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)
	go c.drainErrors(c.writer.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// drainErrors counts asynchronous batch failures and forwards them.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.cbMu.RLock()
		cb := c.onError
		c.cbMu.RUnlock()
		if cb != nil {
			cb(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError registers the callback for failed batch writes.
func (c *Client) SetOnError(cb func(err error)) {
	c.cbMu.Lock()
	c.onError = cb
	c.cbMu.Unlock()
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// Stats returns the write counters since Connect.
func (c *Client) Stats() Stats {
	return Stats{Queued: c.queued.Load(), Failed: c.failed.Load()}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush writes all buffered points now. It is a no-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes buffered points and releases the client. Later writes are
// discarded.
func (c *Client) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writer.Flush()
	c.client.Close()
	return nil
}
