package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

const (
	// commandTimeout bounds a SetValue triggered by an MQTT command.
	commandTimeout = 10 * time.Second

	// recordTimeout bounds a single history insert.
	recordTimeout = 2 * time.Second

	// ChannelEvent is the WebSocket channel resolved events are broadcast on.
	ChannelEvent = "dss.event"
)

// Apartment is the part of *dss.Apartment the relay drives.
type Apartment interface {
	Zones() ([]dss.Zone, error)
	SetValue(ctx context.Context, zone int, group *int, v dss.Value) error
	EventChannel(ctx context.Context) (<-chan dss.Event, error)
}

// MQTTClient is the subset of *mqtt.Client used for publishing events and
// receiving commands.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// StatusWriter records group statuses as time series. Satisfied by
// *influxdb.Client.
type StatusWriter interface {
	WriteGroupStatus(s influxdb.GroupStatus)
}

// Broadcaster pushes messages to live subscribers. Satisfied by *api.Hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HistoryRecorder stores status changes locally. Satisfied by
// *snapshot.HistoryRepository.
type HistoryRecorder interface {
	Record(ctx context.Context, e snapshot.HistoryEntry) error
}

// Logger is the structured logger used by the relay.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Relay. Only Apartment is required; every sink left
// nil is skipped.
type Options struct {
	Apartment Apartment

	MQTT   MQTTClient
	Topics mqtt.Topics
	QoS    byte

	Influx      StatusWriter
	Broadcaster Broadcaster
	History     HistoryRecorder
	Logger      Logger
}

// Relay fans the event stream of an Apartment out to MQTT, InfluxDB, the
// WebSocket hub and the local history, and turns MQTT commands into
// SetValue calls.
//
// Thread Safety: All methods are safe for concurrent use.
type Relay struct {
	apt         Apartment
	mqtt        MQTTClient
	topics      mqtt.Topics
	qos         byte
	influx      StatusWriter
	broadcaster Broadcaster
	history     HistoryRecorder
	log         Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// New creates a relay. Call Start to begin forwarding.
func New(opts Options) (*Relay, error) {
	if opts.Apartment == nil {
		return nil, errors.New("relay: apartment is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("relay: invalid QoS %d", opts.QoS)
	}

	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		apt:         opts.Apartment,
		mqtt:        opts.MQTT,
		topics:      opts.Topics,
		qos:         opts.QoS,
		influx:      opts.Influx,
		broadcaster: opts.Broadcaster,
		history:     opts.History,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start subscribes to MQTT commands, opens the event channel and
// publishes the current status of every group. Events are forwarded until
// ctx is cancelled or Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.started {
		return errors.New("relay: already started")
	}
	if r.ctx.Err() != nil {
		return errors.New("relay: stopped")
	}

	if r.mqtt != nil {
		if err := r.mqtt.Subscribe(r.topics.AllCommands(), r.qos, r.handleCommand); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(r.ctx)
	stop := context.AfterFunc(ctx, cancel)

	events, err := r.apt.EventChannel(runCtx)
	if err != nil {
		stop()
		cancel()
		return fmt.Errorf("opening event channel: %w", err)
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer stop()
		defer cancel()
		r.forward(runCtx, events)
	}()

	r.PublishStates(runCtx, snapshot.SourceResync)
	r.log.Info("relay started", "mqtt", r.mqtt != nil, "influx", r.influx != nil, "websocket", r.broadcaster != nil)
	return nil
}

// Stop ends forwarding and waits for in-flight work. It is idempotent.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
		r.log.Info("relay stopped")
	})
}

func (r *Relay) forward(ctx context.Context, events <-chan dss.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				r.log.Warn("event channel closed")
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

// PublishStates publishes the cached status of every group. It runs after
// the initial start, after each resync and on every MQTT reconnect.
func (r *Relay) PublishStates(ctx context.Context, source string) {
	zones, err := r.apt.Zones()
	if err != nil {
		r.log.Warn("reading zones for state publish", "error", err)
		return
	}

	published := 0
	for _, z := range zones {
		for _, g := range z.Groups {
			if ctx.Err() != nil {
				return
			}
			msg := StateMessage{
				ZoneID:    z.ID,
				Type:      g.Type,
				GroupID:   g.ID,
				Value:     g.Status,
				Source:    source,
				UpdatedAt: time.Now().UTC(),
			}
			r.publishState(msg)
			r.writeInflux(msg, nil)
			published++
		}
	}
	r.log.Debug("group states published", "groups", published, "source", source)
}
