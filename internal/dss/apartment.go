package dss

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Facade defaults.
const (
	// DefaultSubscriptionID is the event subscription used by the pipeline.
	DefaultSubscriptionID = 911

	// DefaultPollTimeout is how long the server holds an event/get request.
	DefaultPollTimeout = 3 * time.Second

	// DefaultRetryDelay is the pause after a failed poll.
	DefaultRetryDelay = time.Second

	// DefaultEventBuffer is the capacity of the consumer channel.
	DefaultEventBuffer = 64

	// unsubscribeTimeout bounds the best-effort unsubscribe on Close.
	unsubscribeTimeout = 5 * time.Second
)

// Logger is the logging surface used by the package.
// *logging.Logger satisfies it.
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

// options collects the settings applied by Option values.
type options struct {
	client         ClientConfig
	logger         Logger
	store          Store
	subscriptionID int
	pollTimeout    time.Duration
	retryDelay     time.Duration
	eventBuffer    int
}

// Option configures an Apartment.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStore enables persistence of the structure snapshot.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithPort overrides the dSS port used by Connect.
func WithPort(port int) Option {
	return func(o *options) { o.client.Port = port }
}

// WithInsecureSkipVerify accepts the server's self-signed certificate.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) { o.client.InsecureSkipVerify = skip }
}

// WithRequestTimeout bounds each request made by Connect's client.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.client.Timeout = d }
}

// WithSubscriptionID sets the event subscription id.
func WithSubscriptionID(id int) Option {
	return func(o *options) { o.subscriptionID = id }
}

// WithPollTimeout sets how long each event poll may be held by the server.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) { o.pollTimeout = d }
}

// WithRetryDelay sets the pause after a failed event poll.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { o.retryDelay = d }
}

// WithEventBuffer sets the capacity of the channel returned by EventChannel.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:         noopLogger{},
		subscriptionID: DefaultSubscriptionID,
		pollTimeout:    DefaultPollTimeout,
		retryDelay:     DefaultRetryDelay,
		eventBuffer:    DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pollTimeout <= 0 {
		o.pollTimeout = DefaultPollTimeout
	}
	if o.retryDelay < 0 {
		o.retryDelay = 0
	}
	if o.eventBuffer < 0 {
		o.eventBuffer = 0
	}
	return o
}

// Apartment is the stateful view of one dSS installation. It owns the
// structure cache and at most one event pipeline.
type Apartment struct {
	api  *RawAPI
	opts options
	log  Logger

	mu       sync.Mutex
	zones    []Zone
	pipeline *pipeline
	closed   bool
}

// Connect logs in to the dSS and builds the structure from scratch.
func Connect(ctx context.Context, host, user, password string, opts ...Option) (*Apartment, error) {
	o := buildOptions(opts)
	o.client.Host = host
	o.client.User = user
	o.client.Password = password

	client := NewClient(o.client)
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	return Open(ctx, client, opts...)
}

// ConnectWithPersistence logs in and loads the structure from path. The
// structure is only built (and saved) when the file holds no zones.
func ConnectWithPersistence(ctx context.Context, host, user, password, path string, opts ...Option) (*Apartment, error) {
	opts = append(opts[:len(opts):len(opts)], WithStore(NewFileStore(path)))
	return Connect(ctx, host, user, password, opts...)
}

// Open creates an Apartment over an existing Requester. With a store the
// snapshot is loaded first and a build only happens when it is empty or
// unreadable; without one the structure is always built.
func Open(ctx context.Context, req Requester, opts ...Option) (*Apartment, error) {
	if req == nil {
		return nil, errors.New("dss: requester is required")
	}

	o := buildOptions(opts)
	a := &Apartment{
		api:  NewRawAPI(req),
		opts: o,
		log:  o.logger,
	}

	if o.store != nil {
		zones, found, err := o.store.Load(ctx)
		switch {
		case err != nil:
			a.log.Warn("stored structure unreadable, rebuilding", "error", err)
		case found && len(zones) > 0:
			a.zones = zones
			a.log.Info("structure loaded from store", "zones", len(zones))
			return a, nil
		}
	}

	if _, err := a.UpdateAll(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// API returns the stateless endpoint wrapper used by the apartment.
func (a *Apartment) API() *RawAPI {
	return a.api
}

// Zones returns a deep copy of the cached structure.
func (a *Apartment) Zones() ([]Zone, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrConcurrency
	}
	return cloneZones(a.zones), nil
}

// UpdateAll rebuilds the structure from the server, replaces the cache and
// returns a copy of the new structure. The cache stays locked for the
// whole build, so event updates and other writers wait and then land on
// the new structure. The cache is left untouched when the build fails.
func (a *Apartment) UpdateAll(ctx context.Context) ([]Zone, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrConcurrency
	}

	b := builder{api: a.api, log: a.log}
	zones, err := b.build(ctx)
	if err != nil {
		return nil, err
	}
	a.zones = zones
	a.persistLocked(ctx)
	return cloneZones(zones), nil
}

// Value returns the cached status of the first group in zone with the
// given id.
func (a *Apartment) Value(zone, group int) (Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return UnknownValue(), ErrConcurrency
	}

	zi := findZone(a.zones, zone)
	if zi < 0 {
		return UnknownValue(), fmt.Errorf("%w: zone %d", ErrLookup, zone)
	}
	for _, g := range a.zones[zi].Groups {
		if g.ID == group {
			return g.Status, nil
		}
	}
	return UnknownValue(), fmt.Errorf("%w: zone %d group %d", ErrLookup, zone, group)
}

// SetValue drives a zone, or one group of it, towards v.
//
// Light values and the fully open or fully closed shadow positions become
// scene calls. Any other shadow position is written to the devices
// directly and the cached status is overwritten, because no event reports
// it. An unknown value does nothing.
func (a *Apartment) SetValue(ctx context.Context, zone int, group *int, v Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrConcurrency
	}
	if v.IsUnknown() {
		return nil
	}

	zi := findZone(a.zones, zone)
	if zi < 0 {
		return fmt.Errorf("%w: zone %d", ErrLookup, zone)
	}

	if v.IsLight() {
		return a.api.CallAction(ctx, zone, lightAction(v, group))
	}

	switch {
	case v.Open <= 0.1:
		return a.api.CallAction(ctx, zone, shadowAction(ActionAllShadowUp, ActionShadowUp, group))
	case v.Open >= 0.9 && v.Angle <= 0.1:
		return a.api.CallAction(ctx, zone, shadowAction(ActionAllShadowDown, ActionShadowDown, group))
	default:
		return a.writeShadowLocked(ctx, zi, group, v)
	}
}

func lightAction(v Value, group *int) Action {
	switch {
	case group == nil && v.On():
		return Action{Kind: ActionAllLightOn}
	case group == nil:
		return Action{Kind: ActionAllLightOff}
	case v.On():
		return Action{Kind: ActionLightOn, Group: *group}
	default:
		return Action{Kind: ActionLightOff, Group: *group}
	}
}

func shadowAction(all, sub ActionKind, group *int) Action {
	if group == nil {
		return Action{Kind: all}
	}
	return Action{Kind: sub, Group: *group}
}

// writeShadowLocked drives shadow devices to an intermediate position and
// records it as the status of every affected group. The caller holds a.mu.
func (a *Apartment) writeShadowLocked(ctx context.Context, zi int, group *int, v Value) error {
	z := &a.zones[zi]

	var targets []int
	for gi, g := range z.Groups {
		if g.Type != TypeShadow {
			continue
		}
		if group == nil || g.ID == *group {
			targets = append(targets, gi)
		}
	}
	if group != nil && len(targets) == 0 {
		return fmt.Errorf("%w: zone %d shadow group %d", ErrLookup, z.ID, *group)
	}

	seen := make(map[string]bool)
	for _, gi := range targets {
		for _, d := range z.Groups[gi].Devices {
			if d.DeviceType != DeviceShadow || seen[d.ID] {
				continue
			}
			seen[d.ID] = true

			if err := a.api.SetShadowOpen(ctx, d.ID, v.Open); err != nil {
				return fmt.Errorf("setting opening of device %s: %w", d.ID, err)
			}
			if err := a.api.SetShadowAngle(ctx, d.ID, v.Angle); err != nil {
				return fmt.Errorf("setting angle of device %s: %w", d.ID, err)
			}
		}
	}

	for _, gi := range targets {
		z.Groups[gi].Status = Shadow(v.Open, v.Angle)
	}
	a.persistLocked(ctx)
	return nil
}

// EventChannel subscribes to scene events and starts a new pipeline. Any
// previous pipeline is retired first and its channel closed, so at most one
// channel receives events at a time.
//
// ctx bounds the lifetime of the pipeline and should outlive the consumer.
func (a *Apartment) EventChannel(ctx context.Context) (<-chan Event, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrConcurrency
	}
	old := a.pipeline
	a.pipeline = nil
	a.mu.Unlock()

	if old != nil {
		old.stop()
	}

	if err := a.api.Subscribe(ctx, a.opts.subscriptionID); err != nil {
		return nil, fmt.Errorf("subscribing to %s events: %w", EventCallScene, err)
	}

	p := newPipeline(a.opts.eventBuffer)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrConcurrency
	}
	if a.pipeline != nil {
		a.pipeline.stop()
	}
	a.pipeline = p
	a.mu.Unlock()

	raw := make(chan rawBatch)
	go a.poll(ctx, p, raw)
	go a.dispatch(ctx, p, raw)

	a.log.Info("event pipeline started", "subscription_id", a.opts.subscriptionID)
	return p.out, nil
}

// Close retires the event pipeline and rejects further calls. It does not
// wait for the pipeline goroutines.
func (a *Apartment) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	p := a.pipeline
	a.pipeline = nil
	a.mu.Unlock()

	if p == nil {
		return nil
	}
	p.stop()

	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if err := a.api.Unsubscribe(ctx, a.opts.subscriptionID); err != nil {
		a.log.Debug("event unsubscribe failed", "error", err)
	}
	return nil
}

// persistLocked saves the cache if a store is configured. Failures are
// logged only. The caller holds a.mu.
func (a *Apartment) persistLocked(ctx context.Context) {
	if a.opts.store == nil {
		return
	}
	if err := a.opts.store.Save(ctx, a.zones); err != nil {
		a.log.Warn("persisting structure failed", "error", err)
	}
}
