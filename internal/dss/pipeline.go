package dss

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// rawBatch is one event/get round trip handed from the poller to the
// dispatcher.
type rawBatch struct {
	result any
	err    error
}

// pipeline is the shared state of one poll/dispatch pair.
type pipeline struct {
	running atomic.Bool
	done    chan struct{}
	out     chan Event

	// sendMu orders deliveries against stop: once stop returns, nothing
	// more is sent on out.
	sendMu   sync.Mutex
	stopOnce sync.Once
}

func newPipeline(buffer int) *pipeline {
	p := &pipeline{
		done: make(chan struct{}),
		out:  make(chan Event, buffer),
	}
	p.running.Store(true)
	return p
}

// stop retires the pipeline. Safe to call more than once.
func (p *pipeline) stop() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
		close(p.done)
		p.sendMu.Lock()
		//nolint:staticcheck // empty critical section waits out an in-progress send
		p.sendMu.Unlock()
	})
}

// deliver publishes e unless the pipeline has been retired.
func (p *pipeline) deliver(ctx context.Context, e Event) bool {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if !p.running.Load() {
		return false
	}
	select {
	case p.out <- e:
		return true
	case <-p.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// poll is stage A: it long-polls event/get and forwards every round trip,
// successful or not. An in-flight poll is never interrupted by stop.
func (a *Apartment) poll(ctx context.Context, p *pipeline, raw chan<- rawBatch) {
	defer close(raw)

	timeoutMs := int(a.opts.pollTimeout / time.Millisecond)
	for p.running.Load() {
		res, err := a.api.PollEvents(ctx, a.opts.subscriptionID, timeoutMs)

		select {
		case raw <- rawBatch{result: res, err: err}:
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}

		if err != nil && a.opts.retryDelay > 0 {
			select {
			case <-time.After(a.opts.retryDelay):
			case <-p.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatch is stage B: it decodes batches, expands and resolves events,
// updates the cache and publishes to the consumer. It closes the consumer
// channel when it exits.
func (a *Apartment) dispatch(ctx context.Context, p *pipeline, raw <-chan rawBatch) {
	defer close(p.out)

	for {
		var batch rawBatch
		select {
		case b, ok := <-raw:
			if !ok {
				return
			}
			batch = b
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}

		if batch.err != nil {
			a.log.Warn("event poll failed", "error", batch.err)
			continue
		}

		events, err := DecodeEvents(batch.result)
		if err != nil {
			a.log.Warn("dropping malformed event batch", "error", err)
			continue
		}

		for _, ev := range events {
			for _, e := range a.expand(ev) {
				full, resolved := a.resolve(ctx, e)
				if !resolved {
					continue
				}
				a.apply(ctx, full)
				if !p.deliver(ctx, full) {
					return
				}
			}
		}
	}
}

// expand turns a zone-wide shadow step into one event per shadow group of
// the zone. Events for zones missing from the cache are dropped.
func (a *Apartment) expand(ev Event) []Event {
	if ev.Type != TypeShadow ||
		(ev.Action.Kind != ActionShadowStepOpen && ev.Action.Kind != ActionShadowStepClose) {
		return []Event{ev}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	zi := findZone(a.zones, ev.ZoneID)
	if zi < 0 {
		a.log.Debug("dropping step event for unknown zone", "zone", ev.ZoneID)
		return nil
	}

	var out []Event
	for _, g := range a.zones[zi].Groups {
		if g.Type != TypeShadow {
			continue
		}
		e := ev
		e.Group = g.ID
		out = append(out, e)
	}
	return out
}

// resolve fills an unknown shadow value from the group's first device.
// resolved is false when a lookup failed; such events neither touch the
// cache nor reach the consumer.
func (a *Apartment) resolve(ctx context.Context, e Event) (Event, bool) {
	if e.Type != TypeShadow || !e.Value.IsUnknown() {
		return e, true
	}

	dsid, ok := a.firstDevice(e.ZoneID, TypeShadow, e.Group)
	if !ok {
		a.log.Warn("shadow value unresolved: group has no devices",
			"zone", e.ZoneID, "group", e.Group)
		return e, false
	}

	v, err := a.api.ShadowValue(ctx, dsid)
	if err != nil {
		a.log.Warn("shadow value unresolved",
			"zone", e.ZoneID, "group", e.Group, "device", dsid, "error", err)
		return e, false
	}
	e.Value = v
	return e, true
}

func (a *Apartment) firstDevice(zone int, t Type, group int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	zi := findZone(a.zones, zone)
	if zi < 0 {
		return "", false
	}
	for _, g := range a.zones[zi].Groups {
		if g.Type == t && g.ID == group && len(g.Devices) > 0 {
			return g.Devices[0].ID, true
		}
	}
	return "", false
}

// apply overwrites the cached status of the group an event addresses and
// persists when it changed.
func (a *Apartment) apply(ctx context.Context, e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	zi := findZone(a.zones, e.ZoneID)
	if zi < 0 {
		return
	}
	z := &a.zones[zi]
	for gi := range z.Groups {
		g := &z.Groups[gi]
		if g.Type != e.Type || g.ID != e.Group {
			continue
		}
		if g.Status == e.Value {
			return
		}
		g.Status = e.Value
		a.persistLocked(ctx)
		return
	}
}
