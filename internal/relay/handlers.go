package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

// handleEvent forwards one dispatched event to every configured sink.
// Unknown values are still published as events but never overwrite the
// retained state.
func (r *Relay) handleEvent(ctx context.Context, ev dss.Event) {
	now := time.Now().UTC()
	msg := EventMessage{
		EventID:   uuid.NewString(),
		Timestamp: now,
		Event:     ev,
	}

	r.log.Debug("dss event",
		"event_id", msg.EventID,
		"zone", ev.ZoneID,
		"type", ev.Type.String(),
		"group", ev.Group,
		"scene", ev.Scene,
		"value", ev.Value.String(),
	)

	r.publishJSON(r.topics.Event(ev.ZoneID, ev.Type.String(), ev.Group), msg, false)

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelEvent, msg)
	}

	if ev.Value.IsUnknown() {
		return
	}

	state := StateMessage{
		ZoneID:    ev.ZoneID,
		Type:      ev.Type,
		GroupID:   ev.Group,
		Value:     ev.Value,
		Source:    snapshot.SourceEvent,
		UpdatedAt: now,
	}
	r.publishState(state)

	scene := ev.Scene
	r.writeInflux(state, &scene)
	r.record(ctx, state, &scene)
}

// handleCommand turns a message on {prefix}/command/{zone}[/{group}] into
// a SetValue call.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	zone, group, err := r.topics.ParseCommand(topic)
	if err != nil {
		return err
	}
	v, err := dss.ParseValue(payload)
	if err != nil {
		return fmt.Errorf("zone %d: %w", zone, err)
	}

	ctx, cancel := context.WithTimeout(r.ctx, commandTimeout)
	defer cancel()

	if err := r.apt.SetValue(ctx, zone, group, v); err != nil {
		return fmt.Errorf("setting zone %d to %s: %w", zone, v, err)
	}
	r.log.Info("command applied", "zone", zone, "group", groupAttr(group), "value", v.String())

	if v.IsUnknown() {
		return nil
	}
	state := StateMessage{
		ZoneID:    zone,
		Type:      typeOfValue(v),
		GroupID:   groupOrZero(group),
		Value:     v,
		Source:    snapshot.SourceCommand,
		UpdatedAt: time.Now().UTC(),
	}
	r.writeInflux(state, nil)
	r.record(ctx, state, nil)
	return nil
}

func (r *Relay) publishState(s StateMessage) {
	r.publishJSON(r.topics.State(s.ZoneID, s.Type.String(), s.GroupID), s, true)
}

func (r *Relay) publishJSON(topic string, v any, retained bool) {
	if r.mqtt == nil {
		return
	}
	if !r.mqtt.IsConnected() {
		r.log.Debug("mqtt disconnected, dropping publish", "topic", topic)
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		r.log.Error("marshalling mqtt payload", "topic", topic, "error", err)
		return
	}
	if err := r.mqtt.Publish(topic, payload, r.qos, retained); err != nil {
		r.log.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (r *Relay) writeInflux(s StateMessage, scene *int) {
	if r.influx == nil {
		return
	}
	r.influx.WriteGroupStatus(influxdb.GroupStatus{
		ZoneID:  s.ZoneID,
		Type:    s.Type,
		GroupID: s.GroupID,
		Value:   s.Value,
		Scene:   scene,
		Source:  s.Source,
		At:      s.UpdatedAt,
	})
}

func (r *Relay) record(ctx context.Context, s StateMessage, scene *int) {
	if r.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := r.history.Record(ctx, snapshot.HistoryEntry{
		ZoneID:     s.ZoneID,
		Type:       s.Type,
		GroupID:    s.GroupID,
		Status:     s.Value,
		Scene:      scene,
		Source:     s.Source,
		RecordedAt: s.UpdatedAt,
	})
	if err != nil {
		r.log.Warn("recording status history", "zone", s.ZoneID, "group", s.GroupID, "error", err)
	}
}

func typeOfValue(v dss.Value) dss.Type {
	if v.IsShadow() {
		return dss.TypeShadow
	}
	return dss.TypeLight
}

func groupOrZero(group *int) int {
	if group == nil {
		return 0
	}
	return *group
}

func groupAttr(group *int) any {
	if group == nil {
		return "all"
	}
	return *group
}
