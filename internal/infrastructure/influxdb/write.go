package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// measurementGroupStatus holds one point per observed group status.
const measurementGroupStatus = "group_status"

// GroupStatus is one observation of a group's value.
type GroupStatus struct {
	ZoneID  int
	Type    dss.Type
	GroupID int
	Value   dss.Value

	// Scene is the triggering scene number, or nil for resyncs and commands.
	Scene *int

	// Source is "event", "command" or "resync".
	Source string
	At     time.Time
}

// WriteGroupStatus queues a group_status point. Unknown values are skipped
// since they carry no field to record.
func (c *Client) WriteGroupStatus(s GroupStatus) {
	if !c.IsConnected() {
		return
	}
	if p := groupStatusPoint(s); p != nil {
		c.writer.WritePoint(p)
		c.queued.Add(1)
	}
}

// groupStatusPoint builds the point for s, or nil when s has no fields.
//
// Tags: zone, type, group, kind, source. Fields: level and on for lights,
// open and angle for shadows, and scene when known.
func groupStatusPoint(s GroupStatus) *write.Point {
	fields := make(map[string]any, 3)
	switch {
	case s.Value.IsLight():
		fields["level"] = s.Value.Level
		fields["on"] = s.Value.On()
	case s.Value.IsShadow():
		fields["open"] = s.Value.Open
		fields["angle"] = s.Value.Angle
	default:
		return nil
	}
	if s.Scene != nil {
		fields["scene"] = int64(*s.Scene)
	}

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	source := s.Source
	if source == "" {
		source = "event"
	}

	return write.NewPoint(
		measurementGroupStatus,
		map[string]string{
			"zone":   strconv.Itoa(s.ZoneID),
			"type":   s.Type.String(),
			"group":  strconv.Itoa(s.GroupID),
			"kind":   string(s.Value.Kind),
			"source": source,
		},
		fields,
		at,
	)
}
