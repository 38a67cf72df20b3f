package relay

import (
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// EventMessage is published on the event topic and broadcast to
// WebSocket subscribers for every dispatched event.
type EventMessage struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	dss.Event
}

// StateMessage is the retained payload of a group's state topic.
type StateMessage struct {
	ZoneID    int       `json:"zone_id"`
	Type      dss.Type  `json:"type"`
	GroupID   int       `json:"group_id"`
	Value     dss.Value `json:"value"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventZone lets the WebSocket hub filter events by zone.
func (m EventMessage) EventZone() int {
	return m.ZoneID
}
