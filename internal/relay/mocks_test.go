package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	connected bool
	handlers  map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers payload to the handler subscribed on pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return handler(topic, payload)
}

// fakeApartment serves a fixed structure and an event channel the test
// feeds directly.
type fakeApartment struct {
	mu       sync.Mutex
	zones    []dss.Zone
	events   chan dss.Event
	setCalls []setCall
	setErr   error
	eventErr error
}

type setCall struct {
	Zone  int
	Group *int
	Value dss.Value
}

func newFakeApartment() *fakeApartment {
	return &fakeApartment{
		zones: []dss.Zone{{
			ID:   3,
			Name: "Living",
			Groups: []dss.Group{
				{ID: 0, ZoneID: 3, Type: dss.TypeLight, Status: dss.Light(1)},
				{ID: 0, ZoneID: 3, Type: dss.TypeShadow, Status: dss.Shadow(0.5, 0.5)},
			},
		}},
		events: make(chan dss.Event, 8),
	}
}

func (f *fakeApartment) Zones() ([]dss.Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zones, nil
}

func (f *fakeApartment) SetValue(_ context.Context, zone int, group *int, v dss.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, setCall{Zone: zone, Group: group, Value: v})
	return f.setErr
}

func (f *fakeApartment) EventChannel(context.Context) (<-chan dss.Event, error) {
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	return f.events, nil
}

func (f *fakeApartment) calls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setCall(nil), f.setCalls...)
}

type recordingInflux struct {
	mu     sync.Mutex
	points []influxdb.GroupStatus
}

func (r *recordingInflux) WriteGroupStatus(s influxdb.GroupStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, s)
}

func (r *recordingInflux) all() []influxdb.GroupStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]influxdb.GroupStatus(nil), r.points...)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (r *recordingBroadcaster) Broadcast(channel string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
	r.payloads = append(r.payloads, payload)
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

type recordingHistory struct {
	mu      sync.Mutex
	entries []snapshot.HistoryEntry
}

func (r *recordingHistory) Record(_ context.Context, e snapshot.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingHistory) all() []snapshot.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]snapshot.HistoryEntry(nil), r.entries...)
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
