package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-dss/internal/auth"
	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Fakes ─────────────────────────────────────────────────────────

type setCall struct {
	zone  int
	group *int
	value dss.Value
}

type fakeApartment struct {
	mu        sync.Mutex
	zones     []dss.Zone
	zonesErr  error
	setErr    error
	updateErr error
	setCalls  []setCall
	updates   int
}

func (f *fakeApartment) Zones() ([]dss.Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zonesErr != nil {
		return nil, f.zonesErr
	}
	return f.zones, nil
}

func (f *fakeApartment) Value(zone, group int) (dss.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, z := range f.zones {
		if z.ID != zone {
			continue
		}
		for _, g := range z.Groups {
			if g.ID == group {
				return g.Status, nil
			}
		}
		return dss.Value{}, fmt.Errorf("%w: group %d", dss.ErrLookup, group)
	}
	return dss.Value{}, fmt.Errorf("%w: zone %d", dss.ErrLookup, zone)
}

func (f *fakeApartment) SetValue(_ context.Context, zone int, group *int, v dss.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, setCall{zone: zone, group: group, value: v})
	return f.setErr
}

func (f *fakeApartment) UpdateAll(context.Context) ([]dss.Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.zones, nil
}

type fakeInfo struct {
	err error
}

func (f fakeInfo) ApartmentName(context.Context) (string, error) {
	return "Home", f.err
}

func (f fakeInfo) Circuits(context.Context) ([]dss.Circuit, error) {
	return []dss.Circuit{{ID: "c1", Name: "Basement", Present: true, Valid: true}}, nil
}

type fakeHistory struct {
	gotZone  int
	gotType  dss.Type
	gotGroup int
	gotLimit int
}

func (f *fakeHistory) History(_ context.Context, zone int, t dss.Type, group, limit int) ([]snapshot.HistoryEntry, error) {
	f.gotZone, f.gotType, f.gotGroup, f.gotLimit = zone, t, group, limit
	return []snapshot.HistoryEntry{{
		ID: 1, ZoneID: zone, Type: t, GroupID: group,
		Status: dss.Light(1), Source: snapshot.SourceEvent, RecordedAt: time.Now(),
	}}, nil
}

type recordingPublisher struct {
	sources []string
}

func (p *recordingPublisher) PublishStates(_ context.Context, source string) {
	p.sources = append(p.sources, source)
}

func testZones() []dss.Zone {
	return []dss.Zone{
		{
			ID:    2,
			Name:  "Kitchen",
			Types: []dss.Type{dss.TypeLight, dss.TypeShadow},
			Groups: []dss.Group{
				{ID: 0, ZoneID: 2, Type: dss.TypeLight, Status: dss.Light(1)},
				{ID: 5, ZoneID: 2, Type: dss.TypeShadow, Status: dss.Shadow(0.5, 0.25)},
			},
		},
		{ID: 3, Name: "Hall"},
	}
}

// testServer creates a Server around fakes with an unstarted listener.
func testServer(t *testing.T, secret string) (*Server, *fakeApartment) {
	t.Helper()

	apt := &fakeApartment{zones: testZones()}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Auth: config.APIAuthConfig{JWTSecret: secret},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    log,
		Apartment: apt,
		Info:      fakeInfo{},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(ctx)

	return srv, apt
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return resp
}

// ─── Construction ──────────────────────────────────────────────────

func TestNewRequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")

	if _, err := New(Deps{Apartment: &fakeApartment{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without apartment should fail")
	}
}

func TestHealthCheckBeforeStart(t *testing.T) {
	srv, _ := testServer(t, "")
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

// ─── Read Endpoints ────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	// Health stays open even with auth enabled.
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeBody(t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
}

func TestListZones(t *testing.T) {
	srv, _ := testServer(t, "")

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/zones", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp struct {
		Zones []dss.Zone `json:"zones"`
		Count int        `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Count != 2 || len(resp.Zones) != 2 {
		t.Fatalf("zones = %+v", resp)
	}
	if resp.Zones[0].Groups[1].Type != dss.TypeShadow {
		t.Errorf("group type = %v, want shadow", resp.Zones[0].Groups[1].Type)
	}
	if !strings.Contains(w.Body.String(), `"shadow"`) {
		t.Errorf("types should be encoded by name: %s", w.Body)
	}
}

func TestGetZone(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/api/v1/zones/2", http.StatusOK},
		{"missing", "/api/v1/zones/9", http.StatusNotFound},
		{"not a number", "/api/v1/zones/kitchen", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.path, "", "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestGetValue(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/zones/2/groups/5/value", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp valueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Value != dss.Shadow(0.5, 0.25) || resp.GroupID == nil || *resp.GroupID != 5 {
		t.Errorf("value = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/api/v1/zones/2/groups/7/value", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown group status = %d, want 404", w.Code)
	}
}

func TestGetApartment(t *testing.T) {
	srv, _ := testServer(t, "")

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/apartment", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	resp := decodeBody(t, w)
	if resp["name"] != "Home" {
		t.Errorf("name = %v, want Home", resp["name"])
	}
	if circuits, ok := resp["circuits"].([]any); !ok || len(circuits) != 1 {
		t.Errorf("circuits = %v", resp["circuits"])
	}

	srv.info = fakeInfo{err: fmt.Errorf("%w: timeout", dss.ErrTransport)}
	w = do(t, srv.buildRouter(), http.MethodGet, "/api/v1/apartment", "", "")
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("transport failure status = %d, want 504", w.Code)
	}
}

// ─── Writes ────────────────────────────────────────────────────────

func TestSetValue(t *testing.T) {
	srv, apt := testServer(t, "")
	router := srv.buildRouter()

	w := do(t, router, http.MethodPut, "/api/v1/zones/2/value", `{"kind":"light","level":1}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("zone write status = %d, body = %s", w.Code, w.Body)
	}

	w = do(t, router, http.MethodPut, "/api/v1/zones/2/groups/5/value", `{"kind":"shadow","open":0.5,"angle":0.3}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("group write status = %d, body = %s", w.Code, w.Body)
	}

	if len(apt.setCalls) != 2 {
		t.Fatalf("SetValue calls = %d, want 2", len(apt.setCalls))
	}
	if c := apt.setCalls[0]; c.zone != 2 || c.group != nil || c.value != dss.Light(1) {
		t.Errorf("zone call = %+v", c)
	}
	if c := apt.setCalls[1]; c.group == nil || *c.group != 5 || c.value != dss.Shadow(0.5, 0.3) {
		t.Errorf("group call = %+v", c)
	}
}

func TestSetValueRejectsBadBodies(t *testing.T) {
	srv, apt := testServer(t, "")
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `light on`},
		{"missing level", `{"kind":"light"}`},
		{"out of range", `{"kind":"shadow","open":1.5,"angle":0}`},
		{"unknown kind", `{"kind":"heating"}`},
		{"extra field", `{"kind":"light","level":1,"colour":"red"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, "/api/v1/zones/2/value", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body)
			}
		})
	}
	if len(apt.setCalls) != 0 {
		t.Errorf("SetValue called %d times for invalid bodies", len(apt.setCalls))
	}
}

func TestSetValueErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"lookup", dss.ErrLookup, http.StatusNotFound, ErrCodeNotFound},
		{"transport", dss.ErrTransport, http.StatusGatewayTimeout, ErrCodeUpstreamTimeout},
		{"protocol", dss.ErrProtocol, http.StatusBadGateway, ErrCodeUpstream},
		{"offset mismatch", fmt.Errorf("%w: %w", dss.ErrProtocol, dss.ErrOffsetMismatch), http.StatusBadGateway, ErrCodeUpstream},
		{"no mapping", dss.ErrNoMapping, http.StatusBadGateway, ErrCodeUpstream},
		{"closed", dss.ErrConcurrency, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, apt := testServer(t, "")
			apt.setErr = fmt.Errorf("setting value: %w", tt.err)

			w := do(t, srv.buildRouter(), http.MethodPut, "/api/v1/zones/2/value", `{"kind":"light","level":0}`, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if code := decodeBody(t, w)["code"]; code != tt.code {
				t.Errorf("code = %v, want %s", code, tt.code)
			}
		})
	}
}

func TestResync(t *testing.T) {
	srv, apt := testServer(t, "")
	pub := &recordingPublisher{}
	srv.states = pub

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/resync", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	resp := decodeBody(t, w)
	if resp["zones"] != float64(2) || resp["groups"] != float64(2) {
		t.Errorf("resync = %v", resp)
	}
	if apt.updates != 1 {
		t.Errorf("UpdateAll calls = %d, want 1", apt.updates)
	}
	if len(pub.sources) != 1 || pub.sources[0] != snapshot.SourceResync {
		t.Errorf("PublishStates sources = %v, want [resync]", pub.sources)
	}

	// A failed rebuild must not republish.
	apt.updateErr = dss.ErrProtocol
	w = do(t, srv.buildRouter(), http.MethodPost, "/api/v1/resync", "", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("failed resync status = %d, want 502", w.Code)
	}
	if len(pub.sources) != 1 {
		t.Errorf("PublishStates called after failed resync")
	}
}

// ─── History ───────────────────────────────────────────────────────

func TestGroupHistory(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/zones/2/groups/5/history", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled history status = %d, want 503", w.Code)
	}

	hist := &fakeHistory{}
	srv.history = hist

	tests := []struct {
		name      string
		path      string
		want      int
		wantType  dss.Type
		wantLimit int
	}{
		{"type from cache", "/api/v1/zones/2/groups/5/history", http.StatusOK, dss.TypeShadow, 0},
		{"explicit type", "/api/v1/zones/2/groups/0/history?type=shadow&limit=10", http.StatusOK, dss.TypeShadow, 10},
		{"numeric type", "/api/v1/zones/2/groups/0/history?type=1", http.StatusOK, dss.TypeLight, 0},
		{"bad type", "/api/v1/zones/2/groups/0/history?type=disco", http.StatusBadRequest, 0, 0},
		{"bad limit", "/api/v1/zones/2/groups/0/history?limit=-3", http.StatusBadRequest, 0, 0},
		{"unknown group", "/api/v1/zones/2/groups/9/history", http.StatusNotFound, 0, 0},
		{"unknown zone", "/api/v1/zones/8/groups/0/history", http.StatusNotFound, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*hist = fakeHistory{}
			w := do(t, router, http.MethodGet, tt.path, "", "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			if hist.gotType != tt.wantType || hist.gotLimit != tt.wantLimit || hist.gotZone != 2 {
				t.Errorf("History(%d, %v, %d, %d)", hist.gotZone, hist.gotType, hist.gotGroup, hist.gotLimit)
			}
			if count := decodeBody(t, w)["count"]; count != float64(1) {
				t.Errorf("count = %v, want 1", count)
			}
		})
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestAuthScopes(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	router := srv.buildRouter()

	read, err := auth.GenerateToken("dashboard", auth.ScopeRead, testSecret, 5)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	write, err := auth.GenerateToken("automation", auth.ScopeWrite, testSecret, 5)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	foreign, err := auth.GenerateToken("intruder", auth.ScopeWrite, "some-other-secret-of-sufficient-length", 5)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	body := `{"kind":"light","level":1}`
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/zones", "", http.StatusUnauthorized},
		{"foreign token", http.MethodGet, "/api/v1/zones", foreign, http.StatusUnauthorized},
		{"read can read", http.MethodGet, "/api/v1/zones", read, http.StatusOK},
		{"read cannot write", http.MethodPut, "/api/v1/zones/2/value", read, http.StatusForbidden},
		{"read cannot resync", http.MethodPost, "/api/v1/resync", read, http.StatusForbidden},
		{"write can write", http.MethodPut, "/api/v1/zones/2/value", write, http.StatusOK},
		{"write can read", http.MethodGet, "/api/v1/zones/2", write, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ""
			if tt.method == http.MethodPut {
				b = body
			}
			w := do(t, router, tt.method, tt.path, b, tt.token)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"header wins", "Bearer abc", "?access_token=xyz", "abc"},
		{"wrong scheme", "Basic abc", "?access_token=xyz", ""},
		{"query", "", "?access_token=xyz", "xyz"},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/ws"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(r); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestCORS(t *testing.T) {
	srv, _ := testServer(t, "")
	srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/zones", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin = %q", got)
	}
}

func TestBodySizeLimit(t *testing.T) {
	srv, apt := testServer(t, "")

	big := `{"kind":"light","level":1,"pad":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	w := do(t, srv.buildRouter(), http.MethodPut, "/api/v1/zones/2/value", big, "")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
	if len(apt.setCalls) != 0 {
		t.Error("SetValue should not be called for an oversized body")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocketEvents(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	// Rejected without a token.
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token response = %v", resp)
	}

	token, err := auth.GenerateToken("panel", auth.ScopeRead, testSecret, 5)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+token, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{"dss.event"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	srv.Hub().Broadcast("other.channel", map[string]any{"ignored": true})
	srv.Hub().Broadcast("dss.event", map[string]any{"zone_id": 2, "scene": 5})

	var ev WSMessage
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Type != WSTypeEvent || ev.EventType != "dss.event" {
		t.Fatalf("event = %+v", ev)
	}
	payload, ok := ev.Payload.(map[string]any)
	if !ok || payload["scene"] != float64(5) {
		t.Errorf("payload = %v", ev.Payload)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatalf("WriteJSON(ping) error = %v", err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if pong.Type != WSTypePong || pong.ID != "2" {
		t.Errorf("pong = %+v", pong)
	}
}

type zonedPayload struct {
	Zone int `json:"zone"`
}

func (p zonedPayload) EventZone() int { return p.Zone }

func TestWebSocketZoneFilter(t *testing.T) {
	srv, _ := testServer(t, "")
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var rejected WSMessage
	if err := conn.ReadJSON(&rejected); err != nil || rejected.Type != WSTypeError {
		t.Fatalf("empty subscribe reply = %+v, %v", rejected, err)
	}

	sub := WSMessage{Type: WSTypeSubscribe, ID: "2", Payload: WSSubscribePayload{Channels: []string{"dss.event"}, Zones: []int{7, 3}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var ack struct {
		Type    string             `json:"type"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading ack: %v", err)
	}
	if ack.Type != WSTypeResponse || len(ack.Payload.Zones) != 2 || ack.Payload.Zones[0] != 3 {
		t.Fatalf("ack = %+v", ack)
	}

	srv.Hub().Broadcast("dss.event", zonedPayload{Zone: 5})
	srv.Hub().Broadcast("dss.event", zonedPayload{Zone: 7})

	var ev struct {
		Type    string       `json:"type"`
		Payload zonedPayload `json:"payload"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Type != WSTypeEvent || ev.Payload.Zone != 7 {
		t.Errorf("event = %+v, want zone 7 only", ev)
	}
}
