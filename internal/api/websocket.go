package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/logging"
)

// Message types exchanged on /api/v1/ws.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsQueueSize is the number of frames buffered per session before
// broadcasts to it are dropped.
const wsQueueSize = 256

// WSMessage is the envelope of every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels, and optionally zones, for a
// subscribe or unsubscribe request. An empty Zones list means every zone.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Zones    []int    `json:"zones,omitempty"`
}

// ZoneScoped is implemented by broadcast payloads that belong to a single
// zone, so sessions with a zone filter can skip them.
type ZoneScoped interface {
	EventZone() int
}

// Hub tracks WebSocket sessions and fans broadcasts out to them.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
}

// wsSession is one connected client and its subscription filter.
type wsSession struct {
	hub     *Hub
	conn    *websocket.Conn
	queue   chan []byte
	subject string

	mu       sync.RWMutex
	channels map[string]struct{}
	zones    map[int]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub. Run must be started for shutdown to
// disconnect sessions.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[*wsSession]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		close(s.queue)
		if s.conn != nil {
			s.conn.Close()
		}
		delete(h.sessions, s)
	}
}

func (h *Hub) add(s *wsSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("websocket session opened", "subject", s.subject, "sessions", n)
}

// remove drops a session. Whoever removes it from the map closes its
// queue, so shutdown and a read error cannot both close it.
func (h *Hub) remove(s *wsSession) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()

	if ok {
		close(s.queue)
	}
	h.logger.Debug("websocket session closed", "subject", s.subject, "sessions", n)
}

// Broadcast sends payload to every session subscribed to channel. Payloads
// implementing ZoneScoped are also matched against each session's zones.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket broadcast", "channel", channel, "error", err)
		return
	}

	zone, scoped := 0, false
	if z, ok := payload.(ZoneScoped); ok {
		zone, scoped = z.EventZone(), true
	}

	h.mu.RLock()
	targets := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if !s.wants(channel, zone, scoped) {
			continue
		}
		s.enqueue(frame)
		delivered++
	}
	if delivered > 0 {
		h.logger.Debug("websocket broadcast", "channel", channel, "sessions", delivered)
	}
}

// ClientCount returns the number of open sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// handleWebSocket upgrades an authenticated request and starts the
// session's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &wsSession{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, wsQueueSize),
		subject:  subjectFromContext(r.Context()),
		channels: make(map[string]struct{}),
		zones:    make(map[int]struct{}),
	}
	s.hub.add(sess)

	timing := newWSTiming(s.wsCfg)
	go sess.writeLoop(timing)
	go sess.readLoop(timing, int64(s.wsCfg.MaxMessageSize))
}

// wsTiming holds the keepalive durations derived from config.
type wsTiming struct {
	ping time.Duration
	pong time.Duration
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	return wsTiming{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is how long a session may stay silent, including the
// answer to the next ping.
func (t wsTiming) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pong)
}

func (s *wsSession) readLoop(t wsTiming, limit int64) {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(limit)
	//nolint:errcheck // a failed deadline surfaces as a read error
	s.conn.SetReadDeadline(t.readDeadline())
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read failed", "subject", s.subject, "error", err)
			}
			return
		}
		// Application frames count as liveness too; some browsers never
		// answer protocol pings.
		//nolint:errcheck // a failed deadline surfaces as a read error
		s.conn.SetReadDeadline(t.readDeadline())
		s.handle(data)
	}
}

func (s *wsSession) writeLoop(t wsTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	write := func(kind int, data []byte) bool {
		//nolint:errcheck // a failed deadline surfaces as a write error
		s.conn.SetWriteDeadline(time.Now().Add(t.pong))
		return s.conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case frame, ok := <-s.queue:
			if !ok {
				write(websocket.CloseMessage, nil)
				return
			}
			if !write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// handle answers one client frame.
func (s *wsSession) handle(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		s.updateFilter(msg)
	case WSTypePing:
		s.reply(msg.ID, WSTypePong, nil)
	default:
		s.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// updateFilter adds or removes channels and zones and acknowledges the
// resulting filter.
func (s *wsSession) updateFilter(msg WSMessage) {
	var req WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil || len(req.Channels) == 0 && len(req.Zones) == 0 {
		s.reply(msg.ID, WSTypeError, errorPayload("invalid "+msg.Type+" payload"))
		return
	}

	add := msg.Type == WSTypeSubscribe

	s.mu.Lock()
	for _, ch := range req.Channels {
		if add {
			s.channels[ch] = struct{}{}
		} else {
			delete(s.channels, ch)
		}
	}
	for _, z := range req.Zones {
		if add {
			s.zones[z] = struct{}{}
		} else {
			delete(s.zones, z)
		}
	}
	current := s.filterLocked()
	s.mu.Unlock()

	s.hub.logger.Info("websocket filter updated",
		"subject", s.subject, "channels", current.Channels, "zones", current.Zones)
	s.reply(msg.ID, WSTypeResponse, current)
}

// filterLocked returns the session's filter in sorted order.
// The caller holds s.mu.
func (s *wsSession) filterLocked() WSSubscribePayload {
	f := WSSubscribePayload{Channels: make([]string, 0, len(s.channels))}
	for ch := range s.channels {
		f.Channels = append(f.Channels, ch)
	}
	for z := range s.zones {
		f.Zones = append(f.Zones, z)
	}
	slices.Sort(f.Channels)
	slices.Sort(f.Zones)
	return f
}

// wants reports whether a broadcast on channel, optionally for zone,
// passes the session's filter.
func (s *wsSession) wants(channel string, zone int, scoped bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.channels[channel]; !ok {
		return false
	}
	if !scoped || len(s.zones) == 0 {
		return true
	}
	_, ok := s.zones[zone]
	return ok
}

// enqueue hands a frame to the write loop. Frames for a full queue are
// dropped, and a queue closed during shutdown is tolerated.
func (s *wsSession) enqueue(frame []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a queue closed by shutdown
	}()

	select {
	case s.queue <- frame:
	default:
		s.hub.logger.Warn("websocket queue full, dropping frame", "subject", s.subject)
	}
}

func (s *wsSession) reply(id, kind string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: kind, ID: id, Payload: payload})
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// encodeFrame stamps and marshals an outgoing message.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(msg)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
