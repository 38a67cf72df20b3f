package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

// gracefulShutdownTimeout bounds how long Close waits for open requests.
const gracefulShutdownTimeout = 10 * time.Second

// Apartment is the part of *dss.Apartment the API serves.
type Apartment interface {
	Zones() ([]dss.Zone, error)
	Value(zone, group int) (dss.Value, error)
	SetValue(ctx context.Context, zone int, group *int, v dss.Value) error
	UpdateAll(ctx context.Context) ([]dss.Zone, error)
}

// ApartmentInfo reads apartment metadata straight from the server.
// *dss.RawAPI satisfies it.
type ApartmentInfo interface {
	ApartmentName(ctx context.Context) (string, error)
	Circuits(ctx context.Context) ([]dss.Circuit, error)
}

// HistoryReader is satisfied by *snapshot.HistoryRepository.
type HistoryReader interface {
	History(ctx context.Context, zone int, t dss.Type, group, limit int) ([]snapshot.HistoryEntry, error)
}

// StatePublisher republishes every group status after a resync.
// *relay.Relay satisfies it.
type StatePublisher interface {
	PublishStates(ctx context.Context, source string)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Apartment Apartment
	Info      ApartmentInfo
	History   HistoryReader  // optional
	States    StatePublisher // optional
	Hub       *Hub           // If set, the server uses this hub instead of creating its own
	Version   string
}

// Server is the HTTP API server of dss-sync.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	apartment Apartment
	info      ApartmentInfo
	history   HistoryReader
	states    StatePublisher
	version   string
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New validates deps. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Apartment == nil:
		return nil, errors.New("api: apartment is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		apartment: deps.Apartment,
		info:      deps.Info,
		history:   deps.History,
		states:    deps.States,
		version:   deps.Version,
		hub:       deps.Hub,
	}, nil
}

// Hub returns the WebSocket hub. It is nil before Start unless one was
// injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. A bind failure
// is returned here rather than logged later. Close stops the server.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	read := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Close cancels open WebSocket sessions and drains in-flight requests for
// up to gracefulShutdownTimeout. It is a no-op before Start.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// HealthCheck fails before Start or once ctx is done.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
