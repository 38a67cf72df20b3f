package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter mounts the /api/v1 tree. Everything except /health sits
// behind authMiddleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		s.bodySizeLimitMiddleware,
	)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", s.handleHealth)

		v1.With(s.authMiddleware).Group(func(r chi.Router) {
			r.Get("/apartment", s.handleGetApartment)
			r.Post("/resync", s.handleResync)
			r.Get("/ws", s.handleWebSocket)
			r.Mount("/zones", s.zoneRoutes())
		})
	})
	return r
}

// zoneRoutes serves /zones. A PUT on the zone itself targets every
// group; a PUT on a group targets that group only.
func (s *Server) zoneRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleListZones)
	r.Get("/{zone}", s.handleGetZone)
	r.Put("/{zone}/value", s.handleSetValue)
	r.Get("/{zone}/groups/{group}/value", s.handleGetValue)
	r.Put("/{zone}/groups/{group}/value", s.handleSetValue)
	r.Get("/{zone}/groups/{group}/history", s.handleGroupHistory)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"ws_clients": clients,
	})
}
