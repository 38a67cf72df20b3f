package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

// handleGetApartment returns the apartment name and its metering circuits,
// read live from the server.
func (s *Server) handleGetApartment(w http.ResponseWriter, r *http.Request) {
	if s.info == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "apartment info is not available")
		return
	}

	name, err := s.info.ApartmentName(r.Context())
	if err != nil {
		writeDSSError(w, err)
		return
	}
	circuits, err := s.info.Circuits(r.Context())
	if err != nil {
		writeDSSError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":     name,
		"circuits": circuits,
	})
}

// handleResync rebuilds the structure from the server and republishes every
// group status.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	zones, err := s.apartment.UpdateAll(r.Context())
	if err != nil {
		s.logger.Warn("resync failed", "error", err)
		writeDSSError(w, err)
		return
	}

	if s.states != nil {
		s.states.PublishStates(r.Context(), snapshot.SourceResync)
	}

	groups := 0
	for _, z := range zones {
		groups += len(z.Groups)
	}
	s.logger.Info("structure resynced", "zones", len(zones), "groups", groups)

	writeJSON(w, http.StatusOK, map[string]any{
		"zones":  len(zones),
		"groups": groups,
	})
}
