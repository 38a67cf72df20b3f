package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// valueResponse is the body of the value endpoints.
type valueResponse struct {
	ZoneID  int       `json:"zone_id"`
	GroupID *int      `json:"group_id,omitempty"`
	Value   dss.Value `json:"value"`
}

// handleListZones returns the cached structure.
func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	zones, err := s.apartment.Zones()
	if err != nil {
		writeDSSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zones": zones,
		"count": len(zones),
	})
}

// handleGetZone returns one cached zone.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathInt(w, r, "zone")
	if !ok {
		return
	}

	zones, err := s.apartment.Zones()
	if err != nil {
		writeDSSError(w, err)
		return
	}
	for _, z := range zones {
		if z.ID == zoneID {
			writeJSON(w, http.StatusOK, z)
			return
		}
	}
	writeNotFound(w, fmt.Sprintf("zone %d not found", zoneID))
}

// handleGetValue returns the cached status of one group.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathInt(w, r, "zone")
	if !ok {
		return
	}
	groupID, ok := pathInt(w, r, "group")
	if !ok {
		return
	}

	v, err := s.apartment.Value(zoneID, groupID)
	if err != nil {
		writeDSSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{ZoneID: zoneID, GroupID: &groupID, Value: v})
}

// handleSetValue writes a value to a zone, or to one group when the route
// carries {group}.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathInt(w, r, "zone")
	if !ok {
		return
	}

	var group *int
	if chi.URLParam(r, "group") != "" {
		g, ok := pathInt(w, r, "group")
		if !ok {
			return
		}
		group = &g
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "reading request body")
		return
	}

	v, err := dss.ParseValue(body)
	if err != nil {
		writeDSSError(w, err)
		return
	}
	if v.IsUnknown() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "value kind must be light or shadow")
		return
	}

	if err := s.apartment.SetValue(r.Context(), zoneID, group, v); err != nil {
		s.logger.Warn("set value failed",
			"zone", zoneID,
			"value", v.String(),
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeDSSError(w, err)
		return
	}

	s.logger.Info("value set",
		"zone", zoneID,
		"value", v.String(),
		"subject", subjectFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, valueResponse{ZoneID: zoneID, GroupID: group, Value: v})
}

// pathInt parses a numeric URL parameter, writing a 400 when it is not one.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return n, true
}
