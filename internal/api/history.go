package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// handleGroupHistory returns recent status changes of one group, newest
// first. The group type comes from the "type" query parameter or, when it
// is absent, from the cached structure.
func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "status history is not enabled")
		return
	}

	zoneID, ok := pathInt(w, r, "zone")
	if !ok {
		return
	}
	groupID, ok := pathInt(w, r, "group")
	if !ok {
		return
	}

	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var t dss.Type
	if v := q.Get("type"); v != "" {
		parsed, err := dss.ParseType(v)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		t = parsed
	} else {
		found, err := s.groupType(zoneID, groupID)
		if err != nil {
			writeDSSError(w, err)
			return
		}
		t = found
	}

	entries, err := s.history.History(r.Context(), zoneID, t, groupID, limit)
	if err != nil {
		s.logger.Error("reading status history", "zone", zoneID, "group", groupID, "error", err)
		writeInternalError(w, "reading status history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"zone_id":  zoneID,
		"group_id": groupID,
		"type":     t,
		"entries":  entries,
		"count":    len(entries),
	})
}

// groupType looks up the type of the first cached group with the given id.
func (s *Server) groupType(zoneID, groupID int) (dss.Type, error) {
	zones, err := s.apartment.Zones()
	if err != nil {
		return dss.TypeUnknown, err
	}
	for _, z := range zones {
		if z.ID != zoneID {
			continue
		}
		for _, g := range z.Groups {
			if g.ID == groupID {
				return g.Type, nil
			}
		}
		return dss.TypeUnknown, fmt.Errorf("%w: group %d in zone %d", dss.ErrLookup, groupID, zoneID)
	}
	return dss.TypeUnknown, fmt.Errorf("%w: zone %d", dss.ErrLookup, zoneID)
}
