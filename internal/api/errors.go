package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in Error.Code.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeUpstream        = "upstream_error"
	ErrCodeUpstreamTimeout = "upstream_timeout"
)

// dssErrors maps dss error kinds to a response, first match wins.
var dssErrors = []struct {
	kind   error
	status int
	code   string
}{
	{dss.ErrLookup, http.StatusNotFound, ErrCodeNotFound},
	{dss.ErrInvalidValue, http.StatusBadRequest, ErrCodeValidation},
	{dss.ErrTransport, http.StatusGatewayTimeout, ErrCodeUpstreamTimeout},
	{dss.ErrProtocol, http.StatusBadGateway, ErrCodeUpstream},
	{dss.ErrNoMapping, http.StatusBadGateway, ErrCodeUpstream},
	{dss.ErrConcurrency, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // the client may already be gone
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDSSError answers with the status of err's dss kind, or 500.
func writeDSSError(w http.ResponseWriter, err error) {
	for _, e := range dssErrors {
		if errors.Is(err, e.kind) {
			writeError(w, e.status, e.code, err.Error())
			return
		}
	}
	writeInternalError(w, err.Error())
}
