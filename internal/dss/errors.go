package dss

import "errors"

// Domain errors for dSS operations.
//
// Every error returned by the Apartment and RawAPI wraps exactly one of the
// kind sentinels below, so callers can branch with errors.Is():
//
//	if errors.Is(err, dss.ErrLookup) {
//	    // unknown zone or group
//	}
var (
	// ErrTransport is returned when the HTTP round trip fails
	// (network, TLS, timeout or an undecodable body).
	ErrTransport = errors.New("dss: transport failure")

	// ErrProtocol is returned when the server answers ok=false, or a
	// response lacks an expected field or has the wrong type.
	ErrProtocol = errors.New("dss: protocol failure")

	// ErrOffsetMismatch is returned when getOutputValue echoes a different
	// offset than requested. It is always wrapped together with ErrProtocol.
	ErrOffsetMismatch = errors.New("dss: output offset mismatch")

	// ErrLookup is returned when no zone, group or device matches a requested id.
	ErrLookup = errors.New("dss: lookup failure")

	// ErrConcurrency is returned when the shared structure cache can no
	// longer be used because the Apartment was closed.
	ErrConcurrency = errors.New("dss: structure cache unavailable")

	// ErrNoMapping is returned when an action has no scene number.
	ErrNoMapping = errors.New("dss: action has no scene mapping")
)

// ErrInvalidValue is returned by ParseValue for a malformed command body.
// It never comes from the server.
var ErrInvalidValue = errors.New("dss: invalid value")
