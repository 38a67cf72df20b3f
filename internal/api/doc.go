// Package api implements the HTTP REST API and WebSocket server of dss-sync.
//
// This package provides:
//   - REST endpoints to read the cached apartment structure and group values
//   - Value writes that call scenes or drive shadow devices on the dSS
//   - A manual resync that rebuilds the structure and republishes states
//   - Per-group status history when SQLite persistence is enabled
//   - A WebSocket hub that pushes resolved callScene events on "dss.event"
//
// # Security
//
// When api.auth.jwt_secret is set every route except /health needs a bearer
// token. GET requests need the read scope, PUT and POST need write.
// WebSocket clients may pass the token as the access_token query parameter
// because browsers cannot set headers on the upgrade request.
//
// # Graceful Degradation
//
// History and resync republishing are optional: without a history reader
// the history route answers 503, without a state publisher a resync only
// rebuilds the cache.
package api
