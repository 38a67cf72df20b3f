// Package relay forwards the dSS event stream to the rest of the house.
//
// A Relay consumes Apartment.EventChannel and, for every event:
//   - publishes it on {prefix}/event/{zone}/{type}/{group}
//   - updates the retained {prefix}/state/{zone}/{type}/{group}
//   - writes a group_status point to InfluxDB
//   - broadcasts it on the "dss.event" WebSocket channel
//   - appends it to the local status history
//
// It also subscribes to {prefix}/command/# and applies each message with
// Apartment.SetValue. Every sink is optional.
package relay
