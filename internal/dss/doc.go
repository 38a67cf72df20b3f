// Package dss synchronises a digitalSTROM server (dSS) into a local model.
//
// The dSS speaks a scene-based, polling-only JSON protocol. Every write is a
// numbered scene call on a (zone, group type) pair, and physical switch
// presses are only observable by long-polling the event endpoint. This
// package turns that protocol into a consistent Zone → Group → Device model.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                 Apartment (apartment.go)                  │
//	│   mutex-guarded []Zone cache, commands, pipeline owner    │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────┐  │
//	│  │   builder    │   │   pipeline   │   │    Store     │  │
//	│  │ (builder.go) │   │(pipeline.go) │   │ (persist.go) │  │
//	│  └──────┬───────┘   └──────┬───────┘   └──────────────┘  │
//	│         ▼                  ▼                              │
//	│  ┌────────────────────────────────────────────────────┐  │
//	│  │  RawAPI (api.go) → Requester (client.go, HTTPS)    │  │
//	│  └────────────────────────────────────────────────────┘  │
//	└──────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Zone, Group, Device: the cached building structure
//   - Value: a group status or a command target (light level, shadow open+angle)
//   - Action: the decoded meaning of a scene number (scene.go)
//   - Event: a callScene notification with its decoded action and resolved value
//
// # Thread Safety
//
// Apartment is safe for concurrent use. Reads return deep copies; every
// mutation replaces whole fields under the cache lock. At most one event
// pipeline is active per Apartment; requesting a new channel retires the
// previous one.
//
// # Usage
//
//	apt, err := dss.Connect(ctx, "dss.local", "dssadmin", password)
//	if err != nil {
//	    return err
//	}
//	defer apt.Close()
//
//	events, err := apt.EventChannel(ctx)
//	for ev := range events {
//	    log.Info("scene called", "zone", ev.ZoneID, "group", ev.Group, "value", ev.Value)
//	}
package dss
