// Package mqtt wraps the paho client for the dss-sync relay.
//
// Connect blocks until the broker accepts the session or ctx ends. After
// that paho reconnects on its own; every reconnect re-subscribes the
// registered routes and republishes the retained online status, and the
// broker publishes the offline status as the will if the process dies.
//
// Topic layout, with the default prefix "dss":
//
//	dss/event/{zone}/{type}/{group}
//	dss/state/{zone}/{type}/{group}    retained
//	dss/command/{zone}[/{group}]
//	dss/system/status                  retained, also the will
//
// Handlers run on paho's goroutines. A handler error is logged, and a
// panicking handler is recovered.
package mqtt
