// Package logging builds the log/slog logger shared by dsssync and
// dssshell.
//
// Entries carry service and version attributes and are written as JSON
// unless logging.format is "text":
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components receive a child logger:
//
//	log := logging.New(cfg.Logging, version)
//	apt, err := dss.Connect(ctx, host, user, pw, dss.WithLogger(log.Component("dss")))
//
// Attributes named password, secret, token or authorization (or ending in
// one of those after an underscore) are written as "[redacted]", as are
// token query parameters inside URL values.
package logging
