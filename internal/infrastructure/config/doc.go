// Package config loads config.yaml for dsssync and dssshell.
//
// Values are layered: built-in defaults, then the YAML file, then DSSSYNC_*
// environment variables (see envBindings). Credentials such as the dSS
// password, the MQTT password, the InfluxDB token and the JWT secret should
// come from the environment. Keep the file itself at mode 0600.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//		return err
//	}
//	conn := dss.NewHTTPConnection(cfg.DSS.Host, cfg.DSS.Port, ...)
//
// Validate collects every problem instead of stopping at the first.
package config
