package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Persistence backends.
const (
	PersistenceNone   = "none"
	PersistenceFile   = "file"
	PersistenceSQLite = "sqlite"
)

// Config is the root configuration structure for dss-sync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	DSS         DSSConfig         `yaml:"dss"`
	Events      EventsConfig      `yaml:"events"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DSSConfig contains the connection settings for the digitalSTROM server.
type DSSConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	// RequestTimeout bounds a single request, in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// ResyncInterval rebuilds the structure periodically, in seconds.
	// 0 disables the periodic resync.
	ResyncInterval int `yaml:"resync_interval"`
}

// EventsConfig contains the event pipeline settings.
type EventsConfig struct {
	SubscriptionID int `yaml:"subscription_id"`
	PollTimeoutMS  int `yaml:"poll_timeout_ms"`
	RetryDelay     int `yaml:"retry_delay"`
	Buffer         int `yaml:"buffer"`
}

// PersistenceConfig selects where the structure snapshot is kept.
type PersistenceConfig struct {
	// Backend is "none", "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the snapshot file for the file backend. A ".cbor" extension
	// selects CBOR encoding.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention prunes status history older than this many days.
	// 0 keeps everything.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIAuthConfig contains bearer token settings. An empty secret disables
// authentication.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of tokens minted by "dsssync issue-token", in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration from defaults, then the YAML file at path,
// then DSSSYNC_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		DSS: DSSConfig{
			Port:               8080,
			User:               "dssadmin",
			InsecureSkipVerify: true,
			RequestTimeout:     30,
		},
		Events: EventsConfig{
			SubscriptionID: 911,
			PollTimeoutMS:  3000,
			RetryDelay:     1,
			Buffer:         64,
		},
		Persistence: PersistenceConfig{Backend: PersistenceFile, Path: "./data/structure.json"},
		Database: DatabaseConfig{
			Path:             "./data/dsssync.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30,
		},
		MQTT: MQTTConfig{
			Broker:      MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "dss-sync"},
			QoS:         1,
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
			TopicPrefix: "dss",
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			Port:     8090,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
			Auth:     APIAuthConfig{TokenTTL: 1440},
		},
		WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		InfluxDB:  InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// envBinding ties one environment variable to a config field.
type envBinding struct {
	name string
	str  func(*Config) *string
	num  func(*Config) *int
}

// envBindings lists the supported overrides. Credentials are expected to
// arrive this way rather than through the file.
var envBindings = []envBinding{
	{name: "DSSSYNC_DSS_HOST", str: func(c *Config) *string { return &c.DSS.Host }},
	{name: "DSSSYNC_DSS_PORT", num: func(c *Config) *int { return &c.DSS.Port }},
	{name: "DSSSYNC_DSS_USER", str: func(c *Config) *string { return &c.DSS.User }},
	{name: "DSSSYNC_DSS_PASSWORD", str: func(c *Config) *string { return &c.DSS.Password }},
	{name: "DSSSYNC_PERSISTENCE_BACKEND", str: func(c *Config) *string { return &c.Persistence.Backend }},
	{name: "DSSSYNC_PERSISTENCE_PATH", str: func(c *Config) *string { return &c.Persistence.Path }},
	{name: "DSSSYNC_DATABASE_PATH", str: func(c *Config) *string { return &c.Database.Path }},
	{name: "DSSSYNC_MQTT_HOST", str: func(c *Config) *string { return &c.MQTT.Broker.Host }},
	{name: "DSSSYNC_MQTT_USERNAME", str: func(c *Config) *string { return &c.MQTT.Auth.Username }},
	{name: "DSSSYNC_MQTT_PASSWORD", str: func(c *Config) *string { return &c.MQTT.Auth.Password }},
	{name: "DSSSYNC_API_HOST", str: func(c *Config) *string { return &c.API.Host }},
	{name: "DSSSYNC_API_PORT", num: func(c *Config) *int { return &c.API.Port }},
	{name: "DSSSYNC_JWT_SECRET", str: func(c *Config) *string { return &c.API.Auth.JWTSecret }},
	{name: "DSSSYNC_INFLUXDB_TOKEN", str: func(c *Config) *string { return &c.InfluxDB.Token }},
}

// applyEnvOverrides copies every set variable into cfg. Numeric values that
// do not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		v := os.Getenv(b.name)
		if v == "" {
			continue
		}
		if b.str != nil {
			*b.str(cfg) = v
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			*b.num(cfg) = n
		}
	}
}

// minJWTSecretLength applies only when a secret is set; empty disables auth.
const minJWTSecretLength = 32

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var errs []string
	for _, check := range []func() []string{
		c.validateDSS,
		c.validateStorage,
		c.validateOutputs,
	} {
		errs = append(errs, check()...)
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func (c *Config) validateDSS() []string {
	var errs []string
	if c.DSS.Host == "" {
		errs = append(errs, "dss.host is required (set DSSSYNC_DSS_HOST environment variable)")
	}
	if c.DSS.User == "" {
		errs = append(errs, "dss.user is required")
	}
	if !validPort(c.DSS.Port) {
		errs = append(errs, "dss.port must be between 1 and 65535")
	}
	if c.DSS.ResyncInterval < 0 {
		errs = append(errs, "dss.resync_interval must not be negative")
	}
	if c.Events.SubscriptionID <= 0 {
		errs = append(errs, "events.subscription_id must be positive")
	}
	if c.Events.PollTimeoutMS <= 0 {
		errs = append(errs, "events.poll_timeout_ms must be positive")
	}
	return errs
}

func (c *Config) validateStorage() []string {
	var errs []string
	switch c.Persistence.Backend {
	case PersistenceNone:
	case PersistenceFile:
		if c.Persistence.Path == "" {
			errs = append(errs, "persistence.path is required for the file backend")
		}
	case PersistenceSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("persistence.backend must be none, file or sqlite (got %q)", c.Persistence.Backend))
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention must not be negative")
	}
	return errs
}

func (c *Config) validateOutputs() []string {
	var errs []string
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}
	if c.API.Enabled && !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if s := c.API.Auth.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}
	return errs
}

// Durations. Config values are whole seconds unless the key says otherwise.

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) GetReadTimeout() time.Duration    { return seconds(c.API.Timeouts.Read) }
func (c *Config) GetWriteTimeout() time.Duration   { return seconds(c.API.Timeouts.Write) }
func (c *Config) GetIdleTimeout() time.Duration    { return seconds(c.API.Timeouts.Idle) }
func (c *Config) GetRequestTimeout() time.Duration { return seconds(c.DSS.RequestTimeout) }
func (c *Config) GetRetryDelay() time.Duration     { return seconds(c.Events.RetryDelay) }

// GetResyncInterval is zero when the periodic resync is off.
func (c *Config) GetResyncInterval() time.Duration { return seconds(c.DSS.ResyncInterval) }

func (c *Config) GetPollTimeout() time.Duration {
	return time.Duration(c.Events.PollTimeoutMS) * time.Millisecond
}

// GetHistoryRetention is zero when history is kept forever.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetention) * 24 * time.Hour
}
