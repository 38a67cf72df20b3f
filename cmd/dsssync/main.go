// dsssync mirrors a digitalSTROM apartment onto MQTT, InfluxDB and a REST
// and WebSocket API.
//
// Usage:
//
//	dsssync                     run the daemon
//	dsssync issue-token [flags] mint an API bearer token
//
// The configuration path is read from DSSSYNC_CONFIG, default
// configs/config.yaml.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-dss/internal/api"
	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dss/internal/relay"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
	"github.com/nerrad567/gray-logic-dss/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often expired status history is deleted.
const pruneInterval = time.Hour

func main() {
	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		if err := issueToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability. It returns nil
// on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting dss-sync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"persistence", cfg.Persistence.Backend,
	)

	// SQLite holds both the structure snapshot and the status history.
	var db *database.DB
	if cfg.Persistence.Backend == config.PersistenceSQLite {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)
	}

	apt, err := openApartment(ctx, cfg, db, log)
	if err != nil {
		return fmt.Errorf("connecting to dSS: %w", err)
	}
	defer func() {
		log.Info("closing dSS apartment")
		if closeErr := apt.Close(); closeErr != nil {
			log.Error("error closing apartment", "error", closeErr)
		}
	}()

	zones, err := apt.Zones()
	if err != nil {
		return fmt.Errorf("reading structure: %w", err)
	}
	log.Info("dSS connected", "host", cfg.DSS.Host, "zones", len(zones))

	relayOpts := relay.Options{
		Apartment: apt,
		QoS:       byte(cfg.MQTT.QoS),
		Logger:    log.Component("relay"),
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		relayOpts.MQTT = mqttClient
		relayOpts.Topics = mqttClient.Topics()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points_queued", st.Queued, "points_failed", st.Failed)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		relayOpts.Influx = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var history *snapshot.HistoryRepository
	if db != nil {
		history = snapshot.NewHistoryRepository(db.DB)
		relayOpts.History = history
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		relayOpts.Broadcaster = hub
	}

	rel, err := relay.New(relayOpts)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	if err := rel.Start(ctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}
	defer func() {
		log.Info("stopping relay")
		rel.Stop()
	}()

	// Retained states may have been lost while the broker was away.
	if mqttClient != nil {
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected, republishing states")
			rel.PublishStates(ctx, snapshot.SourceResync)
		})
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log.Component("api"),
			Apartment: apt,
			Info:      apt.API(),
			States:    rel,
			Hub:       hub,
			Version:   version,
		}
		if history != nil {
			deps.History = history
		}
		server, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return resyncLoop(gctx, apt, rel, cfg.GetResyncInterval(), log)
	})
	if history != nil && cfg.GetHistoryRetention() > 0 {
		g.Go(func() error {
			return pruneLoop(gctx, history, cfg.GetHistoryRetention(), pruneInterval, log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openApartment connects to the dSS with the configured persistence backend.
func openApartment(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*dss.Apartment, error) {
	opts := []dss.Option{
		dss.WithLogger(log.Component("dss")),
		dss.WithPort(cfg.DSS.Port),
		dss.WithInsecureSkipVerify(cfg.DSS.InsecureSkipVerify),
		dss.WithRequestTimeout(cfg.GetRequestTimeout()),
		dss.WithSubscriptionID(cfg.Events.SubscriptionID),
		dss.WithPollTimeout(cfg.GetPollTimeout()),
		dss.WithRetryDelay(cfg.GetRetryDelay()),
		dss.WithEventBuffer(cfg.Events.Buffer),
	}

	switch cfg.Persistence.Backend {
	case config.PersistenceFile:
		return dss.ConnectWithPersistence(ctx, cfg.DSS.Host, cfg.DSS.User, cfg.DSS.Password, cfg.Persistence.Path, opts...)
	case config.PersistenceSQLite:
		opts = append(opts, dss.WithStore(snapshot.NewSQLiteStore(db.DB)))
	}
	return dss.Connect(ctx, cfg.DSS.Host, cfg.DSS.User, cfg.DSS.Password, opts...)
}

// getConfigPath returns the configuration file path.
// Uses DSSSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DSSSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the optional infrastructure connections. Nil
// clients are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
