// ilprelay forwards device state from the Gray Logic MQTT bus to a
// time-series server over InfluxDB Line Protocol (ILP) on TCP.
//
// Rows that cannot be delivered are kept in a local SQLite spool and replayed
// when the server is reachable again.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-ilp/migrations"

	"github.com/nerrad567/gray-logic-ilp/internal/api"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-ilp/internal/relay"
	"github.com/nerrad567/gray-logic-ilp/internal/spool"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ilprelay",
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
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	checks := make(map[string]api.HealthChecker)

	// Spool (optional)
	var db *database.DB
	var repo spool.Repository
	if cfg.Spool.Enabled {
		db, err = openSpool(ctx, cfg.Spool)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing spool database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing spool database", "error", closeErr)
			}
		}()
		repo = spool.NewSQLiteRepository(db.DB)
		checks["database"] = db
		log.Info("spool ready", "path", cfg.Spool.Path)
	} else {
		log.Warn("spool disabled, undelivered rows are kept in memory only")
	}

	// Relay
	rel := relay.New(relay.OptionsFromConfig(cfg), relay.DialerFromConfig(cfg), repo, log)
	if err := rel.Start(ctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}
	defer func() {
		log.Info("stopping relay")
		// ctx is already cancelled here; the final flush must still run.
		if closeErr := rel.Close(context.Background()); closeErr != nil {
			log.Error("error stopping relay", "error", closeErr)
		}
	}()

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	checks["mqtt"] = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if err := mqttClient.Subscribe(cfg.Relay.Topic, byte(cfg.MQTT.QoS), rel.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", cfg.Relay.Topic, err)
	}
	log.Info("relaying device state",
		"topic", cfg.Relay.Topic,
		"table", cfg.Relay.Table,
		"ilp_server", fmt.Sprintf("%s:%s", cfg.ILP.Host, cfg.ILP.Port),
	)

	// Status API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Relay:   rel,
			Spool:   repo,
			MQTT:    mqttClient,
			Checks:  checks,
			Version: version,
		}
		if db != nil {
			deps.DB = db.DB
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT (no new rows)
	// 3. Relay (final flush, spool the rest)
	// 4. Spool database
	return nil
}

// openSpool opens the spool database and applies migrations.
func openSpool(ctx context.Context, cfg config.SpoolConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening spool database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already returning the migration error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// getConfigPath returns the configuration file path.
// Uses ILPRELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ILPRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
