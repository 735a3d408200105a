// Refoss Bridge - Refoss RPC devices for Home Assistant over MQTT
//
// This is the main entry point for the bridge. It connects the configured
// (and optionally mDNS-discovered) Refoss devices, publishes them to Home
// Assistant via MQTT discovery, and serves a local REST/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/refoss-bridge/internal/api"
	"github.com/nerrad567/refoss-bridge/internal/bridge"
	"github.com/nerrad567/refoss-bridge/internal/discovery"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/config"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/database"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/refoss-bridge/internal/registry"
	"github.com/nerrad567/refoss-bridge/migrations"
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

// configEnv overrides the configuration file path.
const configEnv = "REFOSS_BRIDGE_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence
	log := logging.Default()
	log.Info("starting Refoss bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	reg := registry.NewRegistry(registry.NewSQLiteRepository(db.DB))
	reg.SetLogger(log.Component("registry"))
	if refreshErr := reg.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading registry: %w", refreshErr)
	}
	log.Info("registry initialised", "devices", len(reg.ListDevices(ctx)))

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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var telemetry bridge.Telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	br, err := bridge.New(bridge.Options{
		Config:    cfg.Refoss,
		BridgeID:  cfg.Site.ID,
		Version:   version,
		Topics:    mqttClient.Topics(),
		QoS:       mqttClient.QoS(),
		MQTT:      mqttClient,
		Registry:  reg,
		Telemetry: telemetry,
		Logger:    log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()
	log.Info("bridge started", "configured_devices", len(cfg.Refoss.Devices))

	if cfg.Refoss.Discovery.Enabled {
		go runDiscovery(ctx, cfg.Refoss.Discovery, br, log)
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Bridge:  br,
			Bus:     br.Bus(),
			Health:  br.Health(),
			Clicks:  reg,
			MQTT:    mqttClient,
			DB:      db.DB,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API, bridge, InfluxDB, MQTT, database.
	log.Info("Refoss bridge stopped")
	return nil
}

// runDiscovery browses for devices until ctx is done and hands every new
// host to the bridge.
func runDiscovery(ctx context.Context, cfg config.RefossDiscoveryConfig, br *bridge.Bridge, log *logging.Logger) {
	browser := discovery.NewBrowser(discovery.Config{
		Service:   cfg.Service,
		Domain:    cfg.Domain,
		Interface: cfg.Interface,
	})
	browser.SetLogger(log.Component("discovery"))

	err := browser.Browse(ctx, func(svc discovery.Service) {
		host := svc.Address()
		err := br.AddHost(host)
		switch {
		case err == nil:
			log.Info("discovered device added", "instance", svc.Instance, "host", host)
		case errors.Is(err, bridge.ErrAlreadyManaged):
			log.Debug("discovered device already managed", "host", host)
		default:
			log.Warn("adding discovered device failed", "host", host, "error", err)
		}
	})
	if err != nil {
		log.Error("mDNS discovery stopped", "error", err)
	}
}

// getConfigPath returns the configuration file path.
// Uses REFOSS_BRIDGE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
