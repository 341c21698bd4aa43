// Homey Core - smart home dashboard service
//
// This is the main entry point for the Homey Core application. It serves
// the device dashboard and its REST/WebSocket API, backed by a local
// identity service, with optional MQTT and InfluxDB sinks for device state.
//
// Usage:
//
//	homey                   run the service
//	homey -confirm <email>  confirm an account's email and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nerrad567/homey-core/migrations"

	"github.com/nerrad567/homey-core/internal/api"
	"github.com/nerrad567/homey-core/internal/audit"
	"github.com/nerrad567/homey-core/internal/device"
	"github.com/nerrad567/homey-core/internal/identity"
	"github.com/nerrad567/homey-core/internal/infrastructure/config"
	"github.com/nerrad567/homey-core/internal/infrastructure/database"
	"github.com/nerrad567/homey-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homey-core/internal/infrastructure/logging"
	"github.com/nerrad567/homey-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// sessionCleanupInterval is how often expired sessions are purged.
const sessionCleanupInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("homey", flag.ContinueOnError)
	confirmEmail := flags.String("confirm", "", "confirm the email of an existing account and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting Homey Core",
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

	log = logging.New(cfg.Logging, version).With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"site_name", cfg.Site.Name,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	provider, err := identity.NewLocalProvider(db.DB, identity.Options{
		Secret:                   cfg.Security.JWT.Secret,
		AccessTTL:                cfg.GetAccessTokenTTL(),
		RefreshTTL:               cfg.GetRefreshTokenTTL(),
		RequireEmailConfirmation: cfg.Identity.RequireEmailConfirmation,
		MinPasswordLength:        cfg.Identity.MinPasswordLength,
		Logger:                   log,
	})
	if err != nil {
		return fmt.Errorf("creating identity provider: %w", err)
	}
	defer provider.Close()

	if *confirmEmail != "" {
		if err := provider.ConfirmEmail(ctx, *confirmEmail); err != nil {
			return fmt.Errorf("confirming %s: %w", *confirmEmail, err)
		}
		return nil
	}

	// Background workers stop before the database closes.
	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	workers.Add(1)
	go func() {
		defer workers.Done()
		provider.RunCleanup(workerCtx, sessionCleanupInterval)
	}()

	store := newDeviceStore(cfg.Dashboard, log)
	log.Info("device registry initialised", "devices", store.Snapshot().Len())

	activity := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(activity, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		recorder.Run(workerCtx)
	}()

	mqttClient, err := startMQTT(cfg, store, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer mqttClient.bridge.Stop()
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		stopTracking := influxClient.TrackStore(store)
		defer stopTracking()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Site:        cfg.Site,
		Logger:      log,
		Devices:     store,
		Identity:    provider,
		Activity:    activity,
		Recorder:    recorder,
		RoomOptions: cfg.Dashboard.RoomOptions,
		PanelDir:    cfg.Dashboard.PanelDir,
		Version:     version,
	})
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

	var mc *mqtt.Client
	if mqttClient != nil {
		mc = mqttClient.client
	}
	if err := healthCheck(ctx, db, mc, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, InfluxDB, MQTT,
	// background workers (activity log drained), identity, database.
	log.Info("Homey Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newDeviceStore creates the in-memory device store, seeded with the demo
// devices unless the dashboard config turns them off.
func newDeviceStore(cfg config.DashboardConfig, log *logging.Logger) *device.Store {
	var registry device.Registry
	if cfg.SeedDevices {
		registry = device.NewRegistry(device.DefaultSeed()...)
	} else {
		registry = device.NewRegistry()
	}
	store := device.NewStore(registry)
	store.SetLogger(log)
	return store
}

type mqttSink struct {
	client *mqtt.Client
	bridge *mqtt.DeviceBridge
}

// startMQTT connects to the broker and starts the device bridge. It
// returns nil when MQTT is disabled.
func startMQTT(cfg *config.Config, store *device.Store, log *logging.Logger) (*mqttSink, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridge := mqtt.NewDeviceBridge(client, store, byte(cfg.MQTT.QoS), log)
	if err := bridge.Start(); err != nil {
		return nil, errors.Join(fmt.Errorf("starting device bridge: %w", err), client.Close())
	}
	log.Info("MQTT device bridge started")

	return &mqttSink{client: client, bridge: bridge}, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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
