package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/actuator"
	"github.com/nerrad567/gray-logic-sfc/internal/api"
	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sfc/internal/monitor"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
	"github.com/nerrad567/gray-logic-sfc/internal/sfc"
	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

// runShutdownTimeout bounds cancelling live runs at shutdown.
const runShutdownTimeout = 15 * time.Second

// runServe is the service lifecycle, separated from the command for
// testability. It blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Configuration file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting sfcd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best-effort flush of the log file at exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// MQTT carries gateway traffic and the run event mirror. It is only
	// required when variables are reached through the gateway.
	var mqttClient *mqtt.Client
	if cfg.Gateway.Mode == config.GatewayModeMQTT {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	access, stopAccess, err := startVariableAccess(cfg, mqttClient, log)
	if err != nil {
		return err
	}
	defer stopAccess()

	// InfluxDB mirrors recorded samples (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Persistence
	designs := design.NewSQLiteRepository(db.DB)
	cat := catalog.NewSQLiteRepository(db.DB)
	store := recording.NewSQLiteStore(db.DB)
	var sink recording.Sink = store
	if influxClient != nil {
		sink = recording.NewTee(log, store, recording.NewInfluxMirror(influxClient))
	}
	names := catalog.NewResolver(cat, cfg.Monitor.ResolverTTL())

	// Status fan-out
	events := broadcast.New(log)
	if mqttClient != nil {
		events.AddSink(broadcast.NewMQTTMirror(mqttClient))
	}

	// Execution
	mon := monitor.New(access, sink, store, names, monitor.Options{
		Interval:            cfg.Monitor.PollInterval(),
		FallbackConcurrency: cfg.Monitor.FallbackConcurrency,
	}, log)
	manager := sfc.NewManager(sfc.Deps{
		Designs:  designs,
		Servers:  cat,
		Tracking: cat,
		Monitor:  mon,
		Ramper:   actuator.New(access, log),
		Events:   events,
	}, sfc.Options{
		Executor: sfc.ExecutorOptions{
			Heartbeat:      cfg.Execution.Heartbeat(),
			StepsPerSecond: cfg.Execution.StepsPerSecond,
		},
		Scheduler: sfc.SchedulerOptions{
			IdleWait: cfg.Execution.IdleWait(),
			Settle:   cfg.Execution.Settle(),
		},
		MonitorStop: cfg.Monitor.StopGrace(),
	}, log)
	defer func() {
		log.Info("cancelling live runs")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), runShutdownTimeout)
		defer cancel()
		if closeErr := manager.Close(shutdownCtx); closeErr != nil {
			log.Error("error stopping runs", "error", closeErr)
		}
	}()

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Designs:  designs,
		Catalog:  cat,
		Runs:     store,
		Manager:  manager,
		Names:    names,
		Database: db,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"gateway_mode", cfg.Gateway.Mode,
	)

	<-ctx.Done()

	// Deferred calls run in reverse order: API server, live runs,
	// InfluxDB, variable access, MQTT, database, log file.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// connectMQTT connects to the broker and logs connection changes.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
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
	return client, nil
}

// startVariableAccess returns the automation server access for the
// configured gateway mode, plus its shutdown function.
func startVariableAccess(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (variable.Access, func(), error) {
	if cfg.Gateway.Mode == config.GatewayModeMemory {
		log.Warn("using in-memory automation server; values are not persisted")
		return variable.NewMemoryServer(), func() {}, nil
	}

	gateway := variable.NewGateway(mqttClient, variable.GatewayOptions{
		Prefix:   cfg.Gateway.TopicPrefix,
		ClientID: cfg.MQTT.Broker.ClientID,
		Timeout:  cfg.Gateway.RequestTimeout(),
		QoS:      byte(cfg.MQTT.QoS), //nolint:gosec // QoS is validated to 0..2
	}, log)
	if err := gateway.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting variable gateway: %w", err)
	}
	log.Info("variable gateway started", "prefix", cfg.Gateway.TopicPrefix)

	return gateway, func() {
		log.Info("stopping variable gateway")
		if err := gateway.Stop(); err != nil {
			log.Error("error stopping variable gateway", "error", err)
		}
	}, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil in memory mode)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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
