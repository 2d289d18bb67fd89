package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stocky-app/stocky-core/internal/api"
	"github.com/stocky-app/stocky-core/internal/audit"
	"github.com/stocky-app/stocky-core/internal/connection"
	"github.com/stocky-app/stocky-core/internal/coordinator"
	"github.com/stocky-app/stocky-core/internal/events"
	"github.com/stocky-app/stocky-core/internal/infrastructure/config"
	"github.com/stocky-app/stocky-core/internal/infrastructure/database"
	"github.com/stocky-app/stocky-core/internal/infrastructure/influxdb"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
	"github.com/stocky-app/stocky-core/internal/infrastructure/mqtt"
	"github.com/stocky-app/stocky-core/internal/infrastructure/telemetry"
	"github.com/stocky-app/stocky-core/internal/protocol"
	"github.com/stocky-app/stocky-core/internal/resolver"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// shutdownTimeout bounds the event drain and telemetry flush on exit.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner API and UI push server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Stocky Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", path, "level", cfg.Logging.Level)

	tel, err := telemetry.Init(ctx, cfg.Telemetry, cfg.App, version, log)
	if err != nil {
		return fmt.Errorf("initialising telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := tel.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("error flushing telemetry", "error", shutdownErr)
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	checks := map[string]api.HealthChecker{"database": db}

	registry, err := newRegistry(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// MQTT is optional: it carries outbound events and, optionally, inbound scans.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
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
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	itemResolver, resolverCheck := newResolver(cfg, db)
	if resolverCheck != nil {
		checks["resolver"] = resolverCheck
	}
	log.Info("item resolver ready", "backend", cfg.Resolver.Backend)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	emitter := newEmitter(cfg, auditRepo, mqttClient, influxClient, log)

	conns := connection.NewManager()
	conns.SetLogger(log)
	conns.SetOnOpen(func(uiID string) {
		emitter.Emit(events.Event{Type: events.TypeConnectionOpened, UIInstanceID: uiID})
	})
	conns.SetOnClose(func(uiID, reason string) {
		emitter.Emit(events.Event{Type: events.TypeConnectionClosed, UIInstanceID: uiID, Outcome: reason})
	})

	coord := coordinator.New(registry, conns, itemResolver, emitter, coordinator.Config{
		CASRetries: cfg.Scanner.CASRetries,
		Markers: protocol.Markers{
			LocationPrefix: cfg.Scanner.LocationPrefix,
			ModePrefix:     cfg.Scanner.ModePrefix,
		},
	})
	coord.SetLogger(log)

	var ingressTopic string
	if mqttClient != nil && cfg.MQTT.ScanIngress {
		ingressTopic = mqtt.Topics{}.AllScannerScans()
		//nolint:gosec // G115: QoS validated to 0-2 by config.Validate
		if subErr := mqttClient.Subscribe(ingressTopic, byte(cfg.MQTT.QoS), coord.HandleMQTTScan); subErr != nil {
			return fmt.Errorf("subscribing to scanner scans: %w", subErr)
		}
		log.Warn("MQTT scan ingress enabled; topic device ids are trusted as API keys", "topic", ingressTopic)
	}

	var auditRepository audit.Repository
	if cfg.Events.Audit {
		auditRepository = auditRepo
	}
	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Coordinator: coord,
		Registry:    registry,
		Connections: conns,
		Audit:       auditRepository,
		DB:          db.DB,
		Checks:      checks,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	emitter.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })

	log.Info("initialisation complete", "scanners", registry.Count())
	serveErr := g.Wait()

	if ingressTopic != "" {
		if unsubErr := mqttClient.Unsubscribe(ingressTopic); unsubErr != nil {
			log.Warn("failed to stop MQTT scan ingress", "error", unsubErr)
		}
	}

	log.Info("shutting down, draining events")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := emitter.Close(drainCtx); closeErr != nil {
		log.Warn("event queue not fully drained", "error", closeErr)
	}
	if influxClient != nil {
		influxClient.Flush()
	}
	emitted, dropped := emitter.Stats()
	log.Info("Stocky Core stopped", "events_emitted", emitted, "events_dropped", dropped)

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// newRegistry builds the scanner registry, loading persisted state when
// write-through is enabled.
func newRegistry(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*scanner.Registry, error) {
	var repo scanner.Repository
	if cfg.Scanner.Persist {
		repo = scanner.NewSQLiteRepository(db.DB)
	}

	registry := scanner.NewRegistry(repo)
	registry.SetLogger(log)

	if repo != nil {
		if err := registry.RefreshCache(ctx); err != nil {
			return nil, fmt.Errorf("loading scanner states: %w", err)
		}
	}
	log.Info("scanner registry initialised", "scanners", registry.Count(), "persist", cfg.Scanner.Persist)
	return registry, nil
}

// newResolver selects the item resolver backend. The second return is a
// health check for remote backends, nil otherwise.
func newResolver(cfg *config.Config, db *database.DB) (coordinator.ItemResolver, api.HealthChecker) {
	if cfg.Resolver.Backend == "http" {
		r := resolver.NewHTTPResolver(cfg.Resolver.BaseURL, cfg.GetResolverTimeout())
		return r, r
	}
	return resolver.NewSQLiteResolver(db.DB), nil
}

// newEmitter wires the event sinks enabled by config. The log sink is always
// present.
func newEmitter(cfg *config.Config, repo audit.Repository, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) *events.Emitter {
	em := events.NewEmitter(cfg.Events.QueueSize, events.NewLogSink(log))
	em.SetLogger(log)

	if cfg.Events.Audit {
		em.AddSink(events.NewAuditSink(repo))
	}
	if mqttClient != nil {
		em.AddSink(events.NewMQTTSink(mqttClient))
	}
	if influxClient != nil {
		em.AddSink(events.NewMetricsSink(influxClient))
	}
	return em
}
