package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DenisZakharchuk/onward-sub002/internal/api"
	"github.com/DenisZakharchuk/onward-sub002/internal/audit"
	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
	"github.com/DenisZakharchuk/onward-sub002/internal/events"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/config"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/influxdb"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/logging"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/mqtt"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/telemetry"
)

// shutdownTimeout bounds flushing of tracing and queued security events.
const shutdownTimeout = 5 * time.Second

// serveOptions controls background housekeeping while serving.
type serveOptions struct {
	pruneInterval  time.Duration
	pruneRetention time.Duration
	publishAll     bool
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var so serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, log, so)
		},
	}

	cmd.Flags().DurationVar(&so.pruneInterval, "prune-interval", time.Hour, "How often expired refresh tokens are pruned (0 disables)")
	cmd.Flags().DurationVar(&so.pruneRetention, "prune-retention", 30*24*time.Hour, "How long expired refresh tokens are kept for reuse detection")
	cmd.Flags().BoolVar(&so.publishAll, "mqtt-all-events", false, "Publish informational security events to MQTT as well as incidents")
	return cmd
}

// runServe wires every component and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, log *logging.Logger, so serveOptions) error { //nolint:gocognit,gocyclo,funlen // linear startup sequence
	log.Info("starting onward",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("initialising telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("error shutting down telemetry", "error", err)
		}
	}()

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	st := newStores(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	eventMetrics, err := events.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering event metrics: %w", err)
	}

	eventLog := log.With("component", "events").Slog()
	fanout := events.NewFanout(eventLog).
		Add("audit", events.NewAuditSink(st.audit, audit.SourceAPI)).
		Add("metrics", eventMetrics)
	health := map[string]api.HealthChecker{"database": db}
	var queues []*events.Async

	// MQTT incident publication (optional)
	if cfg.MQTT.Enabled {
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
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		queue := events.NewAsync("mqtt", events.NewMQTTSink(mqttClient, mqttClient.Topics(), so.publishAll), 0, eventLog)
		queues = append(queues, queue)
		fanout.Add("mqtt", queue)
		health["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB auth event series (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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

		fanout.Add("influxdb", events.NewInfluxSink(influxClient))
		health["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Queued sinks outlive ctx so they can drain after the API stops.
	for _, q := range queues {
		go q.Run(context.WithoutCancel(ctx)) //nolint:errcheck // Run only returns nil
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, q := range queues {
			if err := q.Close(drainCtx); err != nil {
				log.Warn("security event queue not drained", "error", err)
			}
		}
	}()

	stack, err := newAuthStack(cfg, st, fanout, log.Slog())
	if err != nil {
		return fmt.Errorf("building auth service: %w", err)
	}
	if err := bootstrap(ctx, cfg.Bootstrap, st, stack.hasher, log.Slog()); err != nil {
		return err
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		RateLimit: cfg.Security.RateLimit,
		Logger:    log.With("component", "api"),
		Auth:      stack.service,
		Tokens:    stack.issuer,
		Audit:     st.audit,
		Health:    health,
		Metrics:   registry,
		Version:   version,
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

	log.Info("onward started", "address", server.Addr())

	g, gctx := errgroup.WithContext(ctx)
	if so.pruneInterval > 0 {
		g.Go(func() error {
			runHousekeeping(gctx, stack.rotation, so.pruneInterval, so.pruneRetention, log)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, stopping services")
	return nil
}

// runHousekeeping deletes long-expired refresh tokens on every tick until
// ctx is cancelled.
func runHousekeeping(ctx context.Context, rotation *auth.TokenRotationService, interval, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rotation.Prune(ctx, retention)
			if err != nil {
				log.Error("refresh token prune failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("pruned expired refresh tokens", "deleted", n)
			}
		}
	}
}
