package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nerrad567/graystore/internal/api"
	"github.com/nerrad567/graystore/internal/checkpoint"
	"github.com/nerrad567/graystore/internal/infrastructure/config"
	"github.com/nerrad567/graystore/internal/infrastructure/influxdb"
	"github.com/nerrad567/graystore/internal/infrastructure/logging"
	"github.com/nerrad567/graystore/internal/infrastructure/mqtt"
	"github.com/nerrad567/graystore/internal/trace"
)

// newRunCmd creates the "graystore run" subcommand.
func newRunCmd(load loadFunc, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the configured databases and checkpoint them until stopped",
		Long: "Opens every configured database through its configuration chain and\n" +
			"checkpoints write-ahead logs after commits settle. Reloads the\n" +
			"configuration file when it changes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, log, *configPath)
		},
	}
}

// reconfigureListener is told when a database picks up a new chain.
type reconfigureListener interface {
	Reconfigured(path string, configs []string, err error)
}

// run is the long-running service, separated from the command for testability.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger, configPath string) error {
	log.Info("starting Gray Store",
		"version", version,
		"commit", commit,
		"build_date", date,
		"databases", len(cfg.Databases),
	)

	// Connect to InfluxDB (optional). Done first so that its footprint
	// sink is in place before any chain is applied.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var err error
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	var extra []trace.PerformanceTrace
	if influxClient != nil {
		extra = append(extra, influxClient.FootprintTrace())
	}
	a, err := newApp(cfg, log, extra...)
	if err != nil {
		return err
	}

	sched := checkpoint.New(a.databases, checkpoint.Options{
		Delay:         cfg.Checkpoint.Delay,
		PageThreshold: cfg.Checkpoint.PageThreshold,
		EventBuffer:   cfg.Checkpoint.EventBuffer,
		Timeout:       cfg.Checkpoint.Timeout,
	})
	sched.SetLogger(log.Component("checkpoint"))
	if influxClient != nil {
		sched.AddNotifier(influxClient)
	}

	var listeners []reconfigureListener

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
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

		notifier := mqtt.NewCheckpointNotifier(mqttClient, mqttClient.Topics(), log.Component("mqtt"))
		sched.AddNotifier(notifier)
		listeners = append(listeners, notifier)

		if subErr := mqttClient.Subscribe(mqttClient.Topics().CheckpointCommand(), byte(cfg.MQTT.QoS),
			mqtt.CheckpointCommandHandler(sched.Sweep, a.databases.Paths)); subErr != nil {
			return fmt.Errorf("subscribing to checkpoint commands: %w", subErr)
		}
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Open databases. The scheduler is closed before the databases so that
	// no checkpoint runs against a closing handle.
	defer a.close()
	defer func() {
		log.Info("stopping checkpoint scheduler")
		if closeErr := sched.Close(); closeErr != nil {
			log.Error("error stopping checkpoint scheduler", "error", closeErr)
		}
	}()
	if _, err := a.openAll(ctx, cfg, sched); err != nil {
		return err
	}
	log.Info("databases opened", "paths", a.databases.Paths())

	// HTTP admin API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log.Component("api"),
			Databases: a.databases,
			Scheduler: sched,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		sched.AddNotifier(server.Hub())
		listeners = append(listeners, server.Hub())
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Periodic sweep (optional)
	if cfg.Checkpoint.SweepSchedule != "" {
		sweeper := cron.New()
		if _, cronErr := sweeper.AddFunc(cfg.Checkpoint.SweepSchedule, func() {
			sched.Sweep(a.databases.Paths()...)
			if influxClient != nil {
				influxClient.WriteSchedulerStats(sched.Stats())
			}
		}); cronErr != nil {
			return fmt.Errorf("scheduling checkpoint sweep: %w", cronErr)
		}
		sweeper.Start()
		defer func() {
			<-sweeper.Stop().Done()
		}()
		log.Info("checkpoint sweep scheduled", "schedule", cfg.Checkpoint.SweepSchedule)
	}

	// Reload on config change
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath,
				func(next *config.Config) { reload(ctx, a, sched, next, listeners) },
				func(err error) { log.Warn("configuration reload rejected", "error", err) },
			)
			if err != nil {
				log.Warn("configuration watch stopped", "error", err)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: sweep, API, scheduler,
	// databases, MQTT, InfluxDB.
	return nil
}

// reload applies a changed configuration. Databases that stay listed are
// reconfigured with a freshly built chain, new ones are opened and removed
// ones are closed.
func reload(ctx context.Context, a *app, sched *checkpoint.Scheduler, next *config.Config, listeners []reconfigureListener) {
	if err := a.apply(next); err != nil {
		a.log.Warn("configuration reload rejected", "error", err)
		return
	}

	open := make(map[string]bool)
	for _, path := range a.databases.Paths() {
		open[path] = true
	}

	wanted := make(map[string]bool, len(next.Databases))
	for _, dbCfg := range next.Databases {
		db, err := a.open(ctx, dbCfg, sched)
		if err != nil {
			a.log.Error("opening database on reload failed", "path", dbCfg.Path, "error", err)
			continue
		}
		wanted[db.Path()] = true
		if !open[db.Path()] {
			a.log.Info("database opened", "path", db.Path())
			continue
		}

		chain := a.chainFor(dbCfg, sched)
		err = db.Reconfigure(ctx, chain)
		if err != nil {
			a.log.Error("reconfiguring database failed", "path", db.Path(), "error", err)
		} else {
			a.log.Info("database reconfigured", "path", db.Path(), "configs", chain.Names())
		}
		for _, l := range listeners {
			l.Reconfigured(db.Path(), db.Chain().Names(), err)
		}
	}

	for path := range open {
		if wanted[path] {
			continue
		}
		if err := a.databases.Close(path); err != nil {
			a.log.Warn("closing removed database failed", "path", path, "error", err)
			continue
		}
		a.log.Info("database closed, no longer configured", "path", path)
	}
}
