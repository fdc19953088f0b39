package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/nerrad567/graystore/internal/dbconfig"
	"github.com/nerrad567/graystore/internal/infrastructure/config"
	"github.com/nerrad567/graystore/internal/infrastructure/database"
	"github.com/nerrad567/graystore/internal/infrastructure/logging"
	"github.com/nerrad567/graystore/internal/tokenizer"
	"github.com/nerrad567/graystore/internal/trace"
)

// app holds the components shared by every command.
type app struct {
	log        *logging.Logger
	traces     *trace.Registry
	tokenizers *tokenizer.Registry
	databases  *database.Registry

	// extraTraces receive every footprint alongside the configured sinks.
	extraTraces []trace.PerformanceTrace
}

// newApp builds the shared components for cfg. extra sinks receive every
// footprint whatever the trace settings say.
func newApp(cfg *config.Config, log *logging.Logger, extra ...trace.PerformanceTrace) (*app, error) {
	a := &app{
		log:         log,
		traces:      trace.NewRegistry(),
		tokenizers:  tokenizer.NewRegistry(),
		databases:   database.NewRegistry(),
		extraTraces: extra,
	}
	a.databases.SetLogger(log.Component("database"))

	if err := a.apply(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// apply loads the trace sinks and tokenizers from cfg. Databases pick the
// changes up the next time their chain is applied.
func (a *app) apply(cfg *config.Config) error {
	for _, tk := range cfg.Tokenizers {
		address, err := tk.DecodeAddress()
		if err != nil {
			return fmt.Errorf("tokenizer %q: %w", tk.Name, err)
		}
		if err := a.tokenizers.Register(tk.Name, address); err != nil {
			return err
		}
	}

	if cfg.Trace.SQL {
		a.traces.SetSQLTrace(trace.LogSQL(a.log.Component("sql")))
	} else {
		a.traces.SetSQLTrace(nil)
	}

	sinks := slices.Clone(a.extraTraces)
	if cfg.Trace.Performance {
		sinks = append([]trace.PerformanceTrace{trace.LogSlow(a.log.Component("performance"), cfg.Trace.SlowThreshold)}, sinks...)
	}
	switch len(sinks) {
	case 0:
		a.traces.SetPerformanceTrace(nil)
	case 1:
		a.traces.SetPerformanceTrace(sinks[0])
	default:
		a.traces.SetPerformanceTrace(trace.Fanout(sinks...))
	}
	return nil
}

// chainFor builds the configuration chain for one database. A nil observer
// leaves the checkpoint config out.
func (a *app) chainFor(db config.DatabaseConfig, obs dbconfig.CommitObserver) *dbconfig.Chain {
	chain := dbconfig.Default(a.traces, obs)
	if obs == nil {
		chain = chain.Without(dbconfig.NameCheckpoint)
	}
	if db.Cipher.Enabled() {
		chain = chain.With(dbconfig.Cipher(db.Cipher.Key(), db.Cipher.PageSize))
	}
	if len(db.Tokenizers) > 0 {
		chain = chain.With(dbconfig.Tokenize(a.tokenizers, db.Tokenizers...))
	}
	return chain
}

func databaseConfig(db config.DatabaseConfig) database.Config {
	return database.Config{
		Path:         db.Path,
		Readonly:     db.Readonly,
		BusyTimeout:  db.BusyTimeout,
		MaxOpenConns: db.MaxOpenConns,
	}
}

// open opens one database through its chain.
func (a *app) open(ctx context.Context, db config.DatabaseConfig, obs dbconfig.CommitObserver) (*database.DB, error) {
	opened, err := a.databases.Open(ctx, databaseConfig(db), a.chainFor(db, obs))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", db.Path, err)
	}
	return opened, nil
}

// openAll opens every configured database, or only those in paths when
// paths is not empty.
func (a *app) openAll(ctx context.Context, cfg *config.Config, obs dbconfig.CommitObserver, paths ...string) ([]*database.DB, error) {
	selected := cfg.Databases
	if len(paths) > 0 {
		selected = nil
		for _, path := range paths {
			db, ok := cfg.Database(path)
			if !ok {
				return nil, fmt.Errorf("database %s is not in the configuration", path)
			}
			selected = append(selected, db)
		}
	}

	out := make([]*database.DB, 0, len(selected))
	for _, db := range selected {
		opened, err := a.open(ctx, db, obs)
		if err != nil {
			return out, err
		}
		out = append(out, opened)
	}
	return out, nil
}

// close closes every open database.
func (a *app) close() {
	if err := a.databases.CloseAll(); err != nil {
		a.log.Error("error closing databases", "error", err)
	}
}
