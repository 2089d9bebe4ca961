package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jkaninda/msimamizi/internal/backend"
	"github.com/jkaninda/msimamizi/internal/config"
	"github.com/jkaninda/msimamizi/internal/events"
	"github.com/jkaninda/msimamizi/internal/observability"
	"github.com/jkaninda/msimamizi/internal/storage"
	pgstore "github.com/jkaninda/msimamizi/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/msimamizi/internal/storage/sqlite"
	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// components holds all initialized subsystems that both serve and run modes
// require. Built once by initComponents, torn down by Cleanup.
type components struct {
	Config  *config.Config
	Logger  *slog.Logger
	Obs     *observability.Observability
	Store   storage.Store
	Engine  *supervisor.Engine
	Manager *supervisor.Manager

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (c *components) Cleanup() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
}

func (c *components) addCleanup(fn func()) {
	c.cleanups = append(c.cleanups, fn)
}

// initComponents performs all common initialization shared between serve and
// run modes. The sink receives engine events; pass nil to discard them.
// Callers must call c.Cleanup() when done.
func initComponents(cfg *config.Config, logger *slog.Logger, sink events.Sink) (*components, error) {
	c := &components{Config: cfg, Logger: logger}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	c.Obs = obs
	c.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Storage (SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	c.Store = store
	c.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	// Run migrations.
	if err := store.Migrate(context.Background()); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Readiness probes report the database once configured.
	if obs != nil && obs.Health != nil && cfg.Observability.Health != nil && cfg.Observability.Health.IncludeDB {
		obs.Health.AddCheck("database", store.Ping)
	}

	// Agent backend.
	be, err := initBackend(cfg, logger)
	if err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("initializing backend: %w", err)
	}
	logger.Debug("backend initialized", slog.String("type", cfg.Backend.BackendType()))

	if obs != nil && obs.Metrics != nil {
		be = observability.NewInstrumentedBackend(be, obs.Metrics, obs.TracerOrNil())
	}

	// Engine and run manager.
	engine := supervisor.NewEngine(be, engineConfig(cfg.Supervisor), logger).
		WithMetrics(obs.SupervisorMetricsOrNil())
	if ts := obs.TracerOrNil(); ts != nil {
		engine.WithTracer(ts.Tracer())
	}
	if sink != nil {
		engine.WithEvents(sink)
	}
	c.Engine = engine
	c.Manager = supervisor.NewManager(engine, store.Runs(), rosterFromConfig(cfg.Agents), logger)

	return c, nil
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.StorageDriverName(); driver {
	case "postgres":
		return initPostgresStore(cfg, logger)
	case "sqlite":
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	dbPath := cfg.DatabasePath()
	journalMode := "wal"

	if cfg.Storage != nil && cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path != "" {
			dbPath = cfg.Storage.SQLite.Path
		}
		if cfg.Storage.SQLite.JournalMode != "" {
			journalMode = cfg.Storage.SQLite.JournalMode
		}
	}

	return sqlitestore.Open(sqlitestore.Config{
		Path:        dbPath,
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	// Load folds MSIMAMIZI_DB_DSN into the config and validates it, so the
	// DSN is guaranteed present here.
	pgCfg := pgstore.Config{DSN: cfg.Storage.Postgres.DSN}
	pgCfg.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
	pgCfg.MaxIdleConns = cfg.Storage.Postgres.MaxIdleConns
	pgCfg.ConnMaxLifetime = time.Duration(cfg.Storage.Postgres.ConnMaxLifetimeS) * time.Second

	return pgstore.Open(pgCfg, logger)
}

// initBackend creates the agent execution backend from config.
func initBackend(cfg *config.Config, logger *slog.Logger) (supervisor.Backend, error) {
	switch cfg.Backend.BackendType() {
	case "echo":
		return backend.Echo{}, nil
	case "http":
		opts := []backend.Option{
			backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout()}),
		}
		if cfg.Backend.Token != "" {
			opts = append(opts, backend.WithToken(cfg.Backend.Token))
		}
		for _, a := range cfg.Agents {
			if a.URL != "" {
				opts = append(opts, backend.WithEndpoint(a.ID, a.URL))
			}
		}
		return backend.NewHTTP(cfg.Backend.BaseURL, logger, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.Backend.Type)
	}
}

// engineConfig converts config types to engine types.
func engineConfig(sc config.SupervisorConfig) supervisor.Config {
	return supervisor.Config{
		MaxParallelAgents:  sc.MaxParallelAgents,
		AgentTimeout:       sc.AgentTimeout(),
		MaxRetries:         sc.MaxRetries,
		ConsensusRequired:  sc.ConsensusRequired,
		ConsensusThreshold: sc.ConsensusThreshold,
		MaxCheckpoints:     sc.MaxCheckpoints,
	}
}

// rosterFromConfig builds the static agent roster handed to every run.
func rosterFromConfig(agents []config.AgentConfig) []*supervisor.Agent {
	roster := make([]*supervisor.Agent, 0, len(agents))
	for _, a := range agents {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		roster = append(roster, &supervisor.Agent{
			ID:       a.ID,
			Name:     name,
			Role:     supervisor.AgentRole(a.Role),
			Type:     a.Type,
			Status:   supervisor.AgentIdle,
			Priority: a.Priority,
		})
	}
	return roster
}
