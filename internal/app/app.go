// Package app wires configuration, external clients and the resolution
// engine into one container shared by every command.
package app

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/auditentry"
	"github.com/Ramsey-B/clover/pkg/audit"
	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/pipeline"
	"github.com/Ramsey-B/clover/pkg/progress"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/similarity"
	"github.com/Ramsey-B/clover/pkg/startup"
)

// App holds the started dependencies of the process
type App struct {
	Config *config.Config
	Logger ectologger.Logger

	DB       *database.DatabaseInstance
	Graph    *graph.Client
	Redis    *redis.Client
	Producer *kafka.Producer

	GraphStore   *graph.Store
	Query        *graph.QueryService
	Trail        *audit.Trail
	Tracker      *progress.RedisTracker
	Emitter      *events.Emitter
	Orchestrator *pipeline.Orchestrator
	Health       *health.Checker

	startup *startup.Startup
}

// New validates cfg and builds an unstarted App
func New(cfg *config.Config, logger ectologger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Health:  health.NewChecker(cfg.AppName),
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
	a.register()
	return a, nil
}

func (a *App) register() {
	cfg := a.Config

	a.startup.AddDependency(&startup.Dependency{
		Name: "postgres",
		StartFn: func(ctx context.Context) error {
			db, err := database.Connect(ctx, cfg.DatabaseConfig(), a.Logger)
			if err != nil {
				return err
			}
			a.DB = db
			a.Health.AddCheck("database", db.PingContext)
			return nil
		},
		StopFn: func(context.Context) error { return a.DB.Close() },
	})

	a.startup.AddDependency(&startup.Dependency{
		Name: "graph",
		StartFn: func(ctx context.Context) error {
			client, err := graph.NewClient(cfg.GraphConfig(), a.Logger)
			if err != nil {
				return err
			}
			if err := client.VerifyConnectivity(ctx); err != nil {
				_ = client.Close(ctx)
				return fmt.Errorf("failed to reach graph database: %w", err)
			}
			a.Graph = client
			a.GraphStore = graph.NewStore(client, a.Logger)
			a.Query = graph.NewQueryService(client, a.Logger)
			if err := a.GraphStore.EnsureSchema(ctx); err != nil {
				return err
			}
			a.Health.AddCheck("graph", client.VerifyConnectivity)
			return nil
		},
		StopFn: func(ctx context.Context) error { return a.Graph.Close(ctx) },
	})

	if cfg.RedisEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFn: func(ctx context.Context) error {
				rdb, err := progress.Connect(ctx, cfg.RedisConfig(), a.Logger)
				if err != nil {
					return err
				}
				a.Redis = rdb
				a.Tracker = progress.NewRedisTracker(rdb, cfg.RedisConfig(), a.Logger)
				a.Health.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
				return nil
			},
			StopFn: func(context.Context) error { return a.Redis.Close() },
		})
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka",
			StartFn: func(context.Context) error {
				a.Producer = kafka.NewProducer(cfg.ProducerConfig(), a.Logger)
				a.Emitter = events.NewEmitter(a.Producer, a.Logger)
				return nil
			},
			StopFn: func(context.Context) error { return a.Producer.Close() },
		})
	}

	requires := []string{"postgres", "graph"}
	if cfg.RedisEnabled {
		requires = append(requires, "redis")
	}
	if cfg.KafkaEnabled {
		requires = append(requires, "kafka")
	}
	a.startup.AddDependency(&startup.Dependency{
		Name:     "engine",
		Requires: requires,
		StartFn: func(context.Context) error {
			a.buildEngine()
			return nil
		},
	})
}

func (a *App) buildEngine() {
	cfg := a.Config

	opts := []audit.Option{audit.WithLinkSource(a.Query)}
	if a.Emitter != nil {
		opts = append(opts, audit.WithSink(a.Emitter))
	}
	a.Trail = audit.NewTrail(a.Logger, auditentry.NewRepository(a.DB, a.Logger), cfg.AuditConfig(), opts...)

	sim := similarity.NewEngine(cfg.MatchConfig())
	deps := pipeline.Dependencies{
		Reader:    ingest.NewReader(a.Logger),
		Validator: ingest.NewValidator(),
		Matcher:   matching.NewEngine(a.Logger, sim, cfg.MatcherConfig()),
		Clusterer: clustering.NewClusterer(a.Logger, sim),
		Merger:    merging.NewEngine(a.Logger, cfg.MergeConfig()),
		Writer:    a.GraphStore,
		Audit:     a.Trail,
	}
	if a.Emitter != nil {
		deps.Events = a.Emitter
	}
	if a.Tracker != nil {
		deps.Progress = a.Tracker
	}
	a.Orchestrator = pipeline.NewOrchestrator(a.Logger, deps)
	a.Health.SetReady(true)
}

// Start connects every dependency, retrying with backoff
func (a *App) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

// Stop releases every started dependency
func (a *App) Stop(ctx context.Context) error {
	a.Health.SetReady(false)
	return a.startup.Stop(ctx)
}

// Migrate applies the audit store migrations, connecting to postgres if the
// App has not been started
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		db, err := database.Connect(ctx, a.Config.DatabaseConfig(), a.Logger)
		if err != nil {
			return err
		}
		defer db.Close()
		a.DB = db
		defer func() { a.DB = nil }()
	}
	ms := database.NewMigrationService(a.Logger, a.Config.MigrationConfig())
	return ms.MigratePostgres(a.DB, a.Config.DatabaseName)
}
