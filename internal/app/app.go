package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/handlers"
	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/queue"
	"github.com/manifeed/manifeed/internal/services/catalog"
	"github.com/manifeed/manifeed/internal/services/joblock"
	"github.com/manifeed/manifeed/internal/services/orchestrator"
	"github.com/manifeed/manifeed/internal/services/sources"
	"github.com/manifeed/manifeed/internal/services/workerauth"
	"github.com/manifeed/manifeed/internal/storage/postgres"
)

// App holds the orchestrator's components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage interfaces.Storage
	Queue   interfaces.QueueClient

	// Business services
	CatalogService interfaces.CatalogService
	JobService     interfaces.JobService
	SourceService  interfaces.SourceService
	TokenService   interfaces.TokenService
	JobLocker      interfaces.JobLocker

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	RSSHandler     *handlers.RSSHandler
	SourcesHandler *handlers.SourcesHandler
	JobsHandler    *handlers.JobsHandler
	WorkersHandler *handlers.WorkersHandler

	scheduler *cron.Cron
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initQueue(); err != nil {
		app.Storage.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	app.initServices()
	app.initHandlers()
	app.startScheduler()

	logger.Info().
		Str("environment", cfg.Environment).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase connects the Postgres storage layer
func (a *App) initDatabase(ctx context.Context) error {
	store, err := postgres.New(ctx, &a.Config.Database)
	if err != nil {
		return err
	}
	a.Storage = store
	return nil
}

// initQueue connects the Redis streams client
func (a *App) initQueue() error {
	client, err := queue.NewClient(a.Config.Redis.URL)
	if err != nil {
		return err
	}
	a.Queue = client
	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() {
	a.JobLocker = joblock.NewService(a.Storage, a.Logger)
	a.CatalogService = catalog.NewService(a.Storage, a.Config, a.Logger)
	a.JobService = orchestrator.NewService(a.Storage, a.Queue, a.Config, a.Logger)
	a.SourceService = sources.NewService(a.Storage, a.Logger)
	a.TokenService = workerauth.NewService(a.Config, a.Logger)

	a.Logger.Debug().Msg("Services initialized")
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Storage, a.Queue, a.Logger)
	a.RSSHandler = handlers.NewRSSHandler(a.CatalogService, a.JobService, a.JobLocker, a.Logger)
	a.SourcesHandler = handlers.NewSourcesHandler(a.SourceService, a.JobService, a.JobLocker, a.Logger)
	a.JobsHandler = handlers.NewJobsHandler(a.JobService, a.Logger)
	a.WorkersHandler = handlers.NewWorkersHandler(a.TokenService, a.Logger)

	a.Logger.Debug().Msg("Handlers initialized")
}

// startScheduler registers the cron jobs when the scheduler is enabled:
// weekly partition maintenance plus an optional periodic ingest run
func (a *App) startScheduler() {
	if !a.Config.Scheduler.Enabled {
		return
	}

	a.scheduler = cron.New()

	if spec := a.Config.Scheduler.PartitionSchedule; spec != "" {
		_, err := a.scheduler.AddFunc(spec, a.runPartitionMaintenance)
		if err != nil {
			a.Logger.Warn().Err(err).Str("schedule", spec).Msg("Invalid partition maintenance schedule")
		}
	}

	if spec := a.Config.Scheduler.IngestSchedule; spec != "" {
		_, err := a.scheduler.AddFunc(spec, a.runScheduledIngest)
		if err != nil {
			a.Logger.Warn().Err(err).Str("schedule", spec).Msg("Invalid ingest schedule")
		}
	}

	a.scheduler.Start()
	a.Logger.Info().
		Str("partition_schedule", a.Config.Scheduler.PartitionSchedule).
		Str("ingest_schedule", a.Config.Scheduler.IngestSchedule).
		Msg("Scheduler started")
}

func (a *App) runPartitionMaintenance() {
	ctx := context.Background()
	read, err := a.SourceService.RepartitionSources(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Scheduled partition maintenance failed")
		return
	}
	a.Logger.Info().
		Int("moved_sources", read.SourceDefaultRowsRepartitioned).
		Int("moved_links", read.SourceFeedDefaultRowsRepartitioned).
		Msg("Scheduled partition maintenance complete")
}

func (a *App) runScheduledIngest() {
	ctx := context.Background()
	err := a.JobLocker.Run(ctx, "sources_ingest", func(ctx context.Context) error {
		read, err := a.JobService.EnqueueIngestJob(ctx, nil)
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("job_id", read.JobID).
			Str("status", string(read.Status)).
			Msg("Scheduled ingest job enqueued")
		return nil
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("Scheduled ingest failed")
	}
}

// Close closes all application resources
func (a *App) Close() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.Logger.Info().Msg("Scheduler stopped")
	}

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue client")
		}
	}

	if a.Storage != nil {
		a.Storage.Close()
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
