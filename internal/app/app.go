package app

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/handlers"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/jobs"
	"github.com/ternarybob/slidegen/internal/services/downloads"
	"github.com/ternarybob/slidegen/internal/services/events"
	"github.com/ternarybob/slidegen/internal/services/images"
	"github.com/ternarybob/slidegen/internal/services/sheets"
	"github.com/ternarybob/slidegen/internal/services/slides"
	"github.com/ternarybob/slidegen/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService
	RedisRelay   *events.RedisRelay

	// Document pipeline adapters
	SheetService    *sheets.Service
	SlideService    *slides.Service
	DownloadService *downloads.Service
	ImageService    *images.Service

	// Job orchestration
	JobService *jobs.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	GroupHandler    *handlers.GroupHandler
	JobHandler      *handlers.JobHandler
	ControlHandler  *handlers.ControlHandler
	WSHandler       *handlers.WebSocketHandler
	EventSubscriber *handlers.EventSubscriber
}

// New initializes the application with all dependencies. Jobs are not
// restored or executed until Start is called.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initEvents(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize events: %w", err)
	}

	app.initServices()
	app.initHandlers()

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Int("max_concurrent_jobs", cfg.Jobs.MaxConcurrentJobs).
		Bool("redis_relay", app.RedisRelay != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer selected in the config
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, &a.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().Str("storage", a.Config.Storage.Type).Msg("Storage layer initialized")
	return nil
}

func (a *App) initEvents() error {
	a.EventService = events.NewService(a.Logger)

	if !a.Config.Notifications.Redis.Enabled {
		return nil
	}

	relay, err := events.NewRedisRelay(a.Config.Notifications.Redis, a.EventService, a.Logger)
	if err != nil {
		a.EventService.Close()
		return err
	}
	a.RedisRelay = relay
	return nil
}

func (a *App) initServices() {
	if err := os.MkdirAll(a.Config.Jobs.WorkDir, 0o755); err != nil {
		// The executor creates per-job directories itself; this is only the parent
		a.Logger.Warn().Err(err).Str("work_dir", a.Config.Jobs.WorkDir).Msg("Failed to create work directory")
	}

	a.SheetService = sheets.NewService(a.Logger)
	a.SlideService = slides.NewService(a.Logger)
	a.DownloadService = downloads.NewService(downloads.NewConfig(a.Config), a.Logger)
	a.ImageService = images.NewService(a.Logger)

	a.JobService = jobs.NewService(jobs.NewConfig(a.Config), jobs.Dependencies{
		Sheets:    a.SheetService,
		Slides:    a.SlideService,
		Downloads: a.DownloadService,
		Images:    a.ImageService,
		Events:    a.EventService,
		Storage:   a.StorageManager,
	}, a.Logger)

	a.Logger.Debug().Msg("Services initialized")
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.JobService, a.Logger)
	a.GroupHandler = handlers.NewGroupHandler(a.JobService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Logger)
	a.ControlHandler = handlers.NewControlHandler(a.JobService, a.Logger)

	a.WSHandler = handlers.NewWebSocketHandler(a.JobService, a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)

	a.Logger.Debug().Msg("Handlers initialized")
}

// Start restores persisted groups and starts the executor
func (a *App) Start(ctx context.Context) error {
	return a.JobService.Start(ctx)
}

// Close stops job execution and releases every resource in reverse order of creation
func (a *App) Close() error {
	if a.JobService != nil {
		a.JobService.Stop()
	}

	if a.EventSubscriber != nil {
		a.EventSubscriber.Close()
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
		a.Logger.Info().Msg("WebSocket clients disconnected")
	}

	if a.RedisRelay != nil {
		if err := a.RedisRelay.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close redis relay")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
