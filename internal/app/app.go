package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/handlers"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
	"github.com/ternarybob/docpipe/internal/services/events"
	"github.com/ternarybob/docpipe/internal/services/imaging"
	"github.com/ternarybob/docpipe/internal/services/ocr"
	"github.com/ternarybob/docpipe/internal/services/pdf"
	"github.com/ternarybob/docpipe/internal/services/qr"
	"github.com/ternarybob/docpipe/internal/services/raster"
	"github.com/ternarybob/docpipe/internal/services/session"
	"github.com/ternarybob/docpipe/internal/services/speech"
	"github.com/ternarybob/docpipe/internal/services/transform"
	"github.com/ternarybob/docpipe/internal/services/video"
	"github.com/ternarybob/docpipe/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService

	// Artifact services
	ArtifactStore *artifacts.Store
	Materializer  *artifacts.Materializer

	// Operation services
	Registry          *transform.Registry
	SessionController *session.Controller
	Sweeper           *session.Sweeper

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	SessionHandler  *handlers.SessionHandler
	ArtifactHandler *handlers.ArtifactHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.Sweeper.Start(cfg.Sessions.SweepSchedule); err != nil {
		return nil, fmt.Errorf("failed to start session sweeper: %w", err)
	}

	logger.Info().
		Int("operations", len(app.Registry.List())).
		Str("artifacts_dir", cfg.Storage.Artifacts.Dir).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes engines, the registry and the session controller
func (a *App) initServices() error {
	var err error

	a.ArtifactStore, err = artifacts.NewStore(&a.Config.Storage.Artifacts, a.StorageManager.ArtifactStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}
	a.Materializer = artifacts.NewMaterializer(a.ArtifactStore, a.Logger)

	a.Registry = transform.NewRegistry(transform.Engines{
		PDF:        pdf.NewEngine(a.Logger),
		Extractor:  pdf.NewExtractor(a.Logger),
		Generator:  pdf.NewGenerator(a.Logger),
		Rasterizer: raster.NewRasterizer(a.Logger),
		OCR:        ocr.NewEngine(a.Config.OCR.Languages, a.Logger),
		Speech:     speech.NewClient(&a.Config.Speech, a.Logger),
		QR:         qr.NewEncoder(),
		Video:      video.NewTranscoder(&a.Config.Video, a.Logger),
		Images:     imaging.NewResizer(),
	}, transform.Defaults{
		DPI:            int(a.Config.Render.DPI),
		OCRLanguage:    ocrDefaultLanguage(a.Config.OCR.Languages),
		SpeechLanguage: a.Config.Speech.DefaultLanguage,
		VideoHeight:    a.Config.Video.DefaultHeight,
		OCRWorkers:     a.Config.OCR.Workers,
	}, a.Logger)

	idleTimeout, err := a.Config.SessionIdleTimeout()
	if err != nil {
		return err
	}

	a.SessionController = session.NewController(
		a.StorageManager.SessionStorage(),
		a.ArtifactStore,
		a.Materializer,
		a.Registry,
		a.EventService,
		idleTimeout,
		a.Logger,
	)
	if _, err := a.SessionController.RecoverInterrupted(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to recover interrupted sessions")
	}

	a.Sweeper = session.NewSweeper(a.SessionController, a.Logger)

	a.Logger.Debug().Dur("idle_timeout", idleTimeout).Msg("Session controller initialized")
	return nil
}

// initHandlers creates the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Registry, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.SessionController, a.Config.Storage.Artifacts.MaxUploadBytes, a.Logger)
	a.ArtifactHandler = handlers.NewArtifactHandler(a.ArtifactStore, a.Materializer, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// ocrDefaultLanguage joins the configured tesseract languages with "+"
func ocrDefaultLanguage(languages []string) string {
	if len(languages) == 0 {
		return "eng"
	}
	return strings.Join(languages, "+")
}

// Close stops background work and releases storage
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
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
