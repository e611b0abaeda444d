package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/adapters"
	adaptermongo "github.com/jonathanpv/chatgpt-voice-ui/adapters/mongo"
	"github.com/jonathanpv/chatgpt-voice-ui/domain/repositories"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/api"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/audiometrics"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/auth"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/clientlog"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/config"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/logsink"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/realtime"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/websocket"
	"github.com/jonathanpv/chatgpt-voice-ui/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Transcript persistence: MongoDB when configured, in-memory otherwise.
	var transcripts repositories.TranscriptRepository
	if cfg.MongoURI != "" {
		client, err := adaptermongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(ctx)
		}()
		transcripts = adaptermongo.NewTranscriptRepository(client.Database, logger)
	} else {
		logger.Info("No MongoDB configured, using in-memory transcript store")
		transcripts = adapters.NewMemoryTranscriptRepository()
	}

	prefs, err := adapters.NewFilePreferenceStore(filepath.Join(cfg.DataDir, "preferences.json"))
	if err != nil {
		logger.Fatal("Failed to open preference store", zap.Error(err))
	}
	todos, err := adapters.NewFileTodoStore(filepath.Join(cfg.DataDir, "todos.json"))
	if err != nil {
		logger.Fatal("Failed to open todo store", zap.Error(err))
	}

	sink, err := logsink.NewSink(cfg.LogSinkPath)
	if err != nil {
		logger.Fatal("Failed to open diagnostic log sink", zap.Error(err))
	}
	defer sink.Close()

	sampler := audiometrics.NewSampler(audiometrics.Config{Logger: logger})

	var diagnostics *clientlog.Forwarder
	if cfg.LogForwardURL != "" {
		diagnostics = clientlog.NewForwarder(cfg.LogForwardURL, logger)
		defer diagnostics.Close()
	}

	// Upstream realtime session.
	upstreamCreds := realtime.NewHTTPCredentialSource(cfg.SessionURL, cfg.UpstreamAPIKey)
	transport := realtime.NewWSTransport(cfg.UpstreamURL, logger)
	session := realtime.NewSession(realtime.SessionConfig{
		Transport:   transport,
		Credentials: upstreamCreds,
		Logger:      logger,
		RetryDelay:  cfg.RetryDelay,
	})

	// Application orchestrator.
	app, err := usecase.NewAppService(usecase.AppConfig{
		Session:        session,
		Transcripts:    transcripts,
		Preferences:    prefs,
		Todos:          todos,
		Sampler:        sampler,
		Diagnostics:    diagnostics,
		Logger:         logger,
		SilenceWindow:  cfg.SilenceWindow,
		GreetOnConnect: cfg.GreetOnConnect,
	})
	if err != nil {
		logger.Fatal("Failed to build application service", zap.Error(err))
	}
	defer app.Close()

	// The session reports back into the orchestrator.
	session.SetCallbacks(realtime.Callbacks{
		OnConnectionChange:  app.HandleConnectionChange,
		OnTransportEvent:    app.HandleTransportEvent,
		OnAgentHandoff:      app.HandleAgentHandoff,
		OnOutputAudioStream: app.HandleOutputAudioStream,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sampler.Run(ctx, 0)

	// Initialize WebSocket hub with the orchestrator
	hub := websocket.NewHub(app, sampler, logger)
	go hub.Run(ctx)

	cleanup := usecase.NewTranscriptCleanupService(transcripts, cfg.TranscriptTTL, time.Hour, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Initialize API routes
	api.InitRoutes(e, api.Deps{
		Hub:         hub,
		App:         app,
		Credentials: upstreamCreds,
		Issuer:      auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTLifetime),
		Sink:        sink,
		Logger:      logger,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice UI gateway started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
