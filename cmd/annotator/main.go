package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/abogushcoder/annotation-platform/internal/api"
	"github.com/abogushcoder/annotation-platform/internal/config"
	"github.com/abogushcoder/annotation-platform/internal/elevenlabs"
	"github.com/abogushcoder/annotation-platform/internal/events"
	"github.com/abogushcoder/annotation-platform/internal/export"
	"github.com/abogushcoder/annotation-platform/internal/ingest"
	"github.com/abogushcoder/annotation-platform/internal/store"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("annotator starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// NATS (optional — the platform works without it, just no notifications)
	var bus *events.Client
	if cfg.NatsURL != "" {
		bus, err = events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without event notifications")
	}

	// Sync pipeline. Each agent carries its own provider key, so clients
	// are built per sync rather than once.
	clients := func(apiKey string) ingest.ProviderClient {
		return elevenlabs.NewClient(cfg.ProviderBaseURL, apiKey)
	}
	var syncEvents ingest.Publisher
	if bus != nil {
		syncEvents = bus
	}
	syncer := ingest.NewSyncer(db, clients, syncEvents, cfg.SyncPageSize, slog.Default())

	// Export pipeline
	validator := export.NewValidator(cfg.MaxExampleTokens)
	var exportEvents export.Publisher
	if bus != nil {
		exportEvents = bus
	}
	exporter := export.NewExporter(db, validator, exportEvents, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, db, syncer, exporter, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("annotator ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("annotator stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
