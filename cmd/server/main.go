package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pritam/bingocraft/internal/adapter"
	"github.com/pritam/bingocraft/internal/catalog"
	"github.com/pritam/bingocraft/internal/config"
	"github.com/pritam/bingocraft/internal/engine"
	"github.com/pritam/bingocraft/internal/notify"
	"github.com/pritam/bingocraft/internal/server"
	"github.com/pritam/bingocraft/internal/store"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting bingocraft server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Admin.PasswordHash == "" {
		logger.Warn("admin password not configured; mutating endpoints are unprotected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Open the embedded store
	st, err := store.New(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	diag, err := st.Diagnostics(ctx)
	if err != nil {
		logger.Fatal("failed to query database diagnostics", zap.Error(err))
	}
	logger.Info("database opened",
		zap.String("path", cfg.Database.Path),
		zap.String("journal_mode", diag.JournalMode),
		zap.Int("instances", diag.Instances),
	)

	// Load objective catalog
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("failed to load objective catalog", zap.Error(err))
	}
	logger.Info("objective catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("objectives", cat.Size()),
	)

	// Notification fan-out: structured log plus websocket broadcast
	hub := notify.NewHub(logger)
	sink := notify.NewFanout(notify.NewLogSink(logger), hub)

	// Initialize game engine and restore persisted instances
	eng := engine.New(st, cat, sink, cfg.Database.WriteTimeout, logger)
	if err := eng.Restore(ctx); err != nil {
		logger.Fatal("failed to restore game instances", zap.Error(err))
	}
	logger.Info("game engine initialized",
		zap.Int("restored_instances", len(eng.Instances())),
	)

	adp := adapter.New(eng, logger)

	srv := server.New(cfg.Server, cfg.Admin, cfg.Game, eng, adp, st, hub, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	logger.Info("bingocraft server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
	)

	// Wait for termination signal or listener failure
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	cancel()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	hub.Close()

	logger.Info("bingocraft server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
