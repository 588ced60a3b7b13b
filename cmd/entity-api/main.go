package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	entityextractor "github.com/menta2k/entity-extractor"
	"github.com/menta2k/entity-extractor/internal/config"
	"github.com/menta2k/entity-extractor/internal/monitoring"
	"github.com/menta2k/entity-extractor/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "configuration file (.env, yaml or json); defaults to ./.env when present")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize structured logger
	logger, err := monitoring.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("could not build logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if entityextractor.RequiresCredential(cfg.Backend) && cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; requests must provide api_key")
	}

	metrics := monitoring.NewMetrics()
	srv := server.NewServer(cfg, metrics, logger)

	// Graceful Shutdown
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("addr", cfg.Addr()),
		zap.String("backend", cfg.Backend),
		zap.String("base_url", cfg.ResolvedBaseURL()),
		zap.String("model", cfg.Model),
		zap.Int("batch_concurrency", cfg.BatchConcurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
