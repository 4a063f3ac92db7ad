// Package main provides the entry point for the keyframe extraction API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/framekit/keyframes-api/internal/bootstrap"
	"github.com/framekit/keyframes-api/internal/config"
	"github.com/framekit/keyframes-api/internal/server"
)

// sweepSchedule is how often stale staged videos are cleaned up.
const sweepSchedule = "@every 10m"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting keyframes API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("staging_dir", cfg.StagingDir),
		slog.String("output_dir", cfg.OutputDir),
		slog.Duration("extract_timeout", cfg.ExtractTimeout),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Periodically sweep staged videos that a crashed or interrupted
	// request left behind.
	if cfg.StagingMaxAge > 0 {
		sweeper := cron.New()
		_, err := sweeper.AddFunc(sweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			removed, err := deps.Staging.SweepStaged(ctx, cfg.StagingMaxAge)
			if err != nil {
				logger.Warn("staging sweep failed", slog.String("error", err.Error()))
			}
			if removed > 0 {
				logger.Info("swept stale staged videos", slog.Int("removed", removed))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule staging sweep: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.ExtractService, deps.Staging, logger,
		server.WithBaseURL(cfg.BaseURL),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  300 * time.Second, // Allow for large uploads
		WriteTimeout: 300 * time.Second, // Allow for long extractions
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
