// Package main provides the entry point for the listing video API server.
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

	"github.com/maauso/listingvideo-api/internal/bootstrap"
	"github.com/maauso/listingvideo-api/internal/config"
	"github.com/maauso/listingvideo-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting listing video API",
		slog.String("config", cfg.String()),
		slog.Any("providers", cfg.EnabledProviders()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(appCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	deps.Ingestor.Start(appCtx)

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Service, deps.Ingestor, logger,
		server.WithMetrics(deps.Metrics),
		server.WithHealthCheck(deps.Repository),
	)
	routerCfg := server.DefaultConfig()
	routerCfg.AssetsDir = deps.AssetsDir
	router := server.NewRouter(handlers, logger, routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // batch creation waits for every provider submission
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

	// Drain accepted webhooks, then background batch work.
	if err := deps.Ingestor.Stop(ctx); err != nil {
		logger.Warn("webhook ingestor did not drain", slog.String("error", err.Error()))
	}
	if err := deps.Service.Wait(ctx); err != nil {
		logger.Warn("background work did not finish", slog.String("error", err.Error()))
	}
	stopApp()

	logger.Info("server stopped gracefully")
	return nil
}
