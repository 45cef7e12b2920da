package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/recipe-ingest/internal/api"
	"github.com/timmy/recipe-ingest/internal/api/handler"
	"github.com/timmy/recipe-ingest/internal/app"
	"github.com/timmy/recipe-ingest/internal/config"
	"github.com/timmy/recipe-ingest/internal/logger"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH is how deployments point at their config file.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.SetComponent(ctx, "api")

	a, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize ingestion pipeline")
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLogger.WithError(err).Warn("Failed to close resources")
		}
	}()

	if err := a.Service.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start ingestion service")
	}

	router := api.SetupRouter(api.RouterDeps{
		Ingestion: a.Service,
		Catalog:   a.Catalog,
		Health:    handler.NewHealthHandler(a.Ping),
	}, &cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			appLogger.WithError(err).Error("Server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// In-flight jobs stay PROCESSING and are recovered by the stale sweep.
	a.Service.Stop()

	appLogger.Info("Server exited")
}
