package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/spray-advisory/internal/adapter/http"
	"github.com/couchcryptid/spray-advisory/internal/app"
	"github.com/couchcryptid/spray-advisory/internal/config"
	"github.com/couchcryptid/spray-advisory/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, metrics, app.Overrides{})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	api := httpadapter.NewAPI(a.Services(), logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, a, api, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start background workers.
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("background workers did not stop in time")
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("close error", "error", err)
	}

	logger.Info("shutdown complete")
}
