package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"selflearning/apps/worker/internal/app"
	"selflearning/apps/worker/internal/config"
	applog "selflearning/apps/worker/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := applog.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var producer app.Producer
	if deps.NSQProducer != nil {
		producer = deps.NSQProducer
	}

	a, err := app.New(cfg, deps.DB, deps.VectorStore, producer, logger)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
