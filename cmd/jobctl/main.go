// Command jobctl inspects and manages the background job queue.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nsqio/go-nsq"

	"selflearning/apps/worker/features/job"
	"selflearning/apps/worker/internal/app"
	"selflearning/apps/worker/internal/config"
	applog "selflearning/apps/worker/internal/logger"
	"selflearning/apps/worker/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Keep stdout for command output.
	logger := applog.New(os.Stderr, "warn")
	slog.SetDefault(logger)

	cfg.BootstrapRetryAttempts = 1
	db, err := app.OpenDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var triggers []job.Trigger
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err == nil {
		producer.SetLogger(log.New(os.Stderr, "nsq ", log.LstdFlags), nsq.LogLevelError)
		defer producer.Stop()
		triggers = append(triggers, worker.NewTriggerPublisher(producer, config.TopicJobsTrigger))
	}

	repo := job.NewPostgresRepo(db, cfg.JobMaxAttempts)
	svc := job.NewService(repo, nil, worker.KnownTypes{}, logger, triggers...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd(svc, repo.MaxAttempts()).ExecuteContext(ctx)
}
