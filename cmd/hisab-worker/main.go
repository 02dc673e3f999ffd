package main

import (
	"context"
	"os"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/cli"
	"hisab/internal/log"
	"hisab/internal/services"
	"hisab/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitRepository(logger, cfg)
	defer repo.Close()

	// Alerts written here are not re-published, so no bus is needed
	parents := services.NewParentService(repo, repo, repo, repo, nil)
	watcher := worker.NewBudgetWatcher(repo, parents, cfg.BudgetSweepSchedule)

	var (
		client   *amqp.Client
		consumer worker.Consumer
	)
	if cfg.AMQPEnabled() {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, running scheduled sweeps only", log.FieldError, err)
		} else {
			client, consumer = c, c
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := watcher.Stop(ctx); err != nil {
			logger.Error("Budget watcher stop error", log.FieldError, err)
		}
		if client != nil {
			if err := client.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	if err := watcher.Start(ctx, consumer); err != nil {
		logger.Error("Failed to start budget watcher", log.FieldError, err, "schedule", cfg.BudgetSweepSchedule)
		os.Exit(1)
	}
	logger.Info("hisab-worker started",
		"schedule", cfg.BudgetSweepSchedule,
		"amqp", consumer != nil,
		"backend", cfg.DataBackend,
	)

	cli.WaitForShutdown(ctx, done)
	logger.Info("hisab-worker stopped")
}
