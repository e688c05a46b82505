package main

import (
	"context"
	"errors"
	"time"

	"orcamento/internal/backend"
	"orcamento/internal/cli"
	"orcamento/internal/config"
	applog "orcamento/internal/log"
	"orcamento/internal/services"
	"orcamento/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker, (*config.Config).ValidateWorker)

	logger.Info("Starting orcamento-worker",
		applog.FieldOperation, applog.OpStartup,
		applog.FieldQueue, cfg.AMQPQueue,
		"dedup_interval", cfg.DedupInterval.String(),
		"batch_size", cfg.DedupBatchSize)

	ctx, stop := cli.SignalContext()
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg, backend.Options{RequireAMQP: true, SkipViewCache: true})
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to release resources", applog.FieldError, err)
		}
	}()

	dedup := worker.NewDedupWorker(
		services.NewCategoryDeduplicator(res.Store),
		res.Store.Queries(),
		cfg.DedupBatchSize,
	)

	// Catch up on saves published while the worker was down.
	if err := dedup.SweepDuplicates(ctx); err != nil {
		logger.Error("Startup sweep failed", applog.FieldError, err)
	}

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		err := res.AMQP.ConsumeConfigSaved(ctx, dedup.HandleConfigSaved)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			stop()
		}
	}()

	ticker := time.NewTicker(cfg.DedupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down worker...", applog.FieldOperation, applog.OpShutdown)
			select {
			case <-consumeDone:
				logger.Info("Worker shutdown complete")
			case <-time.After(cfg.ShutdownTimeout):
				logger.Warn("Shutdown timeout reached")
			}
			return
		case <-ticker.C:
			if err := dedup.SweepDuplicates(ctx); err != nil {
				logger.Error("Periodic sweep failed", applog.FieldError, err)
			}
		}
	}
}
