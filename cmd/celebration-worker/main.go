package main

import (
	"context"
	"errors"
	"os"
	"time"

	_ "time/tzdata"

	"fundboard/internal/amqp"
	"fundboard/internal/cli"
	"fundboard/internal/config"
	"fundboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting celebration-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	celebrations := worker.NewCelebrationWorker(logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Warn("AMQP close failed", "error", err)
		}
	})

	go celebrations.ReportStats(ctx, time.Hour)

	logger.Info("Consuming change events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := client.ConsumeChanges(ctx, celebrations.HandleChangeMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	st := celebrations.Stats()
	logger.Info("Celebration worker stopped", "changes", st.Changes, "celebrations", st.Celebrations)
}
