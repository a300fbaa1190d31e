// The scheduler worker pays due allowances and runs interest accrual on a
// fixed interval. It shares the store with the API server; only the
// ledger writes, so running it alongside the server is safe.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"paghetta/internal/amqp"
	"paghetta/internal/backend"
	"paghetta/internal/config"
	"paghetta/internal/log"
	"paghetta/internal/services"
	"paghetta/internal/worker"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	result, err := backend.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer result.Cleanup()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
		} else {
			publisher = client
			defer client.Close()
		}
	}

	ledger := services.NewLedger(result.Store, publisher)
	allowances := services.NewAllowanceEngine(result.Store, ledger)
	interest := services.NewInterestEngine(result.Store, ledger)

	scheduler := worker.NewScheduler(allowances, interest, cfg.SchedulerInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Scheduler worker starting", "interval", cfg.SchedulerInterval)
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Scheduler stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Scheduler worker stopped gracefully")
}
