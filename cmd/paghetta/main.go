package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"paghetta/internal/amqp"
	"paghetta/internal/backend"
	"paghetta/internal/config"
	apphttp "paghetta/internal/http"
	"paghetta/internal/log"
	"paghetta/internal/services"
)

func main() {
	// A missing .env file is fine; the environment wins either way.
	godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
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

	// Event publishing is best-effort: without a broker the API still
	// works, only the sheets mirror lags until its backfill runs.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
		} else {
			publisher = client
			defer client.Close()
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	ledger := services.NewLedger(result.Store, publisher)
	allowances := services.NewAllowanceEngine(result.Store, ledger)
	interest := services.NewInterestEngine(result.Store, ledger)
	loans := services.NewLoanEngine(result.Store, ledger)

	srv := apphttp.NewServer(cfg.Port, result.Store, ledger, allowances, interest, loans, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}

	logger.Info("Server stopped gracefully")
}
