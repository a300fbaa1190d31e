// The mirror worker copies posted transactions into a Google Sheet. It
// consumes posted-transaction events from AMQP and backfills unmirrored
// rows on startup, so a broker outage only delays the mirror.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"paghetta/internal/amqp"
	"paghetta/internal/config"
	"paghetta/internal/log"
	"paghetta/internal/sheets/google"
	"paghetta/internal/storage"
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
	if !cfg.MirrorEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is not set, nothing to mirror")
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		logger.Error("Mirror worker requires the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	sheet, err := google.NewClient(ctx, google.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	mirror := worker.NewMirrorWorker(repo, sheet, cfg.MirrorBatchSize)

	// Rows written while the worker was down are mirrored before any new
	// events are consumed, preserving rough sheet order.
	if err := mirror.StartupBackfill(ctx); err != nil {
		logger.Error("Startup backfill failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Mirror worker starting",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"queue", cfg.AMQPQueue)

	for {
		err := consume(ctx, cfg, mirror, logger)
		if errors.Is(err, context.Canceled) {
			break
		}
		logger.Error("Consumer stopped, reconnecting", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			continue
		}
		break
	}

	logger.Info("Mirror worker stopped gracefully")
}

func consume(ctx context.Context, cfg *config.Config, mirror *worker.MirrorWorker, logger *log.Logger) error {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.ConsumeTransactionPosted(ctx, func(msg *amqp.TransactionPostedMessage) error {
		return mirror.HandleTransactionPosted(ctx, msg)
	})
}
