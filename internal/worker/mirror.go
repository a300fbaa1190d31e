package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"paghetta/internal/amqp"
	"paghetta/internal/core"
	"paghetta/internal/sheets"
)

// MirrorStore is the slice of the record store the mirror worker needs.
type MirrorStore interface {
	GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
	GetChild(ctx context.Context, id int64) (*core.Child, error)
	ListUnmirroredTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkTransactionMirrored(ctx context.Context, id string) error
}

// MirrorWorker copies ledger records to the family spreadsheet. Events
// arrive over AMQP; a startup backfill covers records written while the
// worker was down.
type MirrorWorker struct {
	store     MirrorStore
	mirror    sheets.MirrorWriter
	batchSize int
}

func NewMirrorWorker(store MirrorStore, mirror sheets.MirrorWriter, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleTransactionPosted processes a single posted-transaction event.
func (w *MirrorWorker) HandleTransactionPosted(ctx context.Context, msg *amqp.TransactionPostedMessage) error {
	tx, err := w.store.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.mirrorTransaction(ctx, tx); err != nil {
		return fmt.Errorf("mirror transaction: %w", err)
	}

	return nil
}

// StartupBackfill mirrors records that were written while the worker was
// down or whose events were lost.
func (w *MirrorWorker) StartupBackfill(ctx context.Context) error {
	pending, err := w.store.ListUnmirroredTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unmirrored transactions: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No unmirrored transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found unmirrored transactions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for i := range pending {
		if err := w.mirrorTransaction(ctx, &pending[i]); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction during startup",
				"id", pending[i].ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup backfill completed",
		"total", len(pending),
		"mirrored", successCount,
		"errors", errorCount)

	return nil
}

// ProcessPending mirrors a batch of unmirrored records. This is the
// periodic backup path in case AMQP messages are lost.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.ListUnmirroredTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unmirrored transactions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing unmirrored transactions", "count", len(pending))

	for i := range pending {
		if err := w.mirrorTransaction(ctx, &pending[i]); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction",
				"id", pending[i].ID, "error", err)
			continue
		}
	}

	return nil
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, tx *core.Transaction) error {
	childName := strconv.FormatInt(tx.ChildID, 10)
	if child, err := w.store.GetChild(ctx, tx.ChildID); err == nil {
		childName = child.Name
	} else {
		slog.WarnContext(ctx, "Could not resolve child name for mirror row",
			"child_id", tx.ChildID, "error", err)
	}

	ref, err := w.mirror.Append(ctx, *tx, childName)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.store.MarkTransactionMirrored(ctx, tx.ID); err != nil {
		// The row was written; failing here would only duplicate it on
		// retry, so log and move on.
		slog.ErrorContext(ctx, "Failed to mark transaction as mirrored",
			"id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Mirrored transaction",
		"id", tx.ID,
		"sheets_ref", ref,
		"amount_cents", tx.Amount.Cents)

	return nil
}
