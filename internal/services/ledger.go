package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"paghetta/internal/core"
	"paghetta/internal/metrics"
)

// Ledger is the single write path for balance-affecting events. Every
// engine posts through it; nothing mutates a child's balance directly.
type Ledger struct {
	store     Store
	publisher EventPublisher
	now       func() time.Time
}

// PostExtra carries the optional fields of a posting.
type PostExtra struct {
	GoalID   int64
	Pending  bool // create as pending, to be settled by a parent later
	Incoming bool // credit leg of a transfer
}

func NewLedger(store Store, publisher EventPublisher) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// PostTransaction validates and appends one transaction. The amount is a
// positive magnitude; the kind determines the sign. On success the child's
// balance and earned/spent totals are already updated (the store applies
// both in one atomic unit).
func (l *Ledger) PostTransaction(ctx context.Context, childID int64, kind core.TransactionKind, amount core.Money, description, category string, extra PostExtra) (*core.Transaction, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if amount.Cents <= 0 {
		return nil, core.ErrInvalidAmount
	}
	if strings.TrimSpace(description) == "" {
		return nil, core.ErrEmptyDescription
	}
	if _, err := l.store.GetChild(ctx, childID); err != nil {
		return nil, fmt.Errorf("look up child %d: %w", childID, err)
	}

	signed := amount
	if !kind.IsCredit() && !(kind == core.KindTransfer && extra.Incoming) {
		signed.Cents = -signed.Cents
	}
	status := core.StatusCompleted
	if extra.Pending {
		status = core.StatusPending
	}

	tx := &core.Transaction{
		ID:          uuid.NewString(),
		ChildID:     childID,
		Kind:        kind,
		Amount:      signed,
		Description: description,
		Category:    category,
		Status:      status,
		GoalID:      extra.GoalID,
		CreatedAt:   l.now(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	metrics.TransactionsPosted.WithLabelValues(string(kind)).Inc()
	slog.InfoContext(ctx, "Transaction posted",
		"id", tx.ID,
		"child_id", childID,
		"kind", kind,
		"amount_cents", signed.Cents,
		"status", status)

	l.publishEvent(ctx, tx)
	return tx, nil
}

// Approve settles a pending transaction as completed, applying its balance
// effect. Rejecting leaves the balance untouched.
func (l *Ledger) Approve(ctx context.Context, transactionID, approvedBy string) (*core.Transaction, error) {
	tx, err := l.store.SettleTransaction(ctx, transactionID, core.StatusCompleted, approvedBy, l.now())
	if err != nil {
		return nil, fmt.Errorf("approve transaction: %w", err)
	}
	l.publishEvent(ctx, tx)
	return tx, nil
}

func (l *Ledger) Reject(ctx context.Context, transactionID, rejectedBy string) (*core.Transaction, error) {
	tx, err := l.store.SettleTransaction(ctx, transactionID, core.StatusRejected, rejectedBy, l.now())
	if err != nil {
		return nil, fmt.Errorf("reject transaction: %w", err)
	}
	return tx, nil
}

// Transfer moves money between two children as a debit leg on the sender
// and a credit leg on the receiver. The debit posts first, so an
// insufficient sender balance stops the whole transfer; a failure on the
// credit leg leaves the debit in place and is surfaced to the caller.
func (l *Ledger) Transfer(ctx context.Context, fromChildID, toChildID int64, amount core.Money, description string) (debit, credit *core.Transaction, err error) {
	debit, err = l.PostTransaction(ctx, fromChildID, core.KindTransfer, amount, description, "transfer", PostExtra{})
	if err != nil {
		return nil, nil, err
	}
	credit, err = l.PostTransaction(ctx, toChildID, core.KindTransfer, amount, description, "transfer", PostExtra{Incoming: true})
	if err != nil {
		return debit, nil, fmt.Errorf("credit leg: %w", err)
	}
	return debit, credit, nil
}

// ListTransactions returns the most recent ledger records for a child.
func (l *Ledger) ListTransactions(ctx context.Context, childID int64, limit int) ([]core.Transaction, error) {
	return l.store.ListTransactions(ctx, childID, limit)
}

func (l *Ledger) publishEvent(ctx context.Context, tx *core.Transaction) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishTransactionPosted(ctx, tx); err != nil {
		// The transaction is already durable; the mirror worker backfills
		// unmirrored rows on startup.
		slog.WarnContext(ctx, "Failed to publish transaction event",
			"id", tx.ID, "error", err)
	}
}
