package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"paghetta/internal/core"
	"paghetta/internal/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *storage.MemoryStore, *core.Child) {
	t.Helper()
	store := storage.NewMemoryStore()
	ledger := NewLedger(store, nil)
	child, err := store.CreateChild(context.Background(), "Sofia")
	if err != nil {
		t.Fatalf("CreateChild() error = %v", err)
	}
	return ledger, store, child
}

func TestLedger_PostTransaction_SignsByKind(t *testing.T) {
	ledger, store, child := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		kind       core.TransactionKind
		cents      int64
		wantSigned int64
	}{
		{"earning is credited", core.KindEarning, 1000, 1000},
		{"allowance is credited", core.KindAllowance, 500, 500},
		{"interest is credited", core.KindInterest, 25, 25},
		{"spending is debited", core.KindSpending, 300, -300},
	}

	var wantBalance int64
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ledger.PostTransaction(ctx, child.ID, tt.kind, core.Money{Cents: tt.cents}, "test", "", PostExtra{})
			if err != nil {
				t.Fatalf("PostTransaction() error = %v", err)
			}
			if tx.Amount.Cents != tt.wantSigned {
				t.Errorf("signed amount = %d, want %d", tx.Amount.Cents, tt.wantSigned)
			}
			wantBalance += tt.wantSigned

			got, err := store.GetChild(ctx, child.ID)
			if err != nil {
				t.Fatalf("GetChild() error = %v", err)
			}
			if got.Balance.Cents != wantBalance {
				t.Errorf("balance = %d, want %d", got.Balance.Cents, wantBalance)
			}
		})
	}
}

func TestLedger_PostTransaction_Validation(t *testing.T) {
	ledger, _, child := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		childID int64
		kind    core.TransactionKind
		cents   int64
		desc    string
		wantErr error
	}{
		{"zero amount", child.ID, core.KindEarning, 0, "x", core.ErrInvalidAmount},
		{"negative amount", child.ID, core.KindEarning, -100, "x", core.ErrInvalidAmount},
		{"empty description", child.ID, core.KindEarning, 100, "   ", core.ErrEmptyDescription},
		{"invalid kind", child.ID, core.TransactionKind("bonus"), 100, "x", core.ErrInvalidKind},
		{"unknown child", 999, core.KindEarning, 100, "x", core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.PostTransaction(ctx, tt.childID, tt.kind, core.Money{Cents: tt.cents}, tt.desc, "", PostExtra{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PostTransaction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedger_PostTransaction_InsufficientBalance(t *testing.T) {
	ledger, store, child := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.PostTransaction(ctx, child.ID, core.KindEarning, core.Money{Cents: 500}, "seed", "", PostExtra{}); err != nil {
		t.Fatalf("seed earning: %v", err)
	}

	_, err := ledger.PostTransaction(ctx, child.ID, core.KindSpending, core.Money{Cents: 600}, "too much", "", PostExtra{})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// The rejected debit must leave no trace.
	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 500 {
		t.Errorf("balance = %d, want 500", got.Balance.Cents)
	}
	txs, _ := ledger.ListTransactions(ctx, child.ID, 0)
	if len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
}

func TestLedger_PendingApproval(t *testing.T) {
	ledger, store, child := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.PostTransaction(ctx, child.ID, core.KindEarning, core.Money{Cents: 800}, "mowing", "chores", PostExtra{Pending: true})
	if err != nil {
		t.Fatalf("PostTransaction() error = %v", err)
	}
	if tx.Status != core.StatusPending {
		t.Fatalf("status = %s, want pending", tx.Status)
	}

	// Pending earnings do not touch the balance.
	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 0 {
		t.Fatalf("balance = %d, want 0 before approval", got.Balance.Cents)
	}

	approved, err := ledger.Approve(ctx, tx.ID, "mom")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != core.StatusCompleted || approved.ApprovedBy != "mom" {
		t.Errorf("approved = %+v", approved)
	}

	got, _ = store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 800 {
		t.Errorf("balance = %d, want 800 after approval", got.Balance.Cents)
	}

	// A settled transaction cannot be settled again.
	if _, err := ledger.Approve(ctx, tx.ID, "dad"); err == nil {
		t.Error("second approval should fail")
	}
}

func TestLedger_Reject(t *testing.T) {
	ledger, store, child := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.PostTransaction(ctx, child.ID, core.KindEarning, core.Money{Cents: 800}, "mowing", "chores", PostExtra{Pending: true})
	if err != nil {
		t.Fatalf("PostTransaction() error = %v", err)
	}

	rejected, err := ledger.Reject(ctx, tx.ID, "dad")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != core.StatusRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 0 {
		t.Errorf("balance = %d, want 0 after rejection", got.Balance.Cents)
	}
}

func TestLedger_Transfer(t *testing.T) {
	ledger, store, from := newTestLedger(t)
	ctx := context.Background()
	to, _ := store.CreateChild(ctx, "Luca")

	if _, err := ledger.PostTransaction(ctx, from.ID, core.KindEarning, core.Money{Cents: 1000}, "seed", "", PostExtra{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	debit, credit, err := ledger.Transfer(ctx, from.ID, to.ID, core.Money{Cents: 400}, "shared game")
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if debit.Amount.Cents != -400 {
		t.Errorf("debit leg = %d, want -400", debit.Amount.Cents)
	}
	if credit.Amount.Cents != 400 {
		t.Errorf("credit leg = %d, want 400", credit.Amount.Cents)
	}

	fromChild, _ := store.GetChild(ctx, from.ID)
	toChild, _ := store.GetChild(ctx, to.ID)
	if fromChild.Balance.Cents != 600 || toChild.Balance.Cents != 400 {
		t.Errorf("balances = %d/%d, want 600/400", fromChild.Balance.Cents, toChild.Balance.Cents)
	}
}

func TestLedger_Transfer_InsufficientSender(t *testing.T) {
	ledger, store, from := newTestLedger(t)
	ctx := context.Background()
	to, _ := store.CreateChild(ctx, "Luca")

	_, _, err := ledger.Transfer(ctx, from.ID, to.ID, core.Money{Cents: 400}, "shared game")
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	toChild, _ := store.GetChild(ctx, to.ID)
	if toChild.Balance.Cents != 0 {
		t.Errorf("receiver balance = %d, want 0", toChild.Balance.Cents)
	}
}

type recordingPublisher struct {
	published []string
	err       error
}

func (p *recordingPublisher) PublishTransactionPosted(_ context.Context, tx *core.Transaction) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, tx.ID)
	return nil
}

func TestLedger_PublishesEvents(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &recordingPublisher{}
	ledger := NewLedger(store, pub)
	ctx := context.Background()
	child, _ := store.CreateChild(ctx, "Sofia")

	tx, err := ledger.PostTransaction(ctx, child.ID, core.KindEarning, core.Money{Cents: 100}, "x", "", PostExtra{})
	if err != nil {
		t.Fatalf("PostTransaction() error = %v", err)
	}
	if len(pub.published) != 1 || pub.published[0] != tx.ID {
		t.Errorf("published = %v, want [%s]", pub.published, tx.ID)
	}
}

func TestLedger_PublishFailureDoesNotFailPost(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger := NewLedger(store, pub)
	ctx := context.Background()
	child, _ := store.CreateChild(ctx, "Sofia")

	if _, err := ledger.PostTransaction(ctx, child.ID, core.KindEarning, core.Money{Cents: 100}, "x", "", PostExtra{}); err != nil {
		t.Fatalf("PostTransaction() should not fail on publish error, got %v", err)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 100 {
		t.Errorf("balance = %d, want 100", got.Balance.Cents)
	}
}

func TestLedger_PostTransaction_SetsTimestamp(t *testing.T) {
	ledger, _, child := newTestLedger(t)
	fixed := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }

	tx, err := ledger.PostTransaction(context.Background(), child.ID, core.KindEarning, core.Money{Cents: 100}, "x", "", PostExtra{})
	if err != nil {
		t.Fatalf("PostTransaction() error = %v", err)
	}
	if !tx.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", tx.CreatedAt, fixed)
	}
}
