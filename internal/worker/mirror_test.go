package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"paghetta/internal/amqp"
	"paghetta/internal/core"
	sheetsmem "paghetta/internal/sheets/memory"
)

type fakeMirrorStore struct {
	transactions map[string]*core.Transaction
	children     map[int64]*core.Child
	mirrored     map[string]bool
}

func newFakeMirrorStore() *fakeMirrorStore {
	return &fakeMirrorStore{
		transactions: make(map[string]*core.Transaction),
		children:     make(map[int64]*core.Child),
		mirrored:     make(map[string]bool),
	}
}

func (s *fakeMirrorStore) GetTransaction(_ context.Context, id string) (*core.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return tx, nil
}

func (s *fakeMirrorStore) GetChild(_ context.Context, id int64) (*core.Child, error) {
	child, ok := s.children[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return child, nil
}

func (s *fakeMirrorStore) ListUnmirroredTransactions(_ context.Context, limit int) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.transactions {
		if !s.mirrored[tx.ID] {
			out = append(out, *tx)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeMirrorStore) MarkTransactionMirrored(_ context.Context, id string) error {
	s.mirrored[id] = true
	return nil
}

func seedTransaction(store *fakeMirrorStore, id string, childID int64, cents int64) {
	store.transactions[id] = &core.Transaction{
		ID:          id,
		ChildID:     childID,
		Kind:        core.KindEarning,
		Amount:      core.Money{Cents: cents},
		Description: "Chores",
		Status:      core.StatusCompleted,
		CreatedAt:   time.Now(),
	}
}

func TestMirrorWorker_HandleTransactionPosted(t *testing.T) {
	store := newFakeMirrorStore()
	store.children[1] = &core.Child{ID: 1, Name: "Sofia"}
	seedTransaction(store, "tx-1", 1, 500)

	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror, 10)

	msg := &amqp.TransactionPostedMessage{ID: "tx-1", ChildID: 1}
	if err := w.HandleTransactionPosted(context.Background(), msg); err != nil {
		t.Fatalf("HandleTransactionPosted() error = %v", err)
	}

	rows := mirror.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 mirrored row, got %d", len(rows))
	}
	if rows[0].ChildName != "Sofia" {
		t.Errorf("ChildName = %s, want Sofia", rows[0].ChildName)
	}
	if !store.mirrored["tx-1"] {
		t.Error("transaction should be marked mirrored")
	}
}

func TestMirrorWorker_HandleTransactionPosted_UnknownTransaction(t *testing.T) {
	w := NewMirrorWorker(newFakeMirrorStore(), sheetsmem.New(), 10)

	msg := &amqp.TransactionPostedMessage{ID: "missing"}
	err := w.HandleTransactionPosted(context.Background(), msg)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMirrorWorker_StartupBackfill(t *testing.T) {
	store := newFakeMirrorStore()
	store.children[1] = &core.Child{ID: 1, Name: "Sofia"}
	seedTransaction(store, "tx-1", 1, 500)
	seedTransaction(store, "tx-2", 1, 750)
	store.mirrored["tx-2"] = true

	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror, 10)

	if err := w.StartupBackfill(context.Background()); err != nil {
		t.Fatalf("StartupBackfill() error = %v", err)
	}

	if rows := mirror.Rows(); len(rows) != 1 {
		t.Fatalf("expected 1 backfilled row, got %d", len(rows))
	}
	if !store.mirrored["tx-1"] {
		t.Error("backfilled transaction should be marked mirrored")
	}
}

func TestMirrorWorker_FallsBackToChildID(t *testing.T) {
	store := newFakeMirrorStore()
	seedTransaction(store, "tx-1", 42, 500)

	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror, 10)

	msg := &amqp.TransactionPostedMessage{ID: "tx-1", ChildID: 42}
	if err := w.HandleTransactionPosted(context.Background(), msg); err != nil {
		t.Fatalf("HandleTransactionPosted() error = %v", err)
	}

	rows := mirror.Rows()
	if len(rows) != 1 || rows[0].ChildName != "42" {
		t.Errorf("expected child ID fallback name, got %+v", rows)
	}
}
