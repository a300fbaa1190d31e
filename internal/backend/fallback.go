package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"

	"paghetta/internal/core"
	"paghetta/internal/metrics"
	"paghetta/internal/services"
)

// FallbackStore wraps the primary store with a ristretto cache so balance
// and transaction reads keep answering from the last known state when the
// database is unreachable. Writes always go to the primary; a write never
// succeeds against the cache alone.
type FallbackStore struct {
	services.Store
	cache *ristretto.Cache
}

var _ services.Store = (*FallbackStore)(nil)

func NewFallbackStore(primary services.Store) (*FallbackStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize fallback cache: %w", err)
	}
	return &FallbackStore{Store: primary, cache: cache}, nil
}

func childKey(id int64) string {
	return fmt.Sprintf("child:%d", id)
}

func transactionsKey(childID int64, limit int) string {
	return fmt.Sprintf("transactions:%d:%d", childID, limit)
}

func (s *FallbackStore) GetChild(ctx context.Context, id int64) (*core.Child, error) {
	child, err := s.Store.GetChild(ctx, id)
	if err == nil {
		s.cache.Set(childKey(id), child, 1)
		return child, nil
	}
	if !errors.Is(err, core.ErrStorageUnavailable) {
		return nil, err
	}
	if cached, ok := s.cache.Get(childKey(id)); ok {
		metrics.StoreFallbackReads.Inc()
		slog.WarnContext(ctx, "Serving child from fallback cache", "child_id", id, "error", err)
		return cached.(*core.Child), nil
	}
	return nil, err
}

func (s *FallbackStore) ListTransactions(ctx context.Context, childID int64, limit int) ([]core.Transaction, error) {
	txs, err := s.Store.ListTransactions(ctx, childID, limit)
	if err == nil {
		s.cache.Set(transactionsKey(childID, limit), txs, 1)
		return txs, nil
	}
	if !errors.Is(err, core.ErrStorageUnavailable) {
		return nil, err
	}
	if cached, ok := s.cache.Get(transactionsKey(childID, limit)); ok {
		metrics.StoreFallbackReads.Inc()
		slog.WarnContext(ctx, "Serving transactions from fallback cache", "child_id", childID, "error", err)
		return cached.([]core.Transaction), nil
	}
	return nil, err
}

func (s *FallbackStore) AppendTransaction(ctx context.Context, tx *core.Transaction) error {
	if err := s.Store.AppendTransaction(ctx, tx); err != nil {
		return err
	}
	s.invalidateChild(tx.ChildID)
	return nil
}

func (s *FallbackStore) SettleTransaction(ctx context.Context, id string, status core.TransactionStatus, approvedBy string, at time.Time) (*core.Transaction, error) {
	tx, err := s.Store.SettleTransaction(ctx, id, status, approvedBy, at)
	if err != nil {
		return nil, err
	}
	s.invalidateChild(tx.ChildID)
	return tx, nil
}

func (s *FallbackStore) invalidateChild(childID int64) {
	s.cache.Del(childKey(childID))
	// List entries are keyed per limit; dropping the common defaults is
	// enough because stale lists age out under cache pressure anyway.
	for _, limit := range []int{0, 10, 20, 50, 100} {
		s.cache.Del(transactionsKey(childID, limit))
	}
}

func (s *FallbackStore) Close() error {
	s.cache.Close()
	type closer interface{ Close() error }
	if c, ok := s.Store.(closer); ok {
		return c.Close()
	}
	return nil
}
