package memory

import (
	"context"
	"fmt"
	"sync"

	"paghetta/internal/core"
	ports "paghetta/internal/sheets"
)

// Store is an in-memory mirror used in tests and local development.
type Store struct {
	mu    sync.Mutex
	items []Row
}

type Row struct {
	Transaction core.Transaction
	ChildName   string
}

var _ ports.MirrorWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the record and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction, childName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, Row{Transaction: tx, ChildName: childName})
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Rows returns a copy of everything mirrored so far.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.items...)
}
