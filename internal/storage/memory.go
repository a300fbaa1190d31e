package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paghetta/internal/core"
)

// MemoryStore is a full in-memory record store. It backs the "memory"
// backend for local development and the engine tests. All operations are
// guarded by one mutex, which also gives the per-child serialization the
// engines rely on.
type MemoryStore struct {
	mu            sync.Mutex
	children      map[int64]*core.Child
	transactions  []core.Transaction
	allowances    map[int64]*core.AllowanceConfig
	interests     map[int64]*core.InterestConfig
	goals         map[int64]*core.Goal
	loans         map[int64]*core.Loan
	installments  map[int64]*core.LoanInstallment
	nextChild     int64
	nextGoal      int64
	nextLoan      int64
	nextInstallID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		children:     make(map[int64]*core.Child),
		allowances:   make(map[int64]*core.AllowanceConfig),
		interests:    make(map[int64]*core.InterestConfig),
		goals:        make(map[int64]*core.Goal),
		loans:        make(map[int64]*core.Loan),
		installments: make(map[int64]*core.LoanInstallment),
	}
}

func (s *MemoryStore) CreateChild(ctx context.Context, name string) (*core.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextChild++
	child := &core.Child{ID: s.nextChild, Name: name, CreatedAt: time.Now()}
	s.children[child.ID] = child
	out := *child
	return &out, nil
}

func (s *MemoryStore) GetChild(ctx context.Context, id int64) (*core.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.children[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *child
	return &out, nil
}

func (s *MemoryStore) ListChildren(ctx context.Context) ([]core.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Child, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// applyBalance mutates the child's balance fields for a completed
// transaction. Caller holds the lock.
func (s *MemoryStore) applyBalance(child *core.Child, amount core.Money) error {
	if child.Balance.Cents+amount.Cents < 0 {
		return core.ErrInsufficientBalance
	}
	child.Balance.Cents += amount.Cents
	if amount.Cents > 0 {
		child.TotalEarned.Cents += amount.Cents
	} else {
		child.TotalSpent.Cents += -amount.Cents
	}
	return nil
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, tx *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.children[tx.ChildID]
	if !ok {
		return core.ErrNotFound
	}
	if tx.Status == core.StatusCompleted {
		if err := s.applyBalance(child, tx.Amount); err != nil {
			return err
		}
	}
	s.transactions = append(s.transactions, *tx)
	return nil
}

func (s *MemoryStore) SettleTransaction(ctx context.Context, id string, status core.TransactionStatus, approvedBy string, at time.Time) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transactions {
		tx := &s.transactions[i]
		if tx.ID != id {
			continue
		}
		if tx.Status != core.StatusPending {
			return nil, fmt.Errorf("transaction %s is not pending", id)
		}
		if status == core.StatusCompleted {
			child, ok := s.children[tx.ChildID]
			if !ok {
				return nil, core.ErrNotFound
			}
			if err := s.applyBalance(child, tx.Amount); err != nil {
				return nil, err
			}
		}
		tx.Status = status
		tx.ApprovedBy = approvedBy
		tx.ApprovedAt = at
		out := *tx
		return &out, nil
	}
	return nil, core.ErrNotFound
}

func (s *MemoryStore) ListTransactions(ctx context.Context, childID int64, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].ChildID == childID {
			out = append(out, s.transactions[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) SumRecentInflows(ctx context.Context, childID int64, since time.Time) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum core.Money
	for _, tx := range s.transactions {
		if tx.ChildID != childID || tx.Status != core.StatusCompleted || tx.Amount.Cents <= 0 {
			continue
		}
		switch tx.Kind {
		case core.KindEarning, core.KindAllowance, core.KindTransfer, core.KindInterest:
		default:
			continue
		}
		if tx.CreatedAt.Before(since) {
			continue
		}
		sum.Cents += tx.Amount.Cents
	}
	return sum, nil
}

func (s *MemoryStore) UpsertAllowanceConfig(ctx context.Context, cfg *core.AllowanceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *cfg
	out.IsActive = true
	s.allowances[cfg.ChildID] = &out
	return nil
}

func (s *MemoryStore) GetAllowanceConfig(ctx context.Context, childID int64) (*core.AllowanceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.allowances[childID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *cfg
	return &out, nil
}

func (s *MemoryStore) SetAllowanceActive(ctx context.Context, childID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.allowances[childID]
	if !ok {
		return core.ErrNotFound
	}
	cfg.IsActive = active
	return nil
}

func (s *MemoryStore) ListDueAllowanceConfigs(ctx context.Context, today time.Time) ([]core.AllowanceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := core.TruncateToDay(today)
	var out []core.AllowanceConfig
	for _, cfg := range s.allowances {
		if cfg.IsActive && !cfg.NextPaymentDate.After(day) {
			out = append(out, *cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildID < out[j].ChildID })
	return out, nil
}

func (s *MemoryStore) UpdateNextPaymentDate(ctx context.Context, childID int64, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.allowances[childID]
	if !ok {
		return core.ErrNotFound
	}
	cfg.NextPaymentDate = next
	return nil
}

func (s *MemoryStore) UpsertInterestConfig(ctx context.Context, cfg *core.InterestConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *cfg
	out.IsActive = true
	s.interests[cfg.ChildID] = &out
	return nil
}

func (s *MemoryStore) GetInterestConfig(ctx context.Context, childID int64) (*core.InterestConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.interests[childID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *cfg
	return &out, nil
}

func (s *MemoryStore) SetInterestActive(ctx context.Context, childID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.interests[childID]
	if !ok {
		return core.ErrNotFound
	}
	cfg.IsActive = active
	return nil
}

func (s *MemoryStore) ListActiveInterestConfigs(ctx context.Context) ([]core.InterestConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.InterestConfig
	for _, cfg := range s.interests {
		if cfg.IsActive {
			out = append(out, *cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildID < out[j].ChildID })
	return out, nil
}

func (s *MemoryStore) UpdateLastInterestDate(ctx context.Context, childID int64, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.interests[childID]
	if !ok {
		return core.ErrNotFound
	}
	cfg.LastInterestDate = day
	return nil
}

// CreateGoal seeds a savings goal. Goal lifecycle management lives
// outside this core; the store only needs goals to exist for accrual.
func (s *MemoryStore) CreateGoal(ctx context.Context, goal *core.Goal) (*core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGoal++
	out := *goal
	out.ID = s.nextGoal
	s.goals[out.ID] = &out
	copied := out
	return &copied, nil
}

func (s *MemoryStore) ListActiveGoals(ctx context.Context, childID int64) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Goal
	for _, g := range s.goals {
		if g.ChildID == childID && g.IsActive {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AddGoalInterest(ctx context.Context, goalID int64, amount core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[goalID]
	if !ok {
		return core.ErrNotFound
	}
	g.CurrentAmount.Cents += amount.Cents
	return nil
}

// GetGoal is a test helper mirroring the goal read the UI layer owns.
func (s *MemoryStore) GetGoal(ctx context.Context, goalID int64) (*core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[goalID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *g
	return &out, nil
}

func (s *MemoryStore) CreateLoan(ctx context.Context, loan *core.Loan, installments []core.LoanInstallment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.children[loan.ChildID]; !ok {
		return core.ErrNotFound
	}
	s.nextLoan++
	loan.ID = s.nextLoan
	stored := *loan
	s.loans[loan.ID] = &stored
	for i := range installments {
		s.nextInstallID++
		inst := installments[i]
		inst.ID = s.nextInstallID
		inst.LoanID = loan.ID
		s.installments[inst.ID] = &inst
	}
	return nil
}

func (s *MemoryStore) GetLoan(ctx context.Context, id int64) (*core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *loan
	return &out, nil
}

func (s *MemoryStore) ListLoansByChild(ctx context.Context, childID int64) ([]core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Loan
	for _, l := range s.loans {
		if l.ChildID == childID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetInstallment(ctx context.Context, id int64) (*core.LoanInstallment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.installments[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *inst
	return &out, nil
}

func (s *MemoryStore) ListInstallments(ctx context.Context, loanID int64) ([]core.LoanInstallment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.LoanInstallment
	for _, inst := range s.installments {
		if inst.LoanID == loanID {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNumber < out[j].InstallmentNumber })
	return out, nil
}

func (s *MemoryStore) MarkInstallmentPaid(ctx context.Context, installmentID int64, paidFrom core.PaymentSource, paidAt time.Time) (*core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.installments[installmentID]
	if !ok {
		return nil, core.ErrNotFound
	}
	if inst.Status == core.InstallmentPaid {
		return nil, core.ErrAlreadyPaid
	}
	loan, ok := s.loans[inst.LoanID]
	if !ok {
		return nil, core.ErrNotFound
	}

	inst.Status = core.InstallmentPaid
	inst.PaidDate = paidAt
	inst.PaidFrom = paidFrom
	loan.PaidAmount.Cents += inst.Amount.Cents
	if loan.PaidAmount.Cents >= loan.TotalAmount.Cents {
		loan.Status = core.LoanPaidOff
	}
	out := *loan
	return &out, nil
}

func (s *MemoryStore) UpdateLoanStatus(ctx context.Context, loanID int64, status core.LoanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return core.ErrNotFound
	}
	loan.Status = status
	return nil
}
