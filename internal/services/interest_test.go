package services

import (
	"context"
	"testing"
	"time"

	"paghetta/internal/core"
	"paghetta/internal/storage"
)

var accrualDay = time.Date(2026, 6, 30, 9, 0, 0, 0, time.UTC)

// seedAgedBalance posts an earning backdated far enough that the whole
// amount counts toward the eligible balance.
func seedAgedBalance(t *testing.T, ledger *Ledger, childID int64, cents int64, daysAgo int) {
	t.Helper()
	saved := ledger.now
	ledger.now = func() time.Time { return accrualDay.AddDate(0, 0, -daysAgo) }
	defer func() { ledger.now = saved }()

	if _, err := ledger.PostTransaction(context.Background(), childID, core.KindEarning, core.Money{Cents: cents}, "seed", "", PostExtra{}); err != nil {
		t.Fatalf("seed earning: %v", err)
	}
}

func newTestInterestEngine(t *testing.T) (*InterestEngine, *Ledger, *storage.MemoryStore, *core.Child) {
	t.Helper()
	store := storage.NewMemoryStore()
	ledger := NewLedger(store, nil)
	engine := NewInterestEngine(store, ledger)
	child, err := store.CreateChild(context.Background(), "Sofia")
	if err != nil {
		t.Fatalf("CreateChild() error = %v", err)
	}
	return engine, ledger, store, child
}

func TestInterestEngine_AccrueForChild(t *testing.T) {
	engine, ledger, store, child := newTestInterestEngine(t)
	ctx := context.Background()

	// 1000.00 aged balance at 10% monthly with a 5.00 floor pays 100.00.
	seedAgedBalance(t, ledger, child.ID, 100000, 40)
	cfg := &core.InterestConfig{
		ChildID:           child.ID,
		MonthlyRate:       10,
		CompoundFrequency: core.Monthly,
		MinimumBalance:    core.Money{Cents: 500},
	}
	if err := engine.UpsertConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if result.Skipped {
		t.Fatalf("accrual skipped: %s", result.SkipReason)
	}
	if result.Interest.Cents != 10000 {
		t.Errorf("interest = %d cents, want 10000", result.Interest.Cents)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 110000 {
		t.Errorf("balance = %d, want 110000", got.Balance.Cents)
	}

	saved, _ := store.GetInterestConfig(ctx, child.ID)
	if !saved.LastInterestDate.Equal(core.TruncateToDay(accrualDay)) {
		t.Errorf("last interest date = %v, want %v", saved.LastInterestDate, core.TruncateToDay(accrualDay))
	}
}

func TestInterestEngine_RecentDepositsExcluded(t *testing.T) {
	engine, ledger, store, child := newTestInterestEngine(t)
	ctx := context.Background()

	// 500.00 aged, 300.00 fresh: only the aged part earns interest.
	seedAgedBalance(t, ledger, child.ID, 50000, 45)
	seedAgedBalance(t, ledger, child.ID, 30000, 5)

	cfg := &core.InterestConfig{ChildID: child.ID, MonthlyRate: 10, CompoundFrequency: core.Monthly}
	if err := engine.UpsertConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if result.EligibleBalance.Cents != 50000 {
		t.Errorf("eligible = %d, want 50000", result.EligibleBalance.Cents)
	}
	if result.Interest.Cents != 5000 {
		t.Errorf("interest = %d, want 5000", result.Interest.Cents)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 85000 {
		t.Errorf("balance = %d, want 85000", got.Balance.Cents)
	}
}

func TestInterestEngine_LookbackBoundary(t *testing.T) {
	tests := []struct {
		name         string
		daysAgo      int
		wantEligible int64
	}{
		{"deposit exactly 30 days old is still recent", 30, 0},
		{"deposit 31 days old is eligible", 31, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, ledger, _, child := newTestInterestEngine(t)
			ctx := context.Background()

			seedAgedBalance(t, ledger, child.ID, 10000, tt.daysAgo)
			if err := engine.UpsertConfig(ctx, &core.InterestConfig{ChildID: child.ID, MonthlyRate: 10, CompoundFrequency: core.Monthly}); err != nil {
				t.Fatalf("UpsertConfig() error = %v", err)
			}

			result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
			if err != nil {
				t.Fatalf("AccrueForChild() error = %v", err)
			}
			if result.EligibleBalance.Cents != tt.wantEligible {
				t.Errorf("eligible = %d, want %d", result.EligibleBalance.Cents, tt.wantEligible)
			}
		})
	}
}

func TestInterestEngine_SkipsBelowMinimum(t *testing.T) {
	engine, ledger, store, child := newTestInterestEngine(t)
	ctx := context.Background()

	seedAgedBalance(t, ledger, child.ID, 400, 40)
	cfg := &core.InterestConfig{
		ChildID:           child.ID,
		MonthlyRate:       10,
		CompoundFrequency: core.Monthly,
		MinimumBalance:    core.Money{Cents: 500},
	}
	if err := engine.UpsertConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if !result.Skipped {
		t.Fatal("accrual should be skipped below the minimum balance")
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 400 {
		t.Errorf("balance = %d, want unchanged 400", got.Balance.Cents)
	}
}

func TestInterestEngine_GoalInterestBelowMinimumBalance(t *testing.T) {
	engine, ledger, store, child := newTestInterestEngine(t)
	ctx := context.Background()

	// The eligible balance misses the minimum, but an aged goal still
	// earns: goal interest only cares about the goal's own age.
	seedAgedBalance(t, ledger, child.ID, 400, 40)
	cfg := &core.InterestConfig{
		ChildID:           child.ID,
		MonthlyRate:       10,
		CompoundFrequency: core.Monthly,
		MinimumBalance:    core.Money{Cents: 500},
	}
	if err := engine.UpsertConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	goal, err := store.CreateGoal(ctx, &core.Goal{
		ChildID:       child.ID,
		Name:          "Telescope",
		CurrentAmount: core.Money{Cents: 5000},
		IsActive:      true,
		CreatedAt:     accrualDay.AddDate(0, 0, -60),
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if result.Skipped {
		t.Fatalf("accrual skipped (%s), want goal interest posted", result.SkipReason)
	}
	if result.Interest.Cents != 0 {
		t.Errorf("balance interest = %d, want 0 below the minimum", result.Interest.Cents)
	}
	if result.GoalInterest.Cents != 500 {
		t.Errorf("goal interest = %d, want 500", result.GoalInterest.Cents)
	}

	updated, _ := store.GetGoal(ctx, goal.ID)
	if updated.CurrentAmount.Cents != 5500 {
		t.Errorf("goal amount = %d, want 5500", updated.CurrentAmount.Cents)
	}
	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 900 {
		t.Errorf("balance = %d, want 900", got.Balance.Cents)
	}

	saved, _ := store.GetInterestConfig(ctx, child.ID)
	if !saved.LastInterestDate.Equal(core.TruncateToDay(accrualDay)) {
		t.Errorf("last interest date = %v, want %v", saved.LastInterestDate, core.TruncateToDay(accrualDay))
	}
}

func TestInterestEngine_SkipsWithoutConfig(t *testing.T) {
	engine, ledger, _, child := newTestInterestEngine(t)

	seedAgedBalance(t, ledger, child.ID, 10000, 40)

	result, err := engine.AccrueForChild(context.Background(), child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if !result.Skipped || result.SkipReason != "no interest config" {
		t.Errorf("result = %+v, want skip for missing config", result)
	}
}

func TestInterestEngine_SkipsInactiveConfig(t *testing.T) {
	engine, ledger, _, child := newTestInterestEngine(t)
	ctx := context.Background()

	seedAgedBalance(t, ledger, child.ID, 10000, 40)
	if err := engine.UpsertConfig(ctx, &core.InterestConfig{ChildID: child.ID, MonthlyRate: 10, CompoundFrequency: core.Monthly}); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}
	if err := engine.SetActive(ctx, child.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if !result.Skipped || result.SkipReason != "config inactive" {
		t.Errorf("result = %+v, want skip for inactive config", result)
	}
}

func TestInterestEngine_GoalInterest(t *testing.T) {
	engine, ledger, store, child := newTestInterestEngine(t)
	ctx := context.Background()

	seedAgedBalance(t, ledger, child.ID, 20000, 40)
	if err := engine.UpsertConfig(ctx, &core.InterestConfig{ChildID: child.ID, MonthlyRate: 10, CompoundFrequency: core.Monthly}); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	goal, err := store.CreateGoal(ctx, &core.Goal{
		ChildID:       child.ID,
		Name:          "Bicycle",
		CurrentAmount: core.Money{Cents: 5000},
		IsActive:      true,
		CreatedAt:     accrualDay.AddDate(0, 0, -60),
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if result.GoalInterest.Cents != 500 {
		t.Errorf("goal interest = %d, want 500", result.GoalInterest.Cents)
	}

	// The goal grows directly and the matching record credits the balance.
	updated, _ := store.GetGoal(ctx, goal.ID)
	if updated.CurrentAmount.Cents != 5500 {
		t.Errorf("goal amount = %d, want 5500", updated.CurrentAmount.Cents)
	}
	got, _ := store.GetChild(ctx, child.ID)
	wantBalance := int64(20000 + 2000 + 500) // principal + balance interest + goal interest
	if got.Balance.Cents != wantBalance {
		t.Errorf("balance = %d, want %d", got.Balance.Cents, wantBalance)
	}
}

func TestInterestEngine_YoungGoalExcluded(t *testing.T) {
	engine, ledger, store, child := newTestInterestEngine(t)
	ctx := context.Background()

	seedAgedBalance(t, ledger, child.ID, 20000, 40)
	if err := engine.UpsertConfig(ctx, &core.InterestConfig{ChildID: child.ID, MonthlyRate: 10, CompoundFrequency: core.Monthly}); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	if _, err := store.CreateGoal(ctx, &core.Goal{
		ChildID:       child.ID,
		Name:          "Bicycle",
		CurrentAmount: core.Money{Cents: 5000},
		IsActive:      true,
		CreatedAt:     accrualDay.AddDate(0, 0, -10),
	}); err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	result, err := engine.AccrueForChild(ctx, child.ID, accrualDay)
	if err != nil {
		t.Fatalf("AccrueForChild() error = %v", err)
	}
	if result.GoalInterest.Cents != 0 {
		t.Errorf("goal interest = %d, want 0 for a young goal", result.GoalInterest.Cents)
	}
}

func TestInterestEngine_RunAccrual(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := NewLedger(store, nil)
	engine := NewInterestEngine(store, ledger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		child, _ := store.CreateChild(ctx, "kid")
		seedAgedBalance(t, ledger, child.ID, 10000, 40)
		if err := engine.UpsertConfig(ctx, &core.InterestConfig{ChildID: child.ID, MonthlyRate: 5, CompoundFrequency: core.Monthly}); err != nil {
			t.Fatalf("UpsertConfig() error = %v", err)
		}
	}
	// A fourth child with an inactive config is skipped, not counted.
	skipped, _ := store.CreateChild(ctx, "inactive")
	if err := engine.UpsertConfig(ctx, &core.InterestConfig{ChildID: skipped.ID, MonthlyRate: 5, CompoundFrequency: core.Monthly}); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}
	if err := engine.SetActive(ctx, skipped.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	accrued, err := engine.RunAccrual(ctx, accrualDay)
	if err != nil {
		t.Fatalf("RunAccrual() error = %v", err)
	}
	if accrued != 3 {
		t.Errorf("accrued = %d, want 3", accrued)
	}
}
