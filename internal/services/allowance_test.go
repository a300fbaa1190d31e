package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"paghetta/internal/core"
	"paghetta/internal/storage"
)

func newTestAllowanceEngine(t *testing.T) (*AllowanceEngine, *storage.MemoryStore, *core.Child) {
	t.Helper()
	store := storage.NewMemoryStore()
	ledger := NewLedger(store, nil)
	engine := NewAllowanceEngine(store, ledger)
	child, err := store.CreateChild(context.Background(), "Sofia")
	if err != nil {
		t.Fatalf("CreateChild() error = %v", err)
	}
	return engine, store, child
}

func TestAllowanceEngine_UpsertConfig_ComputesNextDate(t *testing.T) {
	engine, store, child := newTestAllowanceEngine(t)
	ctx := context.Background()

	// Wednesday; the next Monday payout is five days out.
	today := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	cfg := &core.AllowanceConfig{
		ChildID:   child.ID,
		Amount:    core.Money{Cents: 1000},
		Frequency: core.Weekly,
		DayOfWeek: 1,
	}
	if err := engine.UpsertConfig(ctx, cfg, today); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	saved, err := store.GetAllowanceConfig(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetAllowanceConfig() error = %v", err)
	}
	want := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	if !saved.NextPaymentDate.Equal(want) {
		t.Errorf("next payment date = %v, want %v", saved.NextPaymentDate, want)
	}
	if !saved.IsActive {
		t.Error("upserted config should be active")
	}
}

func TestAllowanceEngine_UpsertConfig_Validation(t *testing.T) {
	engine, _, child := newTestAllowanceEngine(t)
	ctx := context.Background()
	today := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cfg     core.AllowanceConfig
		wantErr error
	}{
		{
			"zero amount",
			core.AllowanceConfig{ChildID: child.ID, Frequency: core.Weekly, DayOfWeek: 1},
			core.ErrInvalidAmount,
		},
		{
			"bad frequency",
			core.AllowanceConfig{ChildID: child.ID, Amount: core.Money{Cents: 100}, Frequency: "yearly"},
			core.ErrInvalidFrequency,
		},
		{
			"day of week out of range",
			core.AllowanceConfig{ChildID: child.ID, Amount: core.Money{Cents: 100}, Frequency: core.Weekly, DayOfWeek: 7},
			core.ErrInvalidDayOfWeek,
		},
		{
			"monthly anchor past 28",
			core.AllowanceConfig{ChildID: child.ID, Amount: core.Money{Cents: 100}, Frequency: core.Monthly, DayOfMonth: 31},
			core.ErrInvalidDayOfMonth,
		},
		{
			"unknown child",
			core.AllowanceConfig{ChildID: 999, Amount: core.Money{Cents: 100}, Frequency: core.Daily},
			core.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := engine.UpsertConfig(ctx, &cfg, today); !errors.Is(err, tt.wantErr) {
				t.Errorf("UpsertConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllowanceEngine_ProcessDue(t *testing.T) {
	engine, store, child := newTestAllowanceEngine(t)
	ctx := context.Background()

	setup := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	cfg := &core.AllowanceConfig{
		ChildID:    child.ID,
		Amount:     core.Money{Cents: 1500},
		Frequency:  core.Monthly,
		DayOfMonth: 6,
	}
	if err := engine.UpsertConfig(ctx, cfg, setup); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	// Not yet due.
	paid, err := engine.ProcessDue(ctx, time.Date(2026, 7, 5, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if paid != 0 {
		t.Fatalf("paid = %d, want 0 before the due date", paid)
	}

	// Due day: one payout, rescheduled a month out.
	payday := time.Date(2026, 7, 6, 8, 0, 0, 0, time.UTC)
	paid, err = engine.ProcessDue(ctx, payday)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if paid != 1 {
		t.Fatalf("paid = %d, want 1", paid)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 1500 {
		t.Errorf("balance = %d, want 1500", got.Balance.Cents)
	}

	saved, _ := store.GetAllowanceConfig(ctx, child.ID)
	wantNext := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	if !saved.NextPaymentDate.Equal(wantNext) {
		t.Errorf("next payment date = %v, want %v", saved.NextPaymentDate, wantNext)
	}

	// Same day again: already rescheduled, nothing due.
	paid, err = engine.ProcessDue(ctx, payday)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if paid != 0 {
		t.Errorf("paid = %d, want 0 on the second pass", paid)
	}
}

func TestAllowanceEngine_ProcessDue_NoCatchUp(t *testing.T) {
	engine, store, child := newTestAllowanceEngine(t)
	ctx := context.Background()

	setup := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cfg := &core.AllowanceConfig{
		ChildID:    child.ID,
		Amount:     core.Money{Cents: 1000},
		Frequency:  core.Monthly,
		DayOfMonth: 6,
	}
	if err := engine.UpsertConfig(ctx, cfg, setup); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}

	// The worker was down for two missed periods; it pays once, not three
	// times, and reschedules from today.
	late := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	paid, err := engine.ProcessDue(ctx, late)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if paid != 1 {
		t.Fatalf("paid = %d, want exactly 1", paid)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 1000 {
		t.Errorf("balance = %d, want 1000", got.Balance.Cents)
	}

	saved, _ := store.GetAllowanceConfig(ctx, child.ID)
	wantNext := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	if !saved.NextPaymentDate.Equal(wantNext) {
		t.Errorf("next payment date = %v, want %v", saved.NextPaymentDate, wantNext)
	}
}

func TestAllowanceEngine_InactiveConfigNotPaid(t *testing.T) {
	engine, store, child := newTestAllowanceEngine(t)
	ctx := context.Background()

	setup := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	cfg := &core.AllowanceConfig{
		ChildID:   child.ID,
		Amount:    core.Money{Cents: 1000},
		Frequency: core.Daily,
	}
	if err := engine.UpsertConfig(ctx, cfg, setup); err != nil {
		t.Fatalf("UpsertConfig() error = %v", err)
	}
	if err := engine.SetActive(ctx, child.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	paid, err := engine.ProcessDue(ctx, setup.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if paid != 0 {
		t.Errorf("paid = %d, want 0 for an inactive config", paid)
	}

	got, _ := store.GetChild(ctx, child.ID)
	if got.Balance.Cents != 0 {
		t.Errorf("balance = %d, want 0", got.Balance.Cents)
	}
}

func TestAllowanceEngine_FrequencyDescription(t *testing.T) {
	engine, _, child := newTestAllowanceEngine(t)

	cfg := &core.AllowanceConfig{
		ChildID:   child.ID,
		Amount:    core.Money{Cents: 1000},
		Frequency: core.Biweekly,
	}
	if got := engine.FrequencyDescription(cfg); got == "" {
		t.Error("FrequencyDescription() should not be empty")
	}
}
