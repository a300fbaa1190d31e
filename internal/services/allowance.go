package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paghetta/internal/core"
	"paghetta/internal/metrics"
	"paghetta/internal/schedule"
)

// AllowanceEngine keeps one recurring-payout configuration per child and
// posts the allowance through the ledger when it comes due.
type AllowanceEngine struct {
	store  Store
	ledger *Ledger
}

func NewAllowanceEngine(store Store, ledger *Ledger) *AllowanceEngine {
	return &AllowanceEngine{store: store, ledger: ledger}
}

// UpsertConfig creates or replaces the child's allowance configuration and
// recomputes the next payment date from today. Changing the frequency or
// the anchor day therefore always resets the schedule.
func (e *AllowanceEngine) UpsertConfig(ctx context.Context, cfg *core.AllowanceConfig, today time.Time) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := e.store.GetChild(ctx, cfg.ChildID); err != nil {
		return fmt.Errorf("look up child %d: %w", cfg.ChildID, err)
	}

	next, err := schedule.NextPaymentDate(today, cfg.Frequency, schedule.Anchor{
		DayOfWeek:  cfg.DayOfWeek,
		DayOfMonth: cfg.DayOfMonth,
	})
	if err != nil {
		return err
	}
	cfg.NextPaymentDate = next
	cfg.UpdatedAt = today

	if err := e.store.UpsertAllowanceConfig(ctx, cfg); err != nil {
		return fmt.Errorf("upsert allowance config: %w", err)
	}

	slog.InfoContext(ctx, "Allowance config saved",
		"child_id", cfg.ChildID,
		"amount_cents", cfg.Amount.Cents,
		"frequency", cfg.Frequency,
		"next_payment_date", next.Format("2006-01-02"))
	return nil
}

// SetActive activates or deactivates the configuration. Configs are never
// hard-deleted.
func (e *AllowanceEngine) SetActive(ctx context.Context, childID int64, active bool) error {
	return e.store.SetAllowanceActive(ctx, childID, active)
}

func (e *AllowanceEngine) GetConfig(ctx context.Context, childID int64) (*core.AllowanceConfig, error) {
	return e.store.GetAllowanceConfig(ctx, childID)
}

// FrequencyDescription returns the human-readable cadence of a config.
func (e *AllowanceEngine) FrequencyDescription(cfg *core.AllowanceConfig) string {
	return schedule.Describe(cfg.Frequency, schedule.Anchor{
		DayOfWeek:  cfg.DayOfWeek,
		DayOfMonth: cfg.DayOfMonth,
	})
}

// ProcessDue pays every active configuration whose next payment date has
// arrived and reschedules it from today. Missed periods are not paid
// retroactively: however late the trigger fires, each config pays at most
// once and the next date is computed from the current day.
func (e *AllowanceEngine) ProcessDue(ctx context.Context, today time.Time) (int, error) {
	due, err := e.store.ListDueAllowanceConfigs(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list due allowance configs: %w", err)
	}

	slog.InfoContext(ctx, "Processing due allowances",
		"due", len(due),
		"processing_date", today.Format("2006-01-02"))

	paid := 0
	for _, cfg := range due {
		desc := fmt.Sprintf("Allowance (%s)", e.FrequencyDescription(&cfg))
		if _, err := e.ledger.PostTransaction(ctx, cfg.ChildID, core.KindAllowance, cfg.Amount, desc, "allowance", PostExtra{}); err != nil {
			// Leave the payment date untouched so the next run retries.
			slog.ErrorContext(ctx, "Failed to post allowance",
				"child_id", cfg.ChildID, "error", err)
			continue
		}

		next, err := schedule.NextPaymentDate(today, cfg.Frequency, schedule.Anchor{
			DayOfWeek:  cfg.DayOfWeek,
			DayOfMonth: cfg.DayOfMonth,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to compute next payment date",
				"child_id", cfg.ChildID, "error", err)
			continue
		}
		if err := e.store.UpdateNextPaymentDate(ctx, cfg.ChildID, next); err != nil {
			slog.ErrorContext(ctx, "Failed to update next payment date",
				"child_id", cfg.ChildID, "error", err)
			continue
		}

		paid++
		metrics.AllowancesPaid.Inc()
		slog.InfoContext(ctx, "Allowance paid",
			"child_id", cfg.ChildID,
			"amount_cents", cfg.Amount.Cents,
			"next_payment_date", next.Format("2006-01-02"))
	}

	return paid, nil
}
