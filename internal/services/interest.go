package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"paghetta/internal/core"
	"paghetta/internal/metrics"
)

// eligibilityLookbackDays is the deposit age required before money starts
// earning interest. A deposit made exactly 30 days before a run is still
// excluded; one made 31 days before is included.
const eligibilityLookbackDays = 30

// accrualConcurrency bounds the fan-out of a full accrual run. Children
// are independent ledgers, so running them in parallel is safe; work for a
// single child always happens on one goroutine.
const accrualConcurrency = 4

// InterestEngine applies monthly interest to balances and savings goals.
// It is stateless between runs; the caller decides the cadence and is
// responsible for not triggering the same period twice.
type InterestEngine struct {
	store  Store
	ledger *Ledger
}

// AccrualResult describes what one run did for one child. Skipped is set
// only when the run posted nothing at all, balance and goals included.
type AccrualResult struct {
	ChildID         int64
	Interest        core.Money
	GoalInterest    core.Money
	EligibleBalance core.Money
	Skipped         bool
	SkipReason      string
}

func NewInterestEngine(store Store, ledger *Ledger) *InterestEngine {
	return &InterestEngine{store: store, ledger: ledger}
}

// UpsertConfig creates or replaces the child's interest configuration.
func (e *InterestEngine) UpsertConfig(ctx context.Context, cfg *core.InterestConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := e.store.GetChild(ctx, cfg.ChildID); err != nil {
		return fmt.Errorf("look up child %d: %w", cfg.ChildID, err)
	}
	if err := e.store.UpsertInterestConfig(ctx, cfg); err != nil {
		return fmt.Errorf("upsert interest config: %w", err)
	}
	return nil
}

func (e *InterestEngine) SetActive(ctx context.Context, childID int64, active bool) error {
	return e.store.SetInterestActive(ctx, childID, active)
}

func (e *InterestEngine) GetConfig(ctx context.Context, childID int64) (*core.InterestConfig, error) {
	return e.store.GetInterestConfig(ctx, childID)
}

// AccrueForChild runs one accrual cycle for a single child. Without an
// active configuration it is a no-op.
func (e *InterestEngine) AccrueForChild(ctx context.Context, childID int64, today time.Time) (*AccrualResult, error) {
	result := &AccrualResult{ChildID: childID}

	cfg, err := e.store.GetInterestConfig(ctx, childID)
	if errors.Is(err, core.ErrNotFound) {
		result.Skipped, result.SkipReason = true, "no interest config"
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interest config: %w", err)
	}
	if !cfg.IsActive {
		result.Skipped, result.SkipReason = true, "config inactive"
		return result, nil
	}

	child, err := e.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}

	cutoff := core.TruncateToDay(today).AddDate(0, 0, -eligibilityLookbackDays)
	recent, err := e.store.SumRecentInflows(ctx, childID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sum recent inflows: %w", err)
	}

	// Only money that has sat in the account for the full lookback earns
	// interest; fresher deposits are part of the balance but not the base.
	eligible := core.Money{Cents: child.Balance.Cents - recent.Cents}
	if eligible.Cents < 0 {
		eligible.Cents = 0
	}
	result.EligibleBalance = eligible

	var skipReason string
	switch {
	case eligible.Cents < cfg.MinimumBalance.Cents:
		skipReason = "eligible balance below minimum"
	default:
		interest := cfg.MonthlyRate.ApplyTo(eligible)
		if interest.Cents < 1 {
			skipReason = "interest below one cent"
			break
		}
		desc := fmt.Sprintf("Interest at %.2f%% on eligible balance of %s", float64(cfg.MonthlyRate), eligible)
		if _, err := e.ledger.PostTransaction(ctx, childID, core.KindInterest, interest, desc, "interest", PostExtra{}); err != nil {
			metrics.InterestRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("post interest: %w", err)
		}
		result.Interest = interest
	}

	// Goal interest is gated only by each goal's age; a balance pass held
	// back by the minimum or the one-cent floor still runs the goals.
	goalInterest, err := e.accrueGoals(ctx, childID, cfg.MonthlyRate, today)
	if err != nil {
		return nil, err
	}
	result.GoalInterest = goalInterest

	if result.Interest.Cents == 0 && goalInterest.Cents == 0 {
		result.Skipped, result.SkipReason = true, skipReason
		metrics.InterestRuns.WithLabelValues("skipped").Inc()
		return result, nil
	}

	if err := e.store.UpdateLastInterestDate(ctx, childID, core.TruncateToDay(today)); err != nil {
		// The interest is already posted; the stale date only widens the
		// double-application window the external scheduler guards against.
		slog.WarnContext(ctx, "Failed to update last interest date",
			"child_id", childID, "error", err)
	}

	metrics.InterestRuns.WithLabelValues("accrued").Inc()
	slog.InfoContext(ctx, "Interest accrued",
		"child_id", childID,
		"interest_cents", result.Interest.Cents,
		"goal_interest_cents", goalInterest.Cents,
		"eligible_cents", eligible.Cents,
		"rate", float64(cfg.MonthlyRate))
	return result, nil
}

// accrueGoals applies interest to each active goal old enough to qualify.
// Goal interest ignores the minimum-balance gate and the inflow exclusion;
// only the goal's own age matters. The goal amount is incremented directly
// and a goal-interest transaction is recorded alongside.
func (e *InterestEngine) accrueGoals(ctx context.Context, childID int64, rate core.Rate, today time.Time) (core.Money, error) {
	goals, err := e.store.ListActiveGoals(ctx, childID)
	if err != nil {
		return core.Money{}, fmt.Errorf("list goals: %w", err)
	}

	cutoff := core.TruncateToDay(today).AddDate(0, 0, -eligibilityLookbackDays)
	var total core.Money
	for _, g := range goals {
		if g.CurrentAmount.Cents <= 0 || g.CreatedAt.After(cutoff) {
			continue
		}
		gi := rate.ApplyTo(g.CurrentAmount)
		if gi.Cents < 1 {
			continue
		}
		if err := e.store.AddGoalInterest(ctx, g.ID, gi); err != nil {
			return total, fmt.Errorf("add interest to goal %d: %w", g.ID, err)
		}
		desc := fmt.Sprintf("Goal interest at %.2f%% on %q", float64(rate), g.Name)
		if _, err := e.ledger.PostTransaction(ctx, childID, core.KindGoalInterest, gi, desc, "goal_interest", PostExtra{GoalID: g.ID}); err != nil {
			return total, fmt.Errorf("post goal interest: %w", err)
		}
		total.Cents += gi.Cents
	}
	return total, nil
}

// RunAccrual runs one accrual cycle for every child with an active
// configuration. Children run in parallel; a failure for one child does
// not stop the others.
func (e *InterestEngine) RunAccrual(ctx context.Context, today time.Time) (int, error) {
	configs, err := e.store.ListActiveInterestConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active interest configs: %w", err)
	}

	slog.InfoContext(ctx, "Running interest accrual",
		"active_configs", len(configs),
		"run_date", today.Format("2006-01-02"))

	var accrued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(accrualConcurrency)
	for _, cfg := range configs {
		childID := cfg.ChildID
		g.Go(func() error {
			result, err := e.AccrueForChild(gctx, childID, today)
			if err != nil {
				slog.ErrorContext(gctx, "Accrual failed for child",
					"child_id", childID, "error", err)
				return nil
			}
			if !result.Skipped {
				accrued.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(accrued.Load()), err
	}
	return int(accrued.Load()), nil
}
