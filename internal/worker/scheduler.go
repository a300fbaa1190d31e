package worker

import (
	"context"
	"log/slog"
	"time"
)

// Runner slices of the engines the scheduler drives.
type (
	AllowanceRunner interface {
		ProcessDue(ctx context.Context, today time.Time) (int, error)
	}

	InterestRunner interface {
		RunAccrual(ctx context.Context, today time.Time) (int, error)
	}
)

// Scheduler drives the periodic engines. Each tick pays due allowances
// first and accrues interest second, so an allowance landing today counts
// as a recent inflow for the same day's accrual.
type Scheduler struct {
	allowances AllowanceRunner
	interest   InterestRunner
	interval   time.Duration
	now        func() time.Time
}

func NewScheduler(allowances AllowanceRunner, interest InterestRunner, interval time.Duration) *Scheduler {
	return &Scheduler{
		allowances: allowances,
		interest:   interest,
		interval:   interval,
		now:        time.Now,
	}
}

// Run blocks until the context is cancelled. The first tick fires
// immediately so a restarted worker catches up without waiting a full
// interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. Engine failures are logged and do not
// stop the loop; the next tick retries whatever was left undone.
func (s *Scheduler) Tick(ctx context.Context) {
	today := s.now()

	paid, err := s.allowances.ProcessDue(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Allowance pass failed", "error", err)
	} else if paid > 0 {
		slog.InfoContext(ctx, "Allowance pass completed", "paid", paid)
	}

	accrued, err := s.interest.RunAccrual(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Interest pass failed", "error", err)
	} else if accrued > 0 {
		slog.InfoContext(ctx, "Interest pass completed", "accrued", accrued)
	}
}
