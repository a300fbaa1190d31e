package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAllowanceRunner struct {
	calls int
	paid  int
	err   error
}

func (f *fakeAllowanceRunner) ProcessDue(context.Context, time.Time) (int, error) {
	f.calls++
	return f.paid, f.err
}

type fakeInterestRunner struct {
	calls   int
	accrued int
	err     error
}

func (f *fakeInterestRunner) RunAccrual(context.Context, time.Time) (int, error) {
	f.calls++
	return f.accrued, f.err
}

func TestScheduler_Tick_RunsBothEngines(t *testing.T) {
	allowances := &fakeAllowanceRunner{paid: 2}
	interest := &fakeInterestRunner{accrued: 1}

	s := NewScheduler(allowances, interest, time.Hour)
	s.Tick(context.Background())

	if allowances.calls != 1 {
		t.Errorf("allowance calls = %d, want 1", allowances.calls)
	}
	if interest.calls != 1 {
		t.Errorf("interest calls = %d, want 1", interest.calls)
	}
}

func TestScheduler_Tick_AllowanceFailureDoesNotSkipInterest(t *testing.T) {
	allowances := &fakeAllowanceRunner{err: errors.New("db down")}
	interest := &fakeInterestRunner{}

	s := NewScheduler(allowances, interest, time.Hour)
	s.Tick(context.Background())

	if interest.calls != 1 {
		t.Error("interest pass should still run when the allowance pass fails")
	}
}

func TestScheduler_Run_StopsOnCancel(t *testing.T) {
	allowances := &fakeAllowanceRunner{}
	interest := &fakeInterestRunner{}

	s := NewScheduler(allowances, interest, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}

	// The immediate first tick should have fired before shutdown.
	if allowances.calls < 1 || interest.calls < 1 {
		t.Errorf("expected at least one tick, got allowance=%d interest=%d", allowances.calls, interest.calls)
	}
}
