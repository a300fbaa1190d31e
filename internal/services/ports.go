package services

import (
	"context"
	"time"

	"paghetta/internal/core"
)

// Ports for the record store. Each engine depends only on the slice it
// needs; Store combines them for the SQLite repository and the in-memory
// implementation.
type (
	ChildStore interface {
		CreateChild(ctx context.Context, name string) (*core.Child, error)
		GetChild(ctx context.Context, id int64) (*core.Child, error)
		ListChildren(ctx context.Context) ([]core.Child, error)
	}

	// TransactionStore appends ledger records. AppendTransaction inserts
	// the record and applies the balance side effect in one atomic unit;
	// a debit that would drive the balance negative fails with
	// core.ErrInsufficientBalance and writes nothing.
	TransactionStore interface {
		AppendTransaction(ctx context.Context, tx *core.Transaction) error
		SettleTransaction(ctx context.Context, id string, status core.TransactionStatus, approvedBy string, at time.Time) (*core.Transaction, error)
		ListTransactions(ctx context.Context, childID int64, limit int) ([]core.Transaction, error)
		// SumRecentInflows returns the sum of positive inflow amounts
		// (earning, allowance, transfer, interest) completed since the
		// given instant.
		SumRecentInflows(ctx context.Context, childID int64, since time.Time) (core.Money, error)
	}

	AllowanceStore interface {
		UpsertAllowanceConfig(ctx context.Context, cfg *core.AllowanceConfig) error
		GetAllowanceConfig(ctx context.Context, childID int64) (*core.AllowanceConfig, error)
		SetAllowanceActive(ctx context.Context, childID int64, active bool) error
		ListDueAllowanceConfigs(ctx context.Context, today time.Time) ([]core.AllowanceConfig, error)
		UpdateNextPaymentDate(ctx context.Context, childID int64, next time.Time) error
	}

	InterestStore interface {
		UpsertInterestConfig(ctx context.Context, cfg *core.InterestConfig) error
		GetInterestConfig(ctx context.Context, childID int64) (*core.InterestConfig, error)
		SetInterestActive(ctx context.Context, childID int64, active bool) error
		ListActiveInterestConfigs(ctx context.Context) ([]core.InterestConfig, error)
		UpdateLastInterestDate(ctx context.Context, childID int64, day time.Time) error
	}

	GoalStore interface {
		ListActiveGoals(ctx context.Context, childID int64) ([]core.Goal, error)
		// AddGoalInterest increments the goal's current amount directly,
		// outside the ledger. The accrual engine records the matching
		// goal-interest transaction separately.
		AddGoalInterest(ctx context.Context, goalID int64, amount core.Money) error
	}

	LoanStore interface {
		CreateLoan(ctx context.Context, loan *core.Loan, installments []core.LoanInstallment) error
		GetLoan(ctx context.Context, id int64) (*core.Loan, error)
		ListLoansByChild(ctx context.Context, childID int64) ([]core.Loan, error)
		GetInstallment(ctx context.Context, id int64) (*core.LoanInstallment, error)
		ListInstallments(ctx context.Context, loanID int64) ([]core.LoanInstallment, error)
		// MarkInstallmentPaid flips the installment to paid, accumulates
		// the loan's paid amount and transitions the loan to paid_off when
		// the total is covered, all in one atomic unit. Returns the
		// updated loan.
		MarkInstallmentPaid(ctx context.Context, installmentID int64, paidFrom core.PaymentSource, paidAt time.Time) (*core.Loan, error)
		UpdateLoanStatus(ctx context.Context, loanID int64, status core.LoanStatus) error
	}

	// Store is the full record-store surface.
	Store interface {
		ChildStore
		TransactionStore
		AllowanceStore
		InterestStore
		GoalStore
		LoanStore
	}

	// EventPublisher receives a notification after every posted
	// transaction. Publishing is best effort; delivery failures never fail
	// the ledger write.
	EventPublisher interface {
		PublishTransactionPosted(ctx context.Context, tx *core.Transaction) error
	}
)
