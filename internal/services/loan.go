package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paghetta/internal/core"
	"paghetta/internal/metrics"
)

// LoanEngine converts approved purchase requests into installment loans
// and settles installment payments through the ledger.
type LoanEngine struct {
	store  Store
	ledger *Ledger
	now    func() time.Time
}

func NewLoanEngine(store Store, ledger *Ledger) *LoanEngine {
	return &LoanEngine{store: store, ledger: ledger, now: time.Now}
}

// CreateLoan issues a loan with count equal installments. The division
// remainder lands on the last installment so the amounts always sum to the
// exact total. Installment k falls due k months after creation; the first
// one is a month out, never immediate.
func (e *LoanEngine) CreateLoan(ctx context.Context, childID, purchaseRequestID int64, total core.Money, count int) (*core.Loan, error) {
	if err := total.Validate(); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: installment count must be at least 1", core.ErrInvalidAmount)
	}
	if _, err := e.store.GetChild(ctx, childID); err != nil {
		return nil, fmt.Errorf("look up child %d: %w", childID, err)
	}

	createdAt := e.now()
	parts := total.SplitEven(count)
	loan := &core.Loan{
		ChildID:           childID,
		PurchaseRequestID: purchaseRequestID,
		TotalAmount:       total,
		InstallmentCount:  count,
		InstallmentAmount: parts[0],
		Status:            core.LoanActive,
		CreatedAt:         createdAt,
	}

	installments := make([]core.LoanInstallment, count)
	day := core.TruncateToDay(createdAt)
	for k := 1; k <= count; k++ {
		installments[k-1] = core.LoanInstallment{
			InstallmentNumber: k,
			Amount:            parts[k-1],
			DueDate:           day.AddDate(0, k, 0),
			Status:            core.InstallmentPending,
		}
	}

	if err := e.store.CreateLoan(ctx, loan, installments); err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}

	metrics.LoansCreated.Inc()
	slog.InfoContext(ctx, "Loan created",
		"loan_id", loan.ID,
		"child_id", childID,
		"total_cents", total.Cents,
		"installments", count)
	return loan, nil
}

// PayInstallment settles one pending installment: a spending transaction
// is posted first, then the installment and loan state advance. If the
// ledger post fails nothing transitions. Installments may be paid in any
// order.
func (e *LoanEngine) PayInstallment(ctx context.Context, installmentID int64, paidFrom core.PaymentSource) (*core.Loan, error) {
	inst, err := e.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, fmt.Errorf("get installment: %w", err)
	}
	if inst.Status == core.InstallmentPaid {
		return nil, core.ErrAlreadyPaid
	}

	loan, err := e.store.GetLoan(ctx, inst.LoanID)
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	if loan.Status != core.LoanActive {
		return nil, core.ErrLoanNotActive
	}

	desc := fmt.Sprintf("Loan payment %d/%d", inst.InstallmentNumber, loan.InstallmentCount)
	if _, err := e.ledger.PostTransaction(ctx, loan.ChildID, core.KindSpending, inst.Amount, desc, "loan_payment", PostExtra{}); err != nil {
		return nil, fmt.Errorf("post loan payment: %w", err)
	}

	updated, err := e.store.MarkInstallmentPaid(ctx, installmentID, paidFrom, e.now())
	if err != nil {
		// The spending is posted but the installment is still pending, so
		// a blind retry would charge the child twice. Surface the error
		// for a parent to reconcile instead of retrying here.
		return nil, fmt.Errorf("mark installment paid: %w", err)
	}

	metrics.InstallmentsPaid.Inc()
	slog.InfoContext(ctx, "Installment paid",
		"loan_id", loan.ID,
		"installment", inst.InstallmentNumber,
		"paid_from", paidFrom,
		"loan_status", updated.Status)
	return updated, nil
}

// CancelLoan transitions an active loan to its terminal cancelled state.
// Any refund of already-paid installments is the caller's business.
func (e *LoanEngine) CancelLoan(ctx context.Context, loanID int64) error {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return fmt.Errorf("get loan: %w", err)
	}
	if loan.Status != core.LoanActive {
		return core.ErrLoanNotActive
	}
	if err := e.store.UpdateLoanStatus(ctx, loanID, core.LoanCancelled); err != nil {
		return fmt.Errorf("cancel loan: %w", err)
	}
	slog.InfoContext(ctx, "Loan cancelled", "loan_id", loanID)
	return nil
}

// GetLoan returns a loan with its installments.
func (e *LoanEngine) GetLoan(ctx context.Context, loanID int64) (*core.Loan, []core.LoanInstallment, error) {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	installments, err := e.store.ListInstallments(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, installments, nil
}

func (e *LoanEngine) ListLoans(ctx context.Context, childID int64) ([]core.Loan, error) {
	return e.store.ListLoansByChild(ctx, childID)
}

// IsPaidOff reports whether a loan has reached its terminal success state.
func IsPaidOff(loan *core.Loan) bool {
	return loan.Status == core.LoanPaidOff
}
