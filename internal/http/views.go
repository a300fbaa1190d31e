package http

import (
	"time"

	"paghetta/internal/core"
)

// View types render money as decimal strings so clients never see raw
// cents.

type childView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Balance     string    `json:"balance"`
	TotalEarned string    `json:"total_earned"`
	TotalSpent  string    `json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
}

type transactionView struct {
	ID          string    `json:"id"`
	ChildID     int64     `json:"child_id"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Status      string    `json:"status"`
	ApprovedBy  string    `json:"approved_by,omitempty"`
	GoalID      int64     `json:"goal_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type allowanceView struct {
	ChildID         int64  `json:"child_id"`
	Amount          string `json:"amount"`
	Frequency       string `json:"frequency"`
	DayOfWeek       int    `json:"day_of_week"`
	DayOfMonth      int    `json:"day_of_month"`
	IsActive        bool   `json:"is_active"`
	NextPaymentDate string `json:"next_payment_date"`
	Schedule        string `json:"schedule"`
}

type interestView struct {
	ChildID           int64   `json:"child_id"`
	MonthlyRate       float64 `json:"monthly_rate"`
	CompoundFrequency string  `json:"compound_frequency"`
	MinimumBalance    string  `json:"minimum_balance"`
	IsActive          bool    `json:"is_active"`
	LastInterestDate  string  `json:"last_interest_date,omitempty"`
}

type loanView struct {
	ID                int64     `json:"id"`
	ChildID           int64     `json:"child_id"`
	PurchaseRequestID int64     `json:"purchase_request_id,omitempty"`
	TotalAmount       string    `json:"total_amount"`
	InstallmentCount  int       `json:"installment_count"`
	InstallmentAmount string    `json:"installment_amount"`
	PaidAmount        string    `json:"paid_amount"`
	Status            string    `json:"status"`
	BadgeState        string    `json:"badge_state"`
	CreatedAt         time.Time `json:"created_at"`
}

type installmentView struct {
	ID                int64  `json:"id"`
	LoanID            int64  `json:"loan_id"`
	InstallmentNumber int    `json:"installment_number"`
	Amount            string `json:"amount"`
	DueDate           string `json:"due_date"`
	Status            string `json:"status"`
	Overdue           bool   `json:"overdue"`
	PaidDate          string `json:"paid_date,omitempty"`
	PaidFrom          string `json:"paid_from,omitempty"`
}

// childOverview is the cached aggregate served on GET /children/{id}.
type childOverview struct {
	Child        childView         `json:"child"`
	Transactions []transactionView `json:"recent_transactions"`
	Loans        []loanView        `json:"loans"`
}

func toChildView(c *core.Child) childView {
	return childView{
		ID:          c.ID,
		Name:        c.Name,
		Balance:     c.Balance.String(),
		TotalEarned: c.TotalEarned.String(),
		TotalSpent:  c.TotalSpent.String(),
		CreatedAt:   c.CreatedAt,
	}
}

func toTransactionView(t core.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		ChildID:     t.ChildID,
		Kind:        string(t.Kind),
		Amount:      t.Amount.String(),
		Description: t.Description,
		Category:    t.Category,
		Status:      string(t.Status),
		ApprovedBy:  t.ApprovedBy,
		GoalID:      t.GoalID,
		CreatedAt:   t.CreatedAt,
	}
}

func toTransactionViews(txs []core.Transaction) []transactionView {
	views := make([]transactionView, len(txs))
	for i, t := range txs {
		views[i] = toTransactionView(t)
	}
	return views
}

func toAllowanceView(cfg *core.AllowanceConfig, schedule string) allowanceView {
	return allowanceView{
		ChildID:         cfg.ChildID,
		Amount:          cfg.Amount.String(),
		Frequency:       string(cfg.Frequency),
		DayOfWeek:       cfg.DayOfWeek,
		DayOfMonth:      cfg.DayOfMonth,
		IsActive:        cfg.IsActive,
		NextPaymentDate: cfg.NextPaymentDate.Format("2006-01-02"),
		Schedule:        schedule,
	}
}

func toInterestView(cfg *core.InterestConfig) interestView {
	v := interestView{
		ChildID:           cfg.ChildID,
		MonthlyRate:       float64(cfg.MonthlyRate),
		CompoundFrequency: string(cfg.CompoundFrequency),
		MinimumBalance:    cfg.MinimumBalance.String(),
		IsActive:          cfg.IsActive,
	}
	if !cfg.LastInterestDate.IsZero() {
		v.LastInterestDate = cfg.LastInterestDate.Format("2006-01-02")
	}
	return v
}

func toLoanView(l *core.Loan) loanView {
	return loanView{
		ID:                l.ID,
		ChildID:           l.ChildID,
		PurchaseRequestID: l.PurchaseRequestID,
		TotalAmount:       l.TotalAmount.String(),
		InstallmentCount:  l.InstallmentCount,
		InstallmentAmount: l.InstallmentAmount.String(),
		PaidAmount:        l.PaidAmount.String(),
		Status:            string(l.Status),
		BadgeState:        l.Status.BadgeState(),
		CreatedAt:         l.CreatedAt,
	}
}

func toInstallmentView(i core.LoanInstallment, today time.Time) installmentView {
	v := installmentView{
		ID:                i.ID,
		LoanID:            i.LoanID,
		InstallmentNumber: i.InstallmentNumber,
		Amount:            i.Amount.String(),
		DueDate:           i.DueDate.Format("2006-01-02"),
		Status:            string(i.Status),
		Overdue:           i.IsOverdue(today),
		PaidFrom:          string(i.PaidFrom),
	}
	if !i.PaidDate.IsZero() {
		v.PaidDate = i.PaidDate.Format("2006-01-02")
	}
	return v
}
