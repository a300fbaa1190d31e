package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

const (
	KindEarning      TransactionKind = "earning"
	KindSpending     TransactionKind = "spending"
	KindTransfer     TransactionKind = "transfer"
	KindInterest     TransactionKind = "interest"
	KindGoalInterest TransactionKind = "goal-interest"
	KindAllowance    TransactionKind = "allowance"
)

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusRejected  TransactionStatus = "rejected"
	StatusCancelled TransactionStatus = "cancelled"
)

const (
	LoanActive    LoanStatus = "active"
	LoanPaidOff   LoanStatus = "paid_off"
	LoanCancelled LoanStatus = "cancelled"
)

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

const (
	PaidFromAllowance PaymentSource = "allowance"
	PaidFromManual    PaymentSource = "manual"
	PaidFromGift      PaymentSource = "gift"
)

type (
	Frequency         string
	TransactionKind   string
	TransactionStatus string
	LoanStatus        string
	InstallmentStatus string
	PaymentSource     string

	// Child is an account holder. Balance fields are only ever mutated as a
	// side effect of appending a completed transaction.
	Child struct {
		ID          int64
		Name        string
		Balance     Money
		TotalEarned Money
		TotalSpent  Money
		CreatedAt   time.Time
	}

	// Transaction is an immutable ledger record. Amount carries the sign:
	// credits are positive, debits negative. A child's balance equals the
	// signed sum of its completed transactions.
	Transaction struct {
		ID          string
		ChildID     int64
		Kind        TransactionKind
		Amount      Money
		Description string
		Category    string
		Status      TransactionStatus
		ApprovedBy  string
		ApprovedAt  time.Time
		GoalID      int64
		CreatedAt   time.Time
	}

	// AllowanceConfig is the recurring payout rule for one child. At most one
	// row per child; deactivated rather than deleted.
	AllowanceConfig struct {
		ChildID         int64
		Amount          Money
		Frequency       Frequency
		DayOfWeek       int // 0-6, used when Frequency == Weekly
		DayOfMonth      int // 1-28, used when Frequency == Monthly
		IsActive        bool
		NextPaymentDate time.Time
		UpdatedAt       time.Time
	}

	// InterestConfig is the accrual rule for one child. MonthlyRate is a
	// percentage in the 0-100 range, never a 0-1 fraction.
	InterestConfig struct {
		ChildID           int64
		MonthlyRate       Rate
		CompoundFrequency Frequency
		MinimumBalance    Money
		IsActive          bool
		LastInterestDate  time.Time
	}

	// Loan is an installment plan issued against an approved purchase
	// request. PaidAmount is the sum of paid installment amounts; status
	// flips to paid_off exactly when PaidAmount >= TotalAmount.
	Loan struct {
		ID                int64
		ChildID           int64
		PurchaseRequestID int64
		TotalAmount       Money
		InstallmentCount  int
		InstallmentAmount Money
		PaidAmount        Money
		Status            LoanStatus
		CreatedAt         time.Time
	}

	LoanInstallment struct {
		ID                int64
		LoanID            int64
		InstallmentNumber int
		Amount            Money
		DueDate           time.Time
		Status            InstallmentStatus
		PaidDate          time.Time
		PaidFrom          PaymentSource
	}

	// Goal is a savings goal. The accrual engine increments CurrentAmount
	// directly while still recording a goal-interest transaction.
	Goal struct {
		ID            int64
		ChildID       int64
		Name          string
		CurrentAmount Money
		IsActive      bool
		CreatedAt     time.Time
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidRate         = errors.New("invalid rate: must be between 0 and 100")
	ErrInvalidFrequency    = errors.New("invalid frequency")
	ErrInvalidDayOfWeek    = errors.New("invalid day of week: must be between 0 and 6")
	ErrInvalidDayOfMonth   = errors.New("invalid day of month: must be between 1 and 28")
	ErrInvalidKind         = errors.New("invalid transaction kind")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyPaid         = errors.New("installment already paid")
	ErrLoanNotActive       = errors.New("loan is not active")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// IsCredit reports whether the kind increases the child's balance.
// Goal interest credits the balance too: a goal amount is an allocation
// within the balance, so both move together.
func (k TransactionKind) IsCredit() bool {
	switch k {
	case KindEarning, KindAllowance, KindInterest, KindGoalInterest:
		return true
	default:
		return false
	}
}

func (k TransactionKind) Validate() error {
	switch k {
	case KindEarning, KindSpending, KindTransfer, KindInterest, KindGoalInterest, KindAllowance:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Biweekly, Monthly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (t Transaction) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (c AllowanceConfig) Validate() error {
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	if err := c.Frequency.Validate(); err != nil {
		return err
	}
	if c.Frequency == Weekly && (c.DayOfWeek < 0 || c.DayOfWeek > 6) {
		return ErrInvalidDayOfWeek
	}
	// Anchor is kept at 28 or below so it stays valid in every month.
	if c.Frequency == Monthly && (c.DayOfMonth < 1 || c.DayOfMonth > 28) {
		return ErrInvalidDayOfMonth
	}
	return nil
}

func (c InterestConfig) Validate() error {
	if err := c.MonthlyRate.Validate(); err != nil {
		return err
	}
	switch c.CompoundFrequency {
	case Daily, Weekly, Monthly:
	default:
		return ErrInvalidFrequency
	}
	if c.MinimumBalance.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BadgeState is the presentation state derived from a loan status.
func (s LoanStatus) BadgeState() string {
	switch s {
	case LoanActive:
		return "ongoing"
	case LoanPaidOff:
		return "success"
	case LoanCancelled:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsOverdue reports the transient overdue display state. The stored status
// never changes because of this.
func (i LoanInstallment) IsOverdue(today time.Time) bool {
	return i.Status == InstallmentPending && i.DueDate.Before(TruncateToDay(today))
}

// TruncateToDay drops the time-of-day component.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
