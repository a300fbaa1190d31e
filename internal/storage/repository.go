package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paghetta/internal/core"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC strings so that SQL string
// comparison and ordering agree with time order. A variable-width
// fraction (RFC3339Nano) would sort a whole-second timestamp after a
// fractional one in the same second.
const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteRepository is the primary record store. Multi-step writes (append
// transaction + balance update, installment payment + loan rollup) run
// inside a single database transaction so a crash can never leave the
// ledger and the balance disagreeing.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// storageErr wraps a database failure so callers can match it against
// core.ErrStorageUnavailable while keeping the underlying cause visible.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, core.ErrStorageUnavailable, err)
}

func (r *SQLiteRepository) CreateChild(ctx context.Context, name string) (*core.Child, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO children (name, created_at) VALUES (?, ?)`,
		name, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, storageErr("create child", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("create child id", err)
	}
	return &core.Child{ID: id, Name: name, CreatedAt: now}, nil
}

func (r *SQLiteRepository) GetChild(ctx context.Context, id int64) (*core.Child, error) {
	return scanChild(r.db.QueryRowContext(ctx,
		`SELECT id, name, balance_cents, total_earned_cents, total_spent_cents, created_at
		 FROM children WHERE id = ?`, id))
}

func (r *SQLiteRepository) ListChildren(ctx context.Context) ([]core.Child, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, balance_cents, total_earned_cents, total_spent_cents, created_at
		 FROM children ORDER BY id`)
	if err != nil {
		return nil, storageErr("list children", err)
	}
	defer rows.Close()

	var out []core.Child
	for rows.Next() {
		var c core.Child
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &c.Balance.Cents, &c.TotalEarned.Cents, &c.TotalSpent.Cents, &created); err != nil {
			return nil, storageErr("scan child", err)
		}
		c.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChild(row rowScanner) (*core.Child, error) {
	var c core.Child
	var created string
	err := row.Scan(&c.ID, &c.Name, &c.Balance.Cents, &c.TotalEarned.Cents, &c.TotalSpent.Cents, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("scan child", err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return &c, nil
}

func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t *core.Transaction) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin append", err)
	}
	defer dbtx.Rollback()

	var balance int64
	err = dbtx.QueryRowContext(ctx,
		`SELECT balance_cents FROM children WHERE id = ?`, t.ChildID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return storageErr("read balance", err)
	}

	if t.Status == core.StatusCompleted && balance+t.Amount.Cents < 0 {
		return core.ErrInsufficientBalance
	}

	var goalID any
	if t.GoalID != 0 {
		goalID = t.GoalID
	}
	_, err = dbtx.ExecContext(ctx,
		`INSERT INTO transactions (id, child_id, kind, amount_cents, description, category, status, approved_by, goal_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ChildID, string(t.Kind), t.Amount.Cents, t.Description, t.Category,
		string(t.Status), t.ApprovedBy, goalID, t.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return storageErr("insert transaction", err)
	}

	if t.Status == core.StatusCompleted {
		if err := applyBalanceTx(ctx, dbtx, t.ChildID, t.Amount.Cents); err != nil {
			return err
		}
	}

	if err := dbtx.Commit(); err != nil {
		return storageErr("commit append", err)
	}
	return nil
}

func applyBalanceTx(ctx context.Context, dbtx *sql.Tx, childID, amountCents int64) error {
	earned, spent := int64(0), int64(0)
	if amountCents > 0 {
		earned = amountCents
	} else {
		spent = -amountCents
	}
	_, err := dbtx.ExecContext(ctx,
		`UPDATE children
		 SET balance_cents = balance_cents + ?,
		     total_earned_cents = total_earned_cents + ?,
		     total_spent_cents = total_spent_cents + ?
		 WHERE id = ?`,
		amountCents, earned, spent, childID)
	if err != nil {
		return storageErr("update balance", err)
	}
	return nil
}

func (r *SQLiteRepository) SettleTransaction(ctx context.Context, id string, status core.TransactionStatus, approvedBy string, at time.Time) (*core.Transaction, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin settle", err)
	}
	defer dbtx.Rollback()

	t, err := scanTransaction(dbtx.QueryRowContext(ctx,
		`SELECT id, child_id, kind, amount_cents, description, category, status, approved_by, approved_at, goal_id, created_at
		 FROM transactions WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if t.Status != core.StatusPending {
		return nil, fmt.Errorf("transaction %s is not pending", id)
	}

	if status == core.StatusCompleted {
		var balance int64
		err = dbtx.QueryRowContext(ctx,
			`SELECT balance_cents FROM children WHERE id = ?`, t.ChildID).Scan(&balance)
		if err != nil {
			return nil, storageErr("read balance", err)
		}
		if balance+t.Amount.Cents < 0 {
			return nil, core.ErrInsufficientBalance
		}
		if err := applyBalanceTx(ctx, dbtx, t.ChildID, t.Amount.Cents); err != nil {
			return nil, err
		}
	}

	_, err = dbtx.ExecContext(ctx,
		`UPDATE transactions SET status = ?, approved_by = ?, approved_at = ? WHERE id = ?`,
		string(status), approvedBy, at.UTC().Format(timeLayout), id)
	if err != nil {
		return nil, storageErr("update transaction status", err)
	}

	if err := dbtx.Commit(); err != nil {
		return nil, storageErr("commit settle", err)
	}

	t.Status = status
	t.ApprovedBy = approvedBy
	t.ApprovedAt = at
	return t, nil
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var t core.Transaction
	var created string
	var approvedAt sql.Null[string]
	var goalID sql.Null[int64]
	err := row.Scan(&t.ID, &t.ChildID, (*string)(&t.Kind), &t.Amount.Cents, &t.Description,
		&t.Category, (*string)(&t.Status), &t.ApprovedBy, &approvedAt, &goalID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("scan transaction", err)
	}
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	if approvedAt.Valid {
		t.ApprovedAt, _ = time.Parse(timeLayout, approvedAt.V)
	}
	if goalID.Valid {
		t.GoalID = goalID.V
	}
	return &t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, childID int64, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, child_id, kind, amount_cents, description, category, status, approved_by, approved_at, goal_id, created_at
		 FROM transactions WHERE child_id = ? ORDER BY created_at DESC LIMIT ?`,
		childID, limit)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var created string
		var approvedAt sql.Null[string]
		var goalID sql.Null[int64]
		if err := rows.Scan(&t.ID, &t.ChildID, (*string)(&t.Kind), &t.Amount.Cents, &t.Description,
			&t.Category, (*string)(&t.Status), &t.ApprovedBy, &approvedAt, &goalID, &created); err != nil {
			return nil, storageErr("scan transaction", err)
		}
		t.CreatedAt, _ = time.Parse(timeLayout, created)
		if approvedAt.Valid {
			t.ApprovedAt, _ = time.Parse(timeLayout, approvedAt.V)
		}
		if goalID.Valid {
			t.GoalID = goalID.V
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SumRecentInflows(ctx context.Context, childID int64, since time.Time) (core.Money, error) {
	var sum sql.Null[int64]
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(amount_cents) FROM transactions
		 WHERE child_id = ? AND status = 'completed' AND amount_cents > 0
		   AND kind IN ('earning', 'allowance', 'transfer', 'interest')
		   AND created_at >= ?`,
		childID, since.UTC().Format(timeLayout)).Scan(&sum)
	if err != nil {
		return core.Money{}, storageErr("sum recent inflows", err)
	}
	if !sum.Valid {
		return core.Money{}, nil
	}
	return core.Money{Cents: sum.V}, nil
}

func (r *SQLiteRepository) UpsertAllowanceConfig(ctx context.Context, cfg *core.AllowanceConfig) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allowance_config (child_id, amount_cents, frequency, day_of_week, day_of_month, is_active, next_payment_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(child_id) DO UPDATE SET
		   amount_cents = excluded.amount_cents,
		   frequency = excluded.frequency,
		   day_of_week = excluded.day_of_week,
		   day_of_month = excluded.day_of_month,
		   is_active = 1,
		   next_payment_date = excluded.next_payment_date,
		   updated_at = excluded.updated_at`,
		cfg.ChildID, cfg.Amount.Cents, string(cfg.Frequency), cfg.DayOfWeek, cfg.DayOfMonth,
		cfg.NextPaymentDate.Format(dateLayout), cfg.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return storageErr("upsert allowance config", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAllowanceConfig(ctx context.Context, childID int64) (*core.AllowanceConfig, error) {
	var cfg core.AllowanceConfig
	var active int
	var next, updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT child_id, amount_cents, frequency, day_of_week, day_of_month, is_active, next_payment_date, updated_at
		 FROM allowance_config WHERE child_id = ?`, childID).
		Scan(&cfg.ChildID, &cfg.Amount.Cents, (*string)(&cfg.Frequency), &cfg.DayOfWeek, &cfg.DayOfMonth, &active, &next, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get allowance config", err)
	}
	cfg.IsActive = active != 0
	cfg.NextPaymentDate, _ = time.Parse(dateLayout, next)
	cfg.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &cfg, nil
}

func (r *SQLiteRepository) SetAllowanceActive(ctx context.Context, childID int64, active bool) error {
	return r.setActiveFlag(ctx, "allowance_config", childID, active)
}

func (r *SQLiteRepository) setActiveFlag(ctx context.Context, table string, childID int64, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET is_active = ? WHERE child_id = ?`, flag, childID)
	if err != nil {
		return storageErr("set active flag", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListDueAllowanceConfigs(ctx context.Context, today time.Time) ([]core.AllowanceConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT child_id, amount_cents, frequency, day_of_week, day_of_month, is_active, next_payment_date, updated_at
		 FROM allowance_config
		 WHERE is_active = 1 AND next_payment_date <= ?
		 ORDER BY child_id`,
		core.TruncateToDay(today).Format(dateLayout))
	if err != nil {
		return nil, storageErr("list due allowance configs", err)
	}
	defer rows.Close()

	var out []core.AllowanceConfig
	for rows.Next() {
		var cfg core.AllowanceConfig
		var active int
		var next, updated string
		if err := rows.Scan(&cfg.ChildID, &cfg.Amount.Cents, (*string)(&cfg.Frequency),
			&cfg.DayOfWeek, &cfg.DayOfMonth, &active, &next, &updated); err != nil {
			return nil, storageErr("scan allowance config", err)
		}
		cfg.IsActive = active != 0
		cfg.NextPaymentDate, _ = time.Parse(dateLayout, next)
		cfg.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateNextPaymentDate(ctx context.Context, childID int64, next time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allowance_config SET next_payment_date = ? WHERE child_id = ?`,
		next.Format(dateLayout), childID)
	if err != nil {
		return storageErr("update next payment date", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpsertInterestConfig(ctx context.Context, cfg *core.InterestConfig) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO interest_config (child_id, monthly_rate, compound_frequency, minimum_balance_cents, is_active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(child_id) DO UPDATE SET
		   monthly_rate = excluded.monthly_rate,
		   compound_frequency = excluded.compound_frequency,
		   minimum_balance_cents = excluded.minimum_balance_cents,
		   is_active = 1`,
		cfg.ChildID, float64(cfg.MonthlyRate), string(cfg.CompoundFrequency), cfg.MinimumBalance.Cents)
	if err != nil {
		return storageErr("upsert interest config", err)
	}
	return nil
}

func (r *SQLiteRepository) GetInterestConfig(ctx context.Context, childID int64) (*core.InterestConfig, error) {
	var cfg core.InterestConfig
	var rate float64
	var active int
	var lastDate sql.Null[string]
	err := r.db.QueryRowContext(ctx,
		`SELECT child_id, monthly_rate, compound_frequency, minimum_balance_cents, is_active, last_interest_date
		 FROM interest_config WHERE child_id = ?`, childID).
		Scan(&cfg.ChildID, &rate, (*string)(&cfg.CompoundFrequency), &cfg.MinimumBalance.Cents, &active, &lastDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get interest config", err)
	}
	cfg.MonthlyRate = core.Rate(rate)
	cfg.IsActive = active != 0
	if lastDate.Valid {
		cfg.LastInterestDate, _ = time.Parse(dateLayout, lastDate.V)
	}
	return &cfg, nil
}

func (r *SQLiteRepository) SetInterestActive(ctx context.Context, childID int64, active bool) error {
	return r.setActiveFlag(ctx, "interest_config", childID, active)
}

func (r *SQLiteRepository) ListActiveInterestConfigs(ctx context.Context) ([]core.InterestConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT child_id, monthly_rate, compound_frequency, minimum_balance_cents, is_active, last_interest_date
		 FROM interest_config WHERE is_active = 1 ORDER BY child_id`)
	if err != nil {
		return nil, storageErr("list active interest configs", err)
	}
	defer rows.Close()

	var out []core.InterestConfig
	for rows.Next() {
		var cfg core.InterestConfig
		var rate float64
		var active int
		var lastDate sql.Null[string]
		if err := rows.Scan(&cfg.ChildID, &rate, (*string)(&cfg.CompoundFrequency),
			&cfg.MinimumBalance.Cents, &active, &lastDate); err != nil {
			return nil, storageErr("scan interest config", err)
		}
		cfg.MonthlyRate = core.Rate(rate)
		cfg.IsActive = active != 0
		if lastDate.Valid {
			cfg.LastInterestDate, _ = time.Parse(dateLayout, lastDate.V)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateLastInterestDate(ctx context.Context, childID int64, day time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE interest_config SET last_interest_date = ? WHERE child_id = ?`,
		day.Format(dateLayout), childID)
	if err != nil {
		return storageErr("update last interest date", err)
	}
	return nil
}

// CreateGoal seeds a savings goal. Goal lifecycle management is owned by
// an outer layer; the accrual engine only reads and increments.
func (r *SQLiteRepository) CreateGoal(ctx context.Context, goal *core.Goal) (*core.Goal, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (child_id, name, current_cents, is_active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		goal.ChildID, goal.Name, goal.CurrentAmount.Cents, goal.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return nil, storageErr("create goal", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("create goal id", err)
	}
	out := *goal
	out.ID = id
	out.IsActive = true
	return &out, nil
}

func (r *SQLiteRepository) ListActiveGoals(ctx context.Context, childID int64) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, child_id, name, current_cents, is_active, created_at
		 FROM goals WHERE child_id = ? AND is_active = 1 ORDER BY id`, childID)
	if err != nil {
		return nil, storageErr("list active goals", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		var g core.Goal
		var active int
		var created string
		if err := rows.Scan(&g.ID, &g.ChildID, &g.Name, &g.CurrentAmount.Cents, &active, &created); err != nil {
			return nil, storageErr("scan goal", err)
		}
		g.IsActive = active != 0
		g.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AddGoalInterest(ctx context.Context, goalID int64, amount core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET current_cents = current_cents + ? WHERE id = ?`,
		amount.Cents, goalID)
	if err != nil {
		return storageErr("add goal interest", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateLoan(ctx context.Context, loan *core.Loan, installments []core.LoanInstallment) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin create loan", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.ExecContext(ctx,
		`INSERT INTO loans (child_id, purchase_request_id, total_cents, installment_count, installment_cents, paid_cents, status, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		loan.ChildID, loan.PurchaseRequestID, loan.TotalAmount.Cents, loan.InstallmentCount,
		loan.InstallmentAmount.Cents, string(loan.Status), loan.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return storageErr("insert loan", err)
	}
	loanID, err := res.LastInsertId()
	if err != nil {
		return storageErr("loan id", err)
	}

	for i := range installments {
		inst := &installments[i]
		_, err := dbtx.ExecContext(ctx,
			`INSERT INTO loan_installments (loan_id, installment_number, amount_cents, due_date, status)
			 VALUES (?, ?, ?, ?, ?)`,
			loanID, inst.InstallmentNumber, inst.Amount.Cents,
			inst.DueDate.Format(dateLayout), string(inst.Status))
		if err != nil {
			return storageErr("insert installment", err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return storageErr("commit create loan", err)
	}
	loan.ID = loanID
	return nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, id int64) (*core.Loan, error) {
	return scanLoan(r.db.QueryRowContext(ctx,
		`SELECT id, child_id, purchase_request_id, total_cents, installment_count, installment_cents, paid_cents, status, created_at
		 FROM loans WHERE id = ?`, id))
}

func scanLoan(row rowScanner) (*core.Loan, error) {
	var l core.Loan
	var created string
	err := row.Scan(&l.ID, &l.ChildID, &l.PurchaseRequestID, &l.TotalAmount.Cents,
		&l.InstallmentCount, &l.InstallmentAmount.Cents, &l.PaidAmount.Cents,
		(*string)(&l.Status), &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("scan loan", err)
	}
	l.CreatedAt, _ = time.Parse(timeLayout, created)
	return &l, nil
}

func (r *SQLiteRepository) ListLoansByChild(ctx context.Context, childID int64) ([]core.Loan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, child_id, purchase_request_id, total_cents, installment_count, installment_cents, paid_cents, status, created_at
		 FROM loans WHERE child_id = ? ORDER BY id`, childID)
	if err != nil {
		return nil, storageErr("list loans", err)
	}
	defer rows.Close()

	var out []core.Loan
	for rows.Next() {
		var l core.Loan
		var created string
		if err := rows.Scan(&l.ID, &l.ChildID, &l.PurchaseRequestID, &l.TotalAmount.Cents,
			&l.InstallmentCount, &l.InstallmentAmount.Cents, &l.PaidAmount.Cents,
			(*string)(&l.Status), &created); err != nil {
			return nil, storageErr("scan loan", err)
		}
		l.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetInstallment(ctx context.Context, id int64) (*core.LoanInstallment, error) {
	var inst core.LoanInstallment
	var due string
	var paidDate, paidFrom sql.Null[string]
	err := r.db.QueryRowContext(ctx,
		`SELECT id, loan_id, installment_number, amount_cents, due_date, status, paid_date, paid_from
		 FROM loan_installments WHERE id = ?`, id).
		Scan(&inst.ID, &inst.LoanID, &inst.InstallmentNumber, &inst.Amount.Cents,
			&due, (*string)(&inst.Status), &paidDate, &paidFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get installment", err)
	}
	inst.DueDate, _ = time.Parse(dateLayout, due)
	if paidDate.Valid {
		inst.PaidDate, _ = time.Parse(timeLayout, paidDate.V)
	}
	if paidFrom.Valid {
		inst.PaidFrom = core.PaymentSource(paidFrom.V)
	}
	return &inst, nil
}

func (r *SQLiteRepository) ListInstallments(ctx context.Context, loanID int64) ([]core.LoanInstallment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, loan_id, installment_number, amount_cents, due_date, status, paid_date, paid_from
		 FROM loan_installments WHERE loan_id = ? ORDER BY installment_number`, loanID)
	if err != nil {
		return nil, storageErr("list installments", err)
	}
	defer rows.Close()

	var out []core.LoanInstallment
	for rows.Next() {
		var inst core.LoanInstallment
		var due string
		var paidDate, paidFrom sql.Null[string]
		if err := rows.Scan(&inst.ID, &inst.LoanID, &inst.InstallmentNumber, &inst.Amount.Cents,
			&due, (*string)(&inst.Status), &paidDate, &paidFrom); err != nil {
			return nil, storageErr("scan installment", err)
		}
		inst.DueDate, _ = time.Parse(dateLayout, due)
		if paidDate.Valid {
			inst.PaidDate, _ = time.Parse(timeLayout, paidDate.V)
		}
		if paidFrom.Valid {
			inst.PaidFrom = core.PaymentSource(paidFrom.V)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkInstallmentPaid(ctx context.Context, installmentID int64, paidFrom core.PaymentSource, paidAt time.Time) (*core.Loan, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin pay installment", err)
	}
	defer dbtx.Rollback()

	var loanID, amountCents int64
	err = dbtx.QueryRowContext(ctx,
		`SELECT loan_id, amount_cents FROM loan_installments WHERE id = ?`, installmentID).
		Scan(&loanID, &amountCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("read installment", err)
	}

	// The status guard in the WHERE clause makes a double payment fail
	// even if two callers race past the engine's own check.
	res, err := dbtx.ExecContext(ctx,
		`UPDATE loan_installments SET status = 'paid', paid_date = ?, paid_from = ?
		 WHERE id = ? AND status = 'pending'`,
		paidAt.UTC().Format(timeLayout), string(paidFrom), installmentID)
	if err != nil {
		return nil, storageErr("mark installment paid", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrAlreadyPaid
	}

	_, err = dbtx.ExecContext(ctx,
		`UPDATE loans SET paid_cents = paid_cents + ?,
		   status = CASE WHEN paid_cents + ? >= total_cents THEN 'paid_off' ELSE status END
		 WHERE id = ?`,
		amountCents, amountCents, loanID)
	if err != nil {
		return nil, storageErr("update loan paid amount", err)
	}

	loan, err := scanLoan(dbtx.QueryRowContext(ctx,
		`SELECT id, child_id, purchase_request_id, total_cents, installment_count, installment_cents, paid_cents, status, created_at
		 FROM loans WHERE id = ?`, loanID))
	if err != nil {
		return nil, err
	}

	if err := dbtx.Commit(); err != nil {
		return nil, storageErr("commit pay installment", err)
	}
	return loan, nil
}

func (r *SQLiteRepository) UpdateLoanStatus(ctx context.Context, loanID int64, status core.LoanStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET status = ? WHERE id = ?`, string(status), loanID)
	if err != nil {
		return storageErr("update loan status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Mirror support: transactions are appended with mirrored = 0 and flipped
// once the mirror worker has written them to the family spreadsheet.

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	return scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT id, child_id, kind, amount_cents, description, category, status, approved_by, approved_at, goal_id, created_at
		 FROM transactions WHERE id = ?`, id))
}

func (r *SQLiteRepository) ListUnmirroredTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, child_id, kind, amount_cents, description, category, status, approved_by, approved_at, goal_id, created_at
		 FROM transactions WHERE mirrored = 0 ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("list unmirrored transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *SQLiteRepository) MarkTransactionMirrored(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET mirrored = 1 WHERE id = ?`, id)
	if err != nil {
		return storageErr("mark transaction mirrored", err)
	}
	return nil
}
