package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository persists records in a single SQLite file. Amounts are
// stored as integer cents and timestamps as unix milliseconds.
type SQLiteRepository struct {
	db            *sql.DB
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway and this avoids
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the file was brought up to.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const txColumns = `id, user_id, title, amount_cents, type, category, occurred_at, notes, created_at`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Owner, tx.Title, core.ToCents(tx.Amount), string(tx.Type), string(tx.Category),
		tx.Date.UnixMilli(), tx.Notes, tx.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create transaction: %w", mapError(err))
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"type", tx.Type,
		"amount_cents", core.ToCents(tx.Amount))
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, mapError(err))
	}
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		    SET title = ?, amount_cents = ?, type = ?, category = ?, occurred_at = ?, notes = ?
		  WHERE id = ?`,
		tx.Title, core.ToCents(tx.Amount), string(tx.Type), string(tx.Category),
		tx.Date.UnixMilli(), tx.Notes, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, mapError(err))
	}
	return requireAffected(res, "update transaction "+tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return requireAffected(res, "delete transaction "+id)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{f.Owner}
	)
	if f.Range != nil {
		where = append(where, "occurred_at BETWEEN ? AND ?")
		args = append(args, f.Range.Start.UnixMilli(), f.Range.End.UnixMilli())
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}

	q := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY occurred_at DESC, created_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) SumExpenses(ctx context.Context, owner string, p core.Period) (decimal.Decimal, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		  WHERE user_id = ? AND type = 'expense' AND occurred_at BETWEEN ? AND ?`,
		owner, p.Start.UnixMilli(), p.End.UnixMilli()).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses %s: %w", p.Key(), err)
	}
	return core.FromCents(cents), nil
}

func (r *SQLiteRepository) MonthlyExpenseTotals(ctx context.Context, owner string, w core.Window) ([]core.TrendPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT CAST(strftime('%Y', occurred_at / 1000, 'unixepoch') AS INTEGER) AS y,
		        CAST(strftime('%m', occurred_at / 1000, 'unixepoch') AS INTEGER) AS m,
		        SUM(amount_cents)
		   FROM transactions
		  WHERE user_id = ? AND type = 'expense' AND occurred_at BETWEEN ? AND ?
		  GROUP BY y, m
		  ORDER BY y, m`,
		owner, w.Start.UnixMilli(), w.End.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("monthly expense totals: %w", err)
	}
	defer rows.Close()

	out := make([]core.TrendPoint, 0)
	for rows.Next() {
		var (
			p     core.TrendPoint
			cents int64
		)
		if err := rows.Scan(&p.Year, &p.Month, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		p.Total = core.FromCents(cents)
		out = append(out, p)
	}
	return out, rows.Err()
}

const budgetColumns = `id, user_id, month, year, amount_cents, created_at, updated_at`

func (r *SQLiteRepository) GetBudget(ctx context.Context, owner string, month, year int) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? AND month = ? AND year = ?`,
		owner, month, year)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %d/%d: %w", month, year, mapError(err))
	}
	return b, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Owner, b.Month, b.Year, core.ToCents(b.Amount), b.CreatedAt.UnixMilli(), b.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create budget %d/%d: %w", b.Month, b.Year, mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) UpdateBudgetAmount(ctx context.Context, owner string, month, year int, amount decimal.Decimal, at time.Time) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE budgets SET amount_cents = ?, updated_at = ?
		  WHERE user_id = ? AND month = ? AND year = ?
		  RETURNING `+budgetColumns,
		core.ToCents(amount), at.UnixMilli(), owner, month, year)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %d/%d: %w", month, year, mapError(err))
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, owner string, limit int) ([]core.Budget, error) {
	q := `SELECT ` + budgetColumns + ` FROM budgets WHERE user_id = ? ORDER BY year DESC, month DESC`
	args := []any{owner}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `email = ?`, email)
}

func (r *SQLiteRepository) getUser(ctx context.Context, cond string, arg string) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err))
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (r *SQLiteRepository) RecordAlert(ctx context.Context, a core.BudgetAlert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (id, user_id, month, year, total_cents, budget_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Month, a.Year, core.ToCents(a.Total), core.ToCents(a.BudgetAmount), a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record alert: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, owner string, limit int) ([]core.BudgetAlert, error) {
	q := `SELECT id, user_id, month, year, total_cents, budget_cents, created_at
	        FROM budget_alerts WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{owner}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]core.BudgetAlert, 0)
	for rows.Next() {
		var (
			a                 core.BudgetAlert
			total, budget, at int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Month, &a.Year, &total, &budget, &at); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Total = core.FromCents(total)
		a.BudgetAmount = core.FromCents(budget)
		a.CreatedAt = fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) PurgeAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budget_alerts WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged budget alerts", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx             core.Transaction
		typ, cat       string
		cents, at, crt int64
	)
	if err := s.Scan(&tx.ID, &tx.Owner, &tx.Title, &cents, &typ, &cat, &at, &tx.Notes, &crt); err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = core.FromCents(cents)
	tx.Type = core.TransactionType(typ)
	tx.Category = core.Category(cat)
	tx.Date = fromMillis(at)
	tx.CreatedAt = fromMillis(crt)
	return tx, nil
}

func scanBudget(s scanner) (core.Budget, error) {
	var (
		b               core.Budget
		cents, crt, upd int64
	)
	if err := s.Scan(&b.ID, &b.Owner, &b.Month, &b.Year, &cents, &crt, &upd); err != nil {
		return core.Budget{}, err
	}
	b.Amount = core.FromCents(cents)
	b.CreatedAt = fromMillis(crt)
	b.UpdatedAt = fromMillis(upd)
	return b, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

// mapError translates driver errors into the core sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", core.ErrConflict, err)
		}
	}
	return err
}
