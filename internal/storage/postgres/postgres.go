// Package postgres is the server-grade record store. Amounts are NUMERIC
// columns and travel through the driver as text so no precision is lost.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to url, applies pending migrations and returns the store.
func Open(ctx context.Context, url string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.InfoContext(ctx, "Connected to Postgres", "max_conns", pool.Config().MaxConns)
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const txColumns = `id, user_id, title, amount::text, type, category, occurred_at, notes, created_at`

func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, title, amount, type, category, occurred_at, notes, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
		tx.ID, tx.Owner, tx.Title, tx.Amount.StringFixed(2), string(tx.Type), string(tx.Category),
		tx.Date, tx.Notes, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", mapError(err))
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, mapError(err))
	}
	return tx, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		    SET title = $1, amount = $2::numeric, type = $3, category = $4, occurred_at = $5, notes = $6
		  WHERE id = $7`,
		tx.Title, tx.Amount.StringFixed(2), string(tx.Type), string(tx.Category), tx.Date, tx.Notes, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update transaction %s: %w", tx.ID, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{f.Owner}
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Range != nil {
		where = append(where, "occurred_at BETWEEN "+next(f.Range.Start)+" AND "+next(f.Range.End))
	}
	if f.Category != "" {
		where = append(where, "category = "+next(string(f.Category)))
	}
	if f.Type != "" {
		where = append(where, "type = "+next(string(f.Type)))
	}
	q := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY occurred_at DESC, created_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ` + next(f.Limit)
	}

	rows, err := r.pool.Query(ctx, q, args...)
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

func (r *Repository) SumExpenses(ctx context.Context, owner string, p core.Period) (decimal.Decimal, error) {
	var total string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM transactions
		  WHERE user_id = $1 AND type = 'expense' AND occurred_at BETWEEN $2 AND $3`,
		owner, p.Start, p.End).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses %s: %w", p.Key(), err)
	}
	return parseNumeric(total)
}

func (r *Repository) MonthlyExpenseTotals(ctx context.Context, owner string, w core.Window) ([]core.TrendPoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT EXTRACT(YEAR FROM occurred_at AT TIME ZONE 'UTC')::int AS y,
		        EXTRACT(MONTH FROM occurred_at AT TIME ZONE 'UTC')::int AS m,
		        SUM(amount)::text
		   FROM transactions
		  WHERE user_id = $1 AND type = 'expense' AND occurred_at BETWEEN $2 AND $3
		  GROUP BY y, m
		  ORDER BY y, m`,
		owner, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("monthly expense totals: %w", err)
	}
	defer rows.Close()

	out := make([]core.TrendPoint, 0)
	for rows.Next() {
		var (
			p     core.TrendPoint
			total string
		)
		if err := rows.Scan(&p.Year, &p.Month, &total); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		if p.Total, err = parseNumeric(total); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const budgetColumns = `id, user_id, month, year, amount::text, created_at, updated_at`

func (r *Repository) GetBudget(ctx context.Context, owner string, month, year int) (core.Budget, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1 AND month = $2 AND year = $3`,
		owner, month, year)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %d/%d: %w", month, year, mapError(err))
	}
	return b, nil
}

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO budgets (id, user_id, month, year, amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		b.ID, b.Owner, b.Month, b.Year, b.Amount.StringFixed(2), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create budget %d/%d: %w", b.Month, b.Year, mapError(err))
	}
	return nil
}

func (r *Repository) UpdateBudgetAmount(ctx context.Context, owner string, month, year int, amount decimal.Decimal, at time.Time) (core.Budget, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE budgets SET amount = $1::numeric, updated_at = $2
		  WHERE user_id = $3 AND month = $4 AND year = $5
		  RETURNING `+budgetColumns,
		amount.StringFixed(2), at, owner, month, year)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %d/%d: %w", month, year, mapError(err))
	}
	return b, nil
}

func (r *Repository) ListBudgets(ctx context.Context, owner string, limit int) ([]core.Budget, error) {
	q := `SELECT ` + budgetColumns + ` FROM budgets WHERE user_id = $1 ORDER BY year DESC, month DESC`
	args := []any{owner}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
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

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `email = $1`, email)
}

func (r *Repository) getUser(ctx context.Context, cond, arg string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err))
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *Repository) RecordAlert(ctx context.Context, a core.BudgetAlert) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO budget_alerts (id, user_id, month, year, total, budget_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)`,
		a.ID, a.UserID, a.Month, a.Year, a.Total.StringFixed(2), a.BudgetAmount.StringFixed(2), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record alert: %w", mapError(err))
	}
	return nil
}

func (r *Repository) ListAlerts(ctx context.Context, owner string, limit int) ([]core.BudgetAlert, error) {
	q := `SELECT id, user_id, month, year, total::text, budget_amount::text, created_at
	        FROM budget_alerts WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{owner}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]core.BudgetAlert, 0)
	for rows.Next() {
		var (
			a             core.BudgetAlert
			total, budget string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Month, &a.Year, &total, &budget, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.Total, err = parseNumeric(total); err != nil {
			return nil, err
		}
		if a.BudgetAmount, err = parseNumeric(budget); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) PurgeAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM budget_alerts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx       core.Transaction
		amount   string
		typ, cat string
	)
	if err := row.Scan(&tx.ID, &tx.Owner, &tx.Title, &amount, &typ, &cat, &tx.Date, &tx.Notes, &tx.CreatedAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := parseNumeric(amount)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = d
	tx.Type = core.TransactionType(typ)
	tx.Category = core.Category(cat)
	tx.Date = tx.Date.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func scanBudget(row pgx.Row) (core.Budget, error) {
	var (
		b      core.Budget
		amount string
	)
	if err := row.Scan(&b.ID, &b.Owner, &b.Month, &b.Year, &amount, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return core.Budget{}, err
	}
	d, err := parseNumeric(amount)
	if err != nil {
		return core.Budget{}, err
	}
	b.Amount = d
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func parseNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
