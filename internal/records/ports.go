// Package records declares the storage ports the services depend on. The
// memory, SQLite and Postgres stores all implement Store.
package records

import (
	"context"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// Ports for outbound adapters.
type (
	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) error
		// GetTransaction returns core.ErrNotFound when no record has id.
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// UpdateTransaction replaces every mutable field of the record with
		// tx.ID. The owner column is never written.
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		// ListTransactions returns the records matching f, newest date first.
		ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
		// SumExpenses returns the expense total of owner inside p.
		SumExpenses(ctx context.Context, owner string, p core.Period) (decimal.Decimal, error)
		// MonthlyExpenseTotals groups the expenses of owner inside w by
		// calendar month, oldest first. Months without expenses are absent.
		MonthlyExpenseTotals(ctx context.Context, owner string, w core.Window) ([]core.TrendPoint, error)
	}

	BudgetStore interface {
		// GetBudget returns core.ErrNotFound when owner has no budget for the
		// month.
		GetBudget(ctx context.Context, owner string, month, year int) (core.Budget, error)
		// CreateBudget returns core.ErrConflict when the (owner, month, year)
		// triple already exists.
		CreateBudget(ctx context.Context, b core.Budget) error
		// UpdateBudgetAmount overwrites the amount of an existing budget and
		// returns the stored record, or core.ErrNotFound.
		UpdateBudgetAmount(ctx context.Context, owner string, month, year int, amount decimal.Decimal, at time.Time) (core.Budget, error)
		// ListBudgets returns the most recent budgets of owner, latest period
		// first.
		ListBudgets(ctx context.Context, owner string, limit int) ([]core.Budget, error)
	}

	UserStore interface {
		// CreateUser returns core.ErrConflict for a duplicate email.
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
	}

	// AlertLog keeps the budget-exceeded signals for later inspection.
	AlertLog interface {
		RecordAlert(ctx context.Context, a core.BudgetAlert) error
		ListAlerts(ctx context.Context, owner string, limit int) ([]core.BudgetAlert, error)
		// PurgeAlerts deletes alerts created before cutoff and reports how
		// many were removed.
		PurgeAlerts(ctx context.Context, cutoff time.Time) (int64, error)
	}

	Store interface {
		TransactionStore
		BudgetStore
		UserStore
		AlertLog
		Ping(ctx context.Context) error
		Close() error
	}
)

// HistoryLimit is the number of budgets returned by a history listing.
const HistoryLimit = 12
