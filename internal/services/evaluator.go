package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type (
	// AlertSink receives budget-exceeded signals.
	AlertSink interface {
		Emit(ctx context.Context, alert core.BudgetAlert) error
	}

	budgetLookup interface {
		GetBudget(ctx context.Context, owner string, month, year int) (core.Budget, error)
	}

	expenseSummer interface {
		SumExpenses(ctx context.Context, owner string, p core.Period) (decimal.Decimal, error)
	}
)

// BudgetEvaluator decides whether the month of a recorded expense is over
// budget.
type BudgetEvaluator struct {
	budgets  budgetLookup
	expenses expenseSummer
	sink     AlertSink
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

func NewBudgetEvaluator(budgets budgetLookup, expenses expenseSummer, sink AlertSink, logger *log.Logger) *BudgetEvaluator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &BudgetEvaluator{
		budgets:  budgets,
		expenses: expenses,
		sink:     sink,
		logger:   logger.WithComponent(log.ComponentBudget),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Evaluate recomputes the full expense total of the check's month and emits
// an alert when it is strictly greater than the budget. A month without a
// budget yields (nil, nil). Sink failures are logged and do not fail the
// evaluation, so a redelivered check never records the alert twice.
func (e *BudgetEvaluator) Evaluate(ctx context.Context, check core.BudgetCheck) (*core.BudgetAlert, error) {
	month, year := core.MonthYear(check.Date)

	budget, err := e.budgets.GetBudget(ctx, check.UserID, month, year)
	if errors.Is(err, core.ErrNotFound) {
		e.logger.DebugContext(ctx, "No budget for period",
			log.FieldUserID, check.UserID,
			log.FieldMonth, month,
			log.FieldYear, year)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup budget: %w", err)
	}

	total, err := e.expenses.SumExpenses(ctx, check.UserID, core.NewPeriod(month, year))
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}
	if !total.GreaterThan(budget.Amount) {
		return nil, nil
	}

	alert := core.BudgetAlert{
		ID:           e.newID(),
		UserID:       check.UserID,
		Month:        month,
		Year:         year,
		Total:        total,
		BudgetAmount: budget.Amount,
		CreatedAt:    e.now().UTC().Truncate(time.Millisecond),
	}
	if e.sink != nil {
		if err := e.sink.Emit(ctx, alert); err != nil {
			e.logger.ErrorContext(ctx, "Alert delivery incomplete",
				log.FieldError, err,
				log.FieldUserID, alert.UserID,
				log.FieldTransactionID, check.TransactionID,
				log.FieldMonth, month,
				log.FieldYear, year)
		}
	}
	return &alert, nil
}
