package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/records"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAlertListLimit bounds the alert listing when the caller gives no
// limit.
const DefaultAlertListLimit = 20

// BudgetService manages monthly budgets and exposes the alert log.
type BudgetService struct {
	budgets records.BudgetStore
	alerts  records.AlertLog
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
}

func NewBudgetService(budgets records.BudgetStore, alerts records.AlertLog, logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.NewNop()
	}
	return &BudgetService{
		budgets: budgets,
		alerts:  alerts,
		logger:  logger.WithComponent(log.ComponentBudget),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Set stores amount as the budget of owner for month/year. An existing
// budget for the same period is overwritten in place; a concurrent create
// that wins the race is updated instead of duplicated.
func (s *BudgetService) Set(ctx context.Context, owner string, month, year int, amount decimal.Decimal) (core.Budget, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	b := core.Budget{
		ID:        s.newID(),
		Owner:     owner,
		Month:     month,
		Year:      year,
		Amount:    amount.Round(2),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	updated, err := s.budgets.UpdateBudgetAmount(ctx, owner, month, year, b.Amount, now)
	if err == nil {
		s.logSet(ctx, updated, log.OpUpdate)
		return updated, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}

	err = s.budgets.CreateBudget(ctx, b)
	if err == nil {
		s.logSet(ctx, b, log.OpCreate)
		return b, nil
	}
	if !errors.Is(err, core.ErrConflict) {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	// Lost the race to a concurrent create for the same period.
	updated, err = s.budgets.UpdateBudgetAmount(ctx, owner, month, year, b.Amount, now)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget after conflict: %w", err)
	}
	s.logSet(ctx, updated, log.OpUpdate)
	return updated, nil
}

// Current returns the budget of the current month. When none is set the
// returned budget has an empty ID and a zero amount.
func (s *BudgetService) Current(ctx context.Context, owner string) (core.Budget, error) {
	month, year := core.MonthYear(s.now())
	b, err := s.budgets.GetBudget(ctx, owner, month, year)
	if errors.Is(err, core.ErrNotFound) {
		return core.Budget{Owner: owner, Month: month, Year: year, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get current budget: %w", err)
	}
	return b, nil
}

// History lists the latest budgets of owner, most recent period first.
func (s *BudgetService) History(ctx context.Context, owner string) ([]core.Budget, error) {
	list, err := s.budgets.ListBudgets(ctx, owner, records.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return list, nil
}

// Alerts lists the recorded budget-exceeded signals of owner, newest first.
func (s *BudgetService) Alerts(ctx context.Context, owner string, limit int) ([]core.BudgetAlert, error) {
	if limit <= 0 {
		limit = DefaultAlertListLimit
	}
	list, err := s.alerts.ListAlerts(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return list, nil
}

func (s *BudgetService) logSet(ctx context.Context, b core.Budget, op string) {
	s.logger.InfoContext(ctx, "Budget saved",
		log.FieldUserID, b.Owner,
		log.FieldMonth, b.Month,
		log.FieldYear, b.Year,
		log.FieldAmount, b.Amount.String(),
		log.FieldOperation, op)
}
