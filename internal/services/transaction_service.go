package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/records"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AlertDispatcher hands a budget check to background work. Implementations
// must not run the evaluation on the caller's stack.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, check core.BudgetCheck) error
}

// TransactionService orchestrates transaction writes, listings and the
// dashboard aggregate.
type TransactionService struct {
	store      records.TransactionStore
	dispatcher AlertDispatcher
	dashboards *cache.LRUCache[core.DashboardStats]
	flights    singleflight.Group
	logger     *log.Logger
	events     *log.StructuredLogger
	now        func() time.Time
	newID      func() string
}

type TransactionOption func(*TransactionService)

// WithDashboardCache enables per-user dashboard caching. Entries of a user
// are dropped on every write by that user.
func WithDashboardCache(c *cache.LRUCache[core.DashboardStats]) TransactionOption {
	return func(s *TransactionService) { s.dashboards = c }
}

func WithTransactionLogger(l *log.Logger) TransactionOption {
	return func(s *TransactionService) { s.logger = l }
}

func WithTransactionClock(now func() time.Time) TransactionOption {
	return func(s *TransactionService) { s.now = now }
}

func NewTransactionService(store records.TransactionStore, dispatcher AlertDispatcher, opts ...TransactionOption) *TransactionService {
	s := &TransactionService{
		store:      store,
		dispatcher: dispatcher,
		logger:     log.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentTransaction)
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// Create stores a new transaction for owner. A missing date defaults to the
// creation time. Expenses are handed to the budget check afterwards; that
// hand-off never fails the write.
func (s *TransactionService) Create(ctx context.Context, owner string, in core.Transaction) (core.Transaction, error) {
	now := s.now().UTC()
	tx := in
	tx.ID = s.newID()
	tx.Owner = owner
	tx.CreatedAt = now.Truncate(time.Millisecond)
	if tx.Date.IsZero() {
		tx.Date = now
	}
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.invalidate(owner)
	s.events.LogTransactionWritten(ctx, log.OpCreate, owner, tx.ID, string(tx.Type), string(tx.Category), tx.Amount.String())

	s.checkBudget(ctx, tx)
	return tx, nil
}

// Update applies patch to the transaction id. Only the owner may edit it.
func (s *TransactionService) Update(ctx context.Context, owner, id string, patch core.TransactionPatch) (core.Transaction, error) {
	cur, err := s.owned(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := patch.Apply(cur)
	tx.ID = cur.ID
	tx.Owner = cur.Owner
	tx.CreatedAt = cur.CreatedAt
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.invalidate(owner)
	s.events.LogTransactionWritten(ctx, log.OpUpdate, owner, tx.ID, string(tx.Type), string(tx.Category), tx.Amount.String())

	s.checkBudget(ctx, tx)
	return tx, nil
}

// Delete removes the transaction id. Only the owner may delete it.
func (s *TransactionService) Delete(ctx context.Context, owner, id string) error {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.invalidate(owner)
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldUserID, owner,
		log.FieldTransactionID, id,
		log.FieldOperation, log.OpDelete)
	return nil
}

// List returns the transactions of owner matching c, newest first.
func (s *TransactionService) List(ctx context.Context, owner string, c core.FilterCriteria) ([]core.Transaction, error) {
	if c.Category != "" && !c.Category.Valid() {
		return nil, core.ErrInvalidCategory
	}
	if c.Type != "" && !c.Type.Valid() {
		return nil, core.ErrInvalidType
	}
	txs, err := s.store.ListTransactions(ctx, core.NewTransactionFilter(owner, c))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Dashboard computes the aggregate view of one month for owner. A nil month
// or year defaults to the current one.
func (s *TransactionService) Dashboard(ctx context.Context, owner string, month, year *int) (core.DashboardStats, error) {
	now := s.now().UTC()
	if month != nil && (*month < 1 || *month > 12) {
		return core.DashboardStats{}, core.ErrInvalidMonth
	}
	if year != nil && *year < 1 {
		return core.DashboardStats{}, core.ErrInvalidYear
	}
	period := core.ResolvePeriod(month, year, now)
	window := core.TrendWindow(now)
	key := owner + "|" + period.Key() + "|" + core.PeriodOf(now).Key()

	if s.dashboards != nil {
		if stats, ok := s.dashboards.Get(key); ok {
			return stats, nil
		}
	}

	// The flight is shared with other callers of the same key and must not
	// end when the first caller goes away.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.flights.Do(key, func() (any, error) {
		return s.computeDashboard(flightCtx, owner, period, window)
	})
	if err != nil {
		return core.DashboardStats{}, err
	}
	stats := v.(core.DashboardStats)
	if s.dashboards != nil {
		s.dashboards.Set(key, stats)
	}
	return stats, nil
}

func (s *TransactionService) computeDashboard(ctx context.Context, owner string, period core.Period, window core.Window) (core.DashboardStats, error) {
	var (
		stats core.DashboardStats
		trend []core.TrendPoint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.store.ListTransactions(gctx, core.PeriodFilter(owner, period))
		if err != nil {
			return fmt.Errorf("load period %s: %w", period.Key(), err)
		}
		stats = core.Summarize(txs)
		return nil
	})
	g.Go(func() error {
		points, err := s.store.MonthlyExpenseTotals(gctx, owner, window)
		if err != nil {
			return fmt.Errorf("load monthly trend: %w", err)
		}
		trend = points
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Dashboard aggregation failed",
			log.FieldUserID, owner,
			log.FieldMonth, period.Month,
			log.FieldYear, period.Year,
			log.FieldError, err)
		return core.DashboardStats{}, err
	}

	stats.Period = period
	stats.MonthlyTrend = trend
	if stats.MonthlyTrend == nil {
		stats.MonthlyTrend = []core.TrendPoint{}
	}
	return stats, nil
}

func (s *TransactionService) owned(ctx context.Context, owner, id string) (core.Transaction, error) {
	cur, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if cur.Owner != owner {
		s.logger.WarnContext(ctx, "Ownership check failed",
			log.FieldUserID, owner,
			log.FieldTransactionID, id)
		return core.Transaction{}, core.ErrForbidden
	}
	return cur, nil
}

func (s *TransactionService) checkBudget(ctx context.Context, tx core.Transaction) {
	if !tx.IsExpense() || s.dispatcher == nil {
		return
	}
	check := core.BudgetCheck{
		UserID:        tx.Owner,
		TransactionID: tx.ID,
		Date:          tx.Date,
		Amount:        tx.Amount,
	}
	if err := s.dispatcher.Dispatch(ctx, check); err != nil {
		s.logger.ErrorContext(ctx, "Failed to dispatch budget check",
			log.FieldUserID, tx.Owner,
			log.FieldTransactionID, tx.ID,
			log.FieldError, err)
	}
}

func (s *TransactionService) invalidate(owner string) {
	if s.dashboards == nil {
		return
	}
	s.dashboards.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, owner+"|")
	})
}
