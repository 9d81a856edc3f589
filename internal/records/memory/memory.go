package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

type budgetKey struct {
	owner       string
	month, year int
}

// Store keeps every record in process memory. It is safe for concurrent use
// and loses its contents on restart.
type Store struct {
	mu      sync.Mutex
	txs     map[string]core.Transaction
	budgets map[budgetKey]core.Budget
	users   map[string]core.User
	emails  map[string]string
	alerts  []core.BudgetAlert
}

func New() *Store {
	return &Store{
		txs:     map[string]core.Transaction{},
		budgets: map[budgetKey]core.Budget{},
		users:   map[string]core.User{},
		emails:  map[string]string{},
	}
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; ok {
		return core.ErrConflict
	}
	s.txs[tx.ID] = tx
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[tx.ID]
	if !ok {
		return core.ErrNotFound
	}
	tx.Owner = cur.Owner
	tx.CreatedAt = cur.CreatedAt
	s.txs[tx.ID] = tx
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0)
	for _, tx := range s.txs {
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) SumExpenses(ctx context.Context, owner string, p core.Period) (decimal.Decimal, error) {
	txs, err := s.ListTransactions(ctx, core.PeriodFilter(owner, p))
	if err != nil {
		return decimal.Zero, err
	}
	return core.SumExpenses(txs), nil
}

func (s *Store) MonthlyExpenseTotals(_ context.Context, owner string, w core.Window) ([]core.TrendPoint, error) {
	s.mu.Lock()
	owned := make([]core.Transaction, 0)
	for _, tx := range s.txs {
		if tx.Owner == owner {
			owned = append(owned, tx)
		}
	}
	s.mu.Unlock()
	return core.MonthlyTrend(owned, w), nil
}

func (s *Store) GetBudget(_ context.Context, owner string, month, year int) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[budgetKey{owner, month, year}]
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := budgetKey{b.Owner, b.Month, b.Year}
	if _, ok := s.budgets[k]; ok {
		return core.ErrConflict
	}
	s.budgets[k] = b
	return nil
}

func (s *Store) UpdateBudgetAmount(_ context.Context, owner string, month, year int, amount decimal.Decimal, at time.Time) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := budgetKey{owner, month, year}
	b, ok := s.budgets[k]
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	b.Amount = amount
	b.UpdatedAt = at
	s.budgets[k] = b
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, owner string, limit int) ([]core.Budget, error) {
	s.mu.Lock()
	out := make([]core.Budget, 0)
	for k, b := range s.budgets {
		if k.owner == owner {
			out = append(out, b)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[u.Email]; ok {
		return core.ErrConflict
	}
	if _, ok := s.users[u.ID]; ok {
		return core.ErrConflict
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) RecordAlert(_ context.Context, a core.BudgetAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

// ListAlerts returns the alerts of owner, newest first.
func (s *Store) ListAlerts(_ context.Context, owner string, limit int) ([]core.BudgetAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BudgetAlert, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].UserID != owner {
			continue
		}
		out = append(out, s.alerts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) PurgeAlerts(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	var removed int64
	for _, a := range s.alerts {
		if a.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
