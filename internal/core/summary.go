package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TrendPoint is the expense total of one calendar month.
type TrendPoint struct {
	Year  int
	Month int
	Total decimal.Decimal
}

// DashboardStats is the aggregate view of one user and one period.
type DashboardStats struct {
	Period           Period
	TotalIncome      decimal.Decimal
	TotalExpenses    decimal.Decimal
	Balance          decimal.Decimal
	CategoryExpenses map[Category]decimal.Decimal
	MonthlyTrend     []TrendPoint
}

// BudgetCheck is the task handed to the alert worker after an expense is
// written.
type BudgetCheck struct {
	UserID        string
	TransactionID string
	Date          time.Time
	Amount        decimal.Decimal
}

// BudgetAlert is the budget-exceeded signal.
type BudgetAlert struct {
	ID           string
	UserID       string
	Month        int
	Year         int
	Total        decimal.Decimal
	BudgetAmount decimal.Decimal
	CreatedAt    time.Time
}

// Overspend returns how far the total is above the budget.
func (a BudgetAlert) Overspend() decimal.Decimal {
	return a.Total.Sub(a.BudgetAmount)
}

// Summarize computes totals, balance and the per-category expense breakdown
// of transactions already restricted to one user and one period. The trend
// is left empty; it covers a different window and is filled by the caller.
func Summarize(txs []Transaction) DashboardStats {
	stats := DashboardStats{
		TotalIncome:      decimal.Zero,
		TotalExpenses:    decimal.Zero,
		Balance:          decimal.Zero,
		CategoryExpenses: map[Category]decimal.Decimal{},
		MonthlyTrend:     []TrendPoint{},
	}
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			stats.TotalIncome = stats.TotalIncome.Add(tx.Amount)
		case Expense:
			stats.TotalExpenses = stats.TotalExpenses.Add(tx.Amount)
			stats.CategoryExpenses[tx.Category] = stats.CategoryExpenses[tx.Category].Add(tx.Amount)
		}
	}
	for cat, sum := range stats.CategoryExpenses {
		if sum.IsZero() {
			delete(stats.CategoryExpenses, cat)
		}
	}
	stats.Balance = stats.TotalIncome.Sub(stats.TotalExpenses)
	return stats
}

// SumExpenses adds up the expense-type amounts of txs.
func SumExpenses(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == Expense {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// MonthlyTrend groups the expenses of txs that fall inside w by calendar
// month. Months without expenses produce no point; points are returned
// oldest first.
func MonthlyTrend(txs []Transaction, w Window) []TrendPoint {
	type ym struct{ year, month int }
	sums := map[ym]decimal.Decimal{}
	for _, tx := range txs {
		if tx.Type != Expense || !w.Contains(tx.Date) {
			continue
		}
		m, y := MonthYear(tx.Date)
		k := ym{y, m}
		sums[k] = sums[k].Add(tx.Amount)
	}
	points := make([]TrendPoint, 0, len(sums))
	for k, total := range sums {
		points = append(points, TrendPoint{Year: k.year, Month: k.month, Total: total})
	}
	SortTrend(points)
	return points
}

// SortTrend orders points chronologically.
func SortTrend(points []TrendPoint) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Year != points[j].Year {
			return points[i].Year < points[j].Year
		}
		return points[i].Month < points[j].Month
	})
}
