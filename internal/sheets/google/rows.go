package google

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

const lastColumn = "G"

func headerRow() []any {
	return []any{"Created", "Alert", "User", "Period", "Total", "Budget", "Overspend"}
}

// alertRow renders a as the values of one sheet row. Amounts are fixed
// two-decimal strings.
func alertRow(a core.BudgetAlert) []any {
	return []any{
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.ID,
		a.UserID,
		fmt.Sprintf("%04d-%02d", a.Year, a.Month),
		a.Total.StringFixed(2),
		a.BudgetAmount.StringFixed(2),
		a.Overspend().StringFixed(2),
	}
}
