package http

import (
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Amounts go over the wire as JSON numbers with exactly two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type (
	transactionResponse struct {
		ID        string      `json:"id"`
		User      string      `json:"user"`
		Title     string      `json:"title"`
		Amount    json.Number `json:"amount"`
		Type      string      `json:"type"`
		Category  string      `json:"category"`
		Date      time.Time   `json:"date"`
		Notes     string      `json:"notes,omitempty"`
		CreatedAt time.Time   `json:"createdAt"`
	}

	monthlyDataResponse struct {
		Month int         `json:"month"`
		Year  int         `json:"year"`
		Total json.Number `json:"total"`
	}

	dashboardResponse struct {
		TotalIncome      json.Number            `json:"totalIncome"`
		TotalExpenses    json.Number            `json:"totalExpenses"`
		Balance          json.Number            `json:"balance"`
		CategoryExpenses map[string]json.Number `json:"categoryExpenses"`
		MonthlyData      []monthlyDataResponse  `json:"monthlyData"`
	}

	budgetResponse struct {
		ID        string      `json:"id,omitempty"`
		User      string      `json:"user,omitempty"`
		Month     int         `json:"month"`
		Year      int         `json:"year"`
		Amount    json.Number `json:"amount"`
		CreatedAt *time.Time  `json:"createdAt,omitempty"`
		UpdatedAt *time.Time  `json:"updatedAt,omitempty"`
	}

	alertResponse struct {
		ID        string      `json:"id"`
		User      string      `json:"user"`
		Month     int         `json:"month"`
		Year      int         `json:"year"`
		Total     json.Number `json:"total"`
		Budget    json.Number `json:"budget"`
		Overspend json.Number `json:"overspend"`
		CreatedAt time.Time   `json:"createdAt"`
	}

	userResponse struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
	}

	sessionResponse struct {
		userResponse
		Token string `json:"token"`
	}
)

func newTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:        tx.ID,
		User:      tx.Owner,
		Title:     tx.Title,
		Amount:    money(tx.Amount),
		Type:      string(tx.Type),
		Category:  string(tx.Category),
		Date:      tx.Date.UTC(),
		Notes:     tx.Notes,
		CreatedAt: tx.CreatedAt.UTC(),
	}
}

func newTransactionList(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionResponse(tx))
	}
	return out
}

func newDashboardResponse(stats core.DashboardStats) dashboardResponse {
	resp := dashboardResponse{
		TotalIncome:      money(stats.TotalIncome),
		TotalExpenses:    money(stats.TotalExpenses),
		Balance:          money(stats.Balance),
		CategoryExpenses: make(map[string]json.Number, len(stats.CategoryExpenses)),
		MonthlyData:      make([]monthlyDataResponse, 0, len(stats.MonthlyTrend)),
	}
	for cat, total := range stats.CategoryExpenses {
		resp.CategoryExpenses[string(cat)] = money(total)
	}
	for _, p := range stats.MonthlyTrend {
		resp.MonthlyData = append(resp.MonthlyData, monthlyDataResponse{
			Month: p.Month,
			Year:  p.Year,
			Total: money(p.Total),
		})
	}
	return resp
}

func newBudgetResponse(b core.Budget) budgetResponse {
	resp := budgetResponse{
		ID:     b.ID,
		User:   b.Owner,
		Month:  b.Month,
		Year:   b.Year,
		Amount: money(b.Amount),
	}
	if !b.CreatedAt.IsZero() {
		t := b.CreatedAt.UTC()
		resp.CreatedAt = &t
	}
	if !b.UpdatedAt.IsZero() {
		t := b.UpdatedAt.UTC()
		resp.UpdatedAt = &t
	}
	return resp
}

func newBudgetList(list []core.Budget) []budgetResponse {
	out := make([]budgetResponse, 0, len(list))
	for _, b := range list {
		out = append(out, newBudgetResponse(b))
	}
	return out
}

func newAlertList(list []core.BudgetAlert) []alertResponse {
	out := make([]alertResponse, 0, len(list))
	for _, a := range list {
		out = append(out, alertResponse{
			ID:        a.ID,
			User:      a.UserID,
			Month:     a.Month,
			Year:      a.Year,
			Total:     money(a.Total),
			Budget:    money(a.BudgetAmount),
			Overspend: money(a.Overspend()),
			CreatedAt: a.CreatedAt.UTC(),
		})
	}
	return out
}

func newUserResponse(u core.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt.UTC()}
}

func newSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{userResponse: newUserResponse(s.User), Token: s.Token}
}
