package http

import (
	"net/http"

	"fintrack/internal/log"
	"fintrack/internal/services"
)

// handleCurrentBudget handles GET /api/budget/current. A month without a
// budget answers with a zero amount.
func (s *Server) handleCurrentBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Budgets.Current(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetResponse(b))
}

// handleSetBudget handles POST /api/budget. Month and year default to the
// current period.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	if req.Amount == nil || !req.Amount.set {
		writeError(w, r, log.OpUpdate, errNoAmount)
		return
	}
	month, year := s.currentPeriod()
	if req.Month != nil && *req.Month != 0 {
		month = *req.Month
	}
	if req.Year != nil && *req.Year != 0 {
		year = *req.Year
	}

	b, err := s.deps.Budgets.Set(r.Context(), userID(r), month, year, req.Amount.Value)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBudgetResponse(b))
}

// handleBudgetHistory handles GET /api/budget/history
func (s *Server) handleBudgetHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Budgets.History(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetList(list))
}

// handleBudgetAlerts handles GET /api/budget/alerts
func (s *Server) handleBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query(), services.DefaultAlertListLimit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	list, err := s.deps.Budgets.Alerts(r.Context(), userID(r), limit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, newAlertList(list))
}
