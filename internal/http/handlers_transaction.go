package http

import (
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"

	"github.com/gorilla/mux"
)

// handleListTransactions handles GET /api/transactions
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	criteria, err := ParseFilterCriteria(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	txs, err := s.deps.Transactions.List(r.Context(), userID(r), criteria)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionList(txs))
}

// handleCreateTransaction handles POST /api/transactions
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in, err := req.toTransaction()
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	tx, err := s.deps.Transactions.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTransactionResponse(tx))
}

// handleUpdateTransaction handles PUT /api/transactions/{id}
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	tx, err := s.deps.Transactions.Update(r.Context(), userID(r), id, patch)
	if errors.Is(err, core.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, msgTxNotFound)
		return
	}
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(tx))
}

// handleDeleteTransaction handles DELETE /api/transactions/{id}
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := s.deps.Transactions.Delete(r.Context(), userID(r), id)
	if errors.Is(err, core.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, msgTxNotFound)
		return
	}
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	writeMessage(w, http.StatusOK, msgTxRemoved)
}

// handleDashboard handles GET /api/transactions/dashboard/stats
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	month, year, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	stats, err := s.deps.Transactions.Dashboard(r.Context(), userID(r), month, year)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newDashboardResponse(stats))
}
