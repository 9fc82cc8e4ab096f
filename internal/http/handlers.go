package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"finsight/internal/core"
)

const defaultBudgetListLimit = 12

// handleGetSummary serves GET /finance/summary/{user_id}. Missing date
// bounds default to the current month so far; refresh=true bypasses the
// caches.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	q := r.URL.Query()
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	summary, err := s.service.GetFinancialSummary(r.Context(), userID, q.Get("start_date"), q.Get("end_date"), refresh)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleUpsertBudget serves POST /finance/budget, replacing any existing
// budget for the same user and month.
func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var b core.Budget
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	saved, err := s.service.UpsertBudget(r.Context(), b)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// handleListBudgets serves GET /finance/budgets/{user_id}, most recent
// month first.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit := defaultBudgetListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	budgets, err := s.service.ListBudgets(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []core.Budget{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"budgets": budgets,
	})
}

// handleBudgetProgress serves GET /finance/progress/{user_id}. An absent
// month parameter means the current month.
func (s *Server) handleBudgetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	month := r.URL.Query().Get("month")

	progress, err := s.service.GetBudgetProgress(r.Context(), userID, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}
