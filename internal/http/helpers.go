package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"finsight/internal/core"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}

// writeServiceError maps service errors onto HTTP statuses. Validation
// failures are the caller's fault, missing data is 404, and an
// auth-required connector failure asks the client to reconnect the bank.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isValidationError(err):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, core.ErrBudgetNotFound):
		writeError(w, r, http.StatusNotFound, "budget_not_found", err.Error())
	case errors.Is(err, core.ErrNoDataAvailable), errors.Is(err, core.ErrNoInstitutions):
		writeError(w, r, http.StatusNotFound, "no_data_available", err.Error())
	case core.AuthRequired(err):
		writeError(w, r, http.StatusConflict, "reconnect_required", "a connected institution requires re-authentication")
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyUserID,
		core.ErrInvalidDate,
		core.ErrInvalidMonth,
		core.ErrInvalidDateRange,
		core.ErrEmptyCategory,
		core.ErrInvalidBudgetAmount,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
