package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeError maps the error taxonomy onto HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeErrorMessage(w, status, code, "internal error")
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeErrorMessage(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrOwnership):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrStateConflict):
		return http.StatusConflict, "state_conflict"
	case errors.Is(err, models.ErrLockAcquisition):
		return http.StatusServiceUnavailable, "system_busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
