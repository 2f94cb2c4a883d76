package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	appErr "github.com/lnkday/goal-service/internal/errors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case appErr.IsNotFound(err):
		return http.StatusNotFound
	case appErr.IsInvalid(err):
		return http.StatusBadRequest
	case appErr.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", slog.Any("error", err))
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	logger.Warn(op+" rejected", slog.Int("status", status), slog.Any("error", err))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return appErr.NewInvalid("invalid request body: %v", err)
	}
	return nil
}
