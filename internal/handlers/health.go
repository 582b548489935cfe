package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/umar/staychat/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the domain error kinds onto HTTP statuses. Anything
// unrecognised is logged and reported as an internal error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, "not a participant of this room")
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	default:
		slog.Error("failed to "+op, "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type ConnectionCounter interface {
	ConnectionCount() int
}

func Health(conns ConnectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "healthy",
			"service":     "chat",
			"connections": conns.ConnectionCount(),
		})
	}
}
