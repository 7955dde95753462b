// Package health serves the readiness endpoint shared by both binaries.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler reports readiness of the service dependencies.
type Handler struct {
	checks map[string]Pinger
}

// NewHandler creates a readiness handler over the named checks.
func NewHandler(checks map[string]Pinger) *Handler {
	return &Handler{checks: checks}
}

// Register registers the readiness route. Liveness is served by the Heartbeat middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ready", h.Ready)
}

// Ready pings every dependency and returns 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	result := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			slog.Warn("Readiness check failed", "check", name, "error", err)
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Debug("failed to encode readiness response", "error", err)
	}
}
