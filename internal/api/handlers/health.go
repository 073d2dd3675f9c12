package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Check reports an unhealthy dependency
type Check func() error

// HealthHandler handles health check requests
type HealthHandler struct {
	checks map[string]Check
	logger *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks map[string]Check, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// ServeHTTP answers 200 when every check passes and 503 otherwise
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]string{
		"status": "healthy",
	}
	code := http.StatusOK

	for name, check := range h.checks {
		if err := check(); err != nil {
			h.logger.WithError(err).WithField("check", name).Warn("Health check failed")
			response[name] = err.Error()
			response["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
