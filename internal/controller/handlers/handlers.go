// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gradeplane/internal/autotest"
	"gradeplane/internal/config"
	"gradeplane/internal/controller/middleware"
	"gradeplane/internal/progression"
	"gradeplane/internal/provision"
	"gradeplane/pkg/api"
)

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	dispatcher   *autotest.Dispatcher
	orchestrator *provision.Orchestrator
	machine      *progression.Machine
	cfg          *config.Config
	logger       *slog.Logger

	// feedback requests are throttled per requester
	feedbackLimiter *middleware.KeyedLimiter
}

// New creates a new Handlers instance with the given dependencies.
func New(d *autotest.Dispatcher, o *provision.Orchestrator, m *progression.Machine,
	cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		dispatcher:      d,
		orchestrator:    o,
		machine:         m,
		cfg:             cfg,
		logger:          logger,
		feedbackLimiter: middleware.NewKeyedLimiter(30*time.Second, 1, 5*time.Minute),
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
