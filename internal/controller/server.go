// Package controller contains the HTTP surface of the grading dispatcher.
package controller

import (
	"context"
	"net/http"
	"time"

	"gradeplane/internal/controller/handlers"
	"gradeplane/internal/controller/middleware"
)

// Server is the HTTP server for the dispatcher API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, webhookSecret string, metricsHandler http.Handler) *Server {
	secretMW := middleware.WebhookSecret(webhookSecret)

	mux := http.NewServeMux()

	// Webhook intake from the source-hosting platform
	mux.Handle("POST /webhook", secretMW(http.HandlerFunc(h.Webhook)))

	// Staff-triggered re-grading sweeps land on the regression tier
	mux.Handle("POST /regress", secretMW(http.HandlerFunc(h.Regress)))

	// Student-facing APIs
	mux.HandleFunc("POST /provision", h.Provision)
	mux.HandleFunc("GET /status/{id}", h.Status)

	// Operator endpoints
	mux.HandleFunc("GET /queue", h.Queue)
	mux.HandleFunc("GET /healthz", h.Health)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      middleware.RequestID(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
