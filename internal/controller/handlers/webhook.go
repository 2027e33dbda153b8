package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"gradeplane/internal/autotest"
	"gradeplane/internal/logger"
	"gradeplane/pkg/api"

	"github.com/google/uuid"
)

// Webhook handles POST /webhook. The event kind arrives in the
// X-Event-Kind header: push events enqueue grading work, comment events
// are feedback requests that may promote a queued job.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Header.Get("X-Event-Kind") {
	case "push", "":
		h.handlePush(w, r)
	case "comment":
		h.handleFeedback(w, r)
	default:
		h.httpError(w, "Unsupported event kind", http.StatusBadRequest)
	}
}

// Regress handles POST /regress: staff-triggered re-grading runs that
// go through the regression tier instead of standard.
func (h *Handlers) Regress(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.dispatcher.AddToRegressionQueue)
}

func (h *Handlers) handlePush(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.dispatcher.AddToStandardQueue)
}

func (h *Handlers) enqueue(w http.ResponseWriter, r *http.Request, admit func(*autotest.ContainerInput)) {
	ctx := r.Context()

	var event api.PushEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if event.CommitSHA == "" || event.CommitURL == "" || event.DelivID == "" {
		h.httpError(w, "commit_sha, commit_url and deliv_id are required", http.StatusBadRequest)
		return
	}

	deliv, ok := h.cfg.Deliverables[event.DelivID]
	if !ok {
		h.httpError(w, "Unknown deliverable", http.StatusBadRequest)
		return
	}

	if event.Requestor != "" {
		if _, err := h.machine.HandleUnknownUser(ctx, event.Requestor); err != nil {
			logger.FromContext(ctx, h.logger).Error("failed to register commit author",
				"person", event.Requestor, "error", err)
		}
	}

	timestamp := event.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	input := &autotest.ContainerInput{
		ExecutionID: uuid.New(),
		Target: autotest.CommitTarget{
			CommitSHA:   event.CommitSHA,
			CommitURL:   event.CommitURL,
			RepoID:      event.RepoID,
			CloneURL:    event.CloneURL,
			DelivID:     event.DelivID,
			PostbackURL: event.PostbackURL,
			Timestamp:   timestamp,
		},
		Image:          deliv.Image,
		TimeoutSeconds: deliv.Timeout,
	}

	admit(input)
	h.dispatcher.Tick(ctx)

	logger.FromContext(ctx, h.logger).Info("enqueued grading job",
		"commit", event.CommitSHA, "deliv", event.DelivID)

	h.respondJson(w, http.StatusAccepted, map[string]string{
		"execution_id": input.ExecutionID.String(),
	})
}

func (h *Handlers) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CommitURL == "" || req.DelivID == "" {
		h.httpError(w, "commit_url and deliv_id are required", http.StatusBadRequest)
		return
	}

	if req.Requestor != "" && !h.feedbackLimiter.Allow(req.Requestor) {
		w.Header().Set("Retry-After", "30")
		h.httpError(w, "Too many feedback requests", http.StatusTooManyRequests)
		return
	}

	h.dispatcher.PromoteIfNeeded(ctx, req.CommitURL, req.DelivID)
	h.respondJson(w, http.StatusAccepted, nil)
}
