package handlers

import (
	"encoding/json"
	"net/http"

	"gradeplane/pkg/api"
)

// Provision handles POST /provision. Rejections come back as failure
// payloads with HTTP 200; transport-level errors use error responses.
func (h *Handlers) Provision(w http.ResponseWriter, r *http.Request) {
	var req api.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DelivID == "" || len(req.PersonIDs) == 0 {
		h.httpError(w, "deliv_id and person_ids are required", http.StatusBadRequest)
		return
	}

	payload := h.orchestrator.Provision(r.Context(), req.DelivID, req.PersonIDs)
	h.respondJson(w, http.StatusOK, payload)
}

// Status handles GET /status/{id}.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	personID := r.PathValue("id")
	if personID == "" {
		h.httpError(w, "person id is required", http.StatusBadRequest)
		return
	}

	status, err := h.machine.ComputeStatus(r.Context(), personID)
	if err != nil {
		h.httpError(w, "Unknown person", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, api.Payload{
		Success: &api.StatusPayload{PersonID: personID, Status: string(status)},
	})
}

// Queue handles GET /queue: tier depths for operator visibility.
func (h *Handlers) Queue(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.QueueStatusResponse{
		Tiers: h.dispatcher.TierStatus(),
	})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
