package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gradeplane/internal/autotest"
	"gradeplane/internal/autotest/runtime"
	"gradeplane/internal/config"
	"gradeplane/internal/github"
	"gradeplane/internal/progression"
	"gradeplane/internal/provision"
	"gradeplane/internal/store"
	"gradeplane/internal/store/memory"
	"gradeplane/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandlers(t *testing.T) (*Handlers, *memory.Store) {
	t.Helper()
	db := memory.New()

	cfg := &config.Config{
		ProjectPrefix:      "secap_",
		NumSlotsExpress:    1,
		NumSlotsStandard:   2,
		NumSlotsRegression: 1,
		PassThreshold:      60,
		Deliverables: map[string]config.Deliverable{
			"d0": {Image: "secap/grader-d0", Timeout: 300},
			"d1": {Image: "secap/grader-d1", Timeout: 300},
		},
	}

	dispatcher := autotest.NewDispatcher(autotest.DispatcherConfig{
		NumSlotsExpress:    cfg.NumSlotsExpress,
		NumSlotsStandard:   cfg.NumSlotsStandard,
		NumSlotsRegression: cfg.NumSlotsRegression,
		WorkRoot:           t.TempDir(),
	}, runtime.NewExecRuntime(""), autotest.GitFetcher{},
		autotest.StoreResultSink{Results: db},
		autotest.StoreGradeSink{Grades: db},
		testLogger())

	machine := progression.NewMachine(db, cfg.PassThreshold, testLogger())
	orchestrator := provision.NewOrchestrator(db,
		github.Static{URLBuilder: github.URLBuilder{Host: "github.test", Org: "secapstone"}},
		machine, provision.Config{ProjectPrefix: cfg.ProjectPrefix}, testLogger())

	return New(dispatcher, orchestrator, machine, cfg, testLogger()), db
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWebhook_PushEnqueuesAndRunsMockGrading(t *testing.T) {
	h, db := newTestHandlers(t)

	event := api.PushEvent{
		CommitSHA:   "abc123",
		CommitURL:   "https://github.test/secapstone/secap_alice/commits/abc123",
		RepoID:      "secap_alice",
		DelivID:     "d0",
		PostbackURL: autotest.PostbackEmpty,
		Requestor:   "alice",
	}

	rec := postJSON(t, h.Webhook, "/webhook", event, map[string]string{"X-Event-Kind": "push"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	// The sentinel postback selects the mock job, which completes
	// without a container; its result lands in the store.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := db.GetResultRecord(context.Background(), event.CommitURL, "d0"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the grading result")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// First sighting of the author created a person record.
	person, err := db.GetPerson(context.Background(), "alice")
	if err != nil {
		t.Fatal("commit author not registered on first sighting")
	}
	if person.SdmmStatus != string(progression.StatusD0Pre) {
		t.Errorf("new person status = %s, want D0PRE", person.SdmmStatus)
	}
}

func TestWebhook_RejectsUnknownDeliverable(t *testing.T) {
	h, _ := newTestHandlers(t)

	event := api.PushEvent{
		CommitSHA: "abc123",
		CommitURL: "https://github.test/c/abc123",
		DelivID:   "d9",
	}
	rec := postJSON(t, h.Webhook, "/webhook", event, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_FeedbackIsRateLimitedPerRequester(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := api.FeedbackRequest{
		CommitURL: "https://github.test/c/abc123",
		DelivID:   "d1",
		Requestor: "alice",
	}
	headers := map[string]string{"X-Event-Kind": "comment"}

	if rec := postJSON(t, h.Webhook, "/webhook", req, headers); rec.Code != http.StatusAccepted {
		t.Fatalf("first feedback request: status = %d, want 202", rec.Code)
	}
	if rec := postJSON(t, h.Webhook, "/webhook", req, headers); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second feedback request: status = %d, want 429", rec.Code)
	}

	// A different requester is not throttled by alice's budget.
	req.Requestor = "bob"
	if rec := postJSON(t, h.Webhook, "/webhook", req, headers); rec.Code != http.StatusAccepted {
		t.Errorf("other requester: status = %d, want 202", rec.Code)
	}
}

func TestProvisionHandler_EndToEnd(t *testing.T) {
	h, db := newTestHandlers(t)

	if err := db.SavePerson(context.Background(), &store.Person{
		ID: "alice", GithubID: "alice", Kind: store.PersonKindStudent,
		SdmmStatus: string(progression.StatusD0Pre),
	}); err != nil {
		t.Fatalf("failed to seed person: %v", err)
	}

	rec := postJSON(t, h.Provision, "/provision",
		api.ProvisionRequest{DelivID: "d0", PersonIDs: []string{"alice"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload api.Payload
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Failure != nil {
		t.Fatalf("provisioning rejected: %s", payload.Failure.Message)
	}
	if payload.Success.Status != string(progression.StatusD0) {
		t.Errorf("status = %s, want D0", payload.Success.Status)
	}
}

func TestQueueHandler_ReportsTiers(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	rec := httptest.NewRecorder()
	h.Queue(rec, req)

	var resp api.QueueStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Tiers) != 3 {
		t.Fatalf("got %d tiers, want 3", len(resp.Tiers))
	}
	capacities := map[string]int{}
	for _, tier := range resp.Tiers {
		capacities[tier.Name] = tier.Capacity
	}
	if capacities["express"] != 1 || capacities["standard"] != 2 || capacities["regression"] != 1 {
		t.Errorf("tier capacities = %v, want express=1 standard=2 regression=1", capacities)
	}
}
