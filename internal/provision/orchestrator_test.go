package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"gradeplane/internal/github"
	"gradeplane/internal/progression"
	"gradeplane/internal/store"
	"gradeplane/internal/store/memory"
	"gradeplane/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyAdapter fails remote provisioning on demand.
type flakyAdapter struct {
	github.URLBuilder
	fail    bool
	failErr error
}

func (f *flakyAdapter) ProvisionRepository(ctx context.Context, name string, teams []*store.Team, importURL, webhookURL string) (bool, error) {
	if f.failErr != nil {
		return false, f.failErr
	}
	return !f.fail, nil
}

func newTestOrchestrator(t *testing.T, gh github.Adapter) (*Orchestrator, *memory.Store) {
	t.Helper()
	db := memory.New()
	machine := progression.NewMachine(db, 60, testLogger())
	if gh == nil {
		gh = github.Static{URLBuilder: github.URLBuilder{Host: "github.test", Org: "secapstone"}}
	}
	o := NewOrchestrator(db, gh, machine, Config{
		ProjectPrefix: "secap_",
		ImportURL:     "https://github.test/secapstone/bootstrap",
		WebhookURL:    "http://localhost:6161/webhook",
	}, testLogger())
	return o, db
}

func register(t *testing.T, db *memory.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := db.SavePerson(context.Background(), &store.Person{
			ID: id, GithubID: id, Kind: store.PersonKindStudent, SdmmStatus: string(progression.StatusD0Pre),
		}); err != nil {
			t.Fatalf("failed to register %s: %v", id, err)
		}
	}
}

func mustSucceed(t *testing.T, payload api.Payload) *api.StatusPayload {
	t.Helper()
	if payload.Failure != nil {
		t.Fatalf("unexpected failure: %s", payload.Failure.Message)
	}
	if payload.Success == nil {
		t.Fatal("payload carries neither success nor failure")
	}
	return payload.Success
}

func mustFail(t *testing.T, payload api.Payload) *api.Failure {
	t.Helper()
	if payload.Failure == nil {
		t.Fatalf("expected a failure payload, got %+v", payload.Success)
	}
	if payload.Failure.ShouldLogout {
		t.Error("provisioning rejections should not force logout")
	}
	return payload.Failure
}

// provisionD0 runs the d0 happy path for alice and asserts the S1 facts.
func TestProvisionD0_HappyPath(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "alice")

	success := mustSucceed(t, o.Provision(ctx, "d0", []string{"alice"}))
	if success.Status != string(progression.StatusD0) {
		t.Errorf("status = %s, want D0", success.Status)
	}

	person, _ := db.GetPerson(ctx, "alice")
	if person.SdmmStatus != string(progression.StatusD0) {
		t.Errorf("cached status = %s, want D0", person.SdmmStatus)
	}

	repo, err := db.GetRepository(ctx, "secap_alice")
	if err != nil {
		t.Fatal("repository secap_alice not created")
	}
	if !repo.D0Enabled || repo.D1Enabled {
		t.Errorf("repo flags d0=%v d1=%v, want d0 only", repo.D0Enabled, repo.D1Enabled)
	}
	if repo.URL == "" {
		t.Error("repository URL not persisted after remote provisioning")
	}

	grade, err := db.GetGrade(ctx, "secap_alice", "d0")
	if err != nil {
		t.Fatal("d0 placeholder grade not created")
	}
	if !grade.IsPlaceholder() {
		t.Errorf("placeholder score = %v, want %v", grade.Score, store.PlaceholderScore)
	}
}

func TestProvisionD0_RejectsRepeatAndUnknown(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "alice")

	mustSucceed(t, o.Provision(ctx, "d0", []string{"alice"}))
	mustFail(t, o.Provision(ctx, "d0", []string{"alice"}))

	failure := mustFail(t, o.Provision(ctx, "d0", []string{"ghost"}))
	if !strings.Contains(failure.Message, "log in") {
		t.Errorf("unexpected message for unknown person: %s", failure.Message)
	}
}

func TestProvisionD0_RollsBackOnRemoteFailure(t *testing.T) {
	gh := &flakyAdapter{URLBuilder: github.URLBuilder{Host: "github.test", Org: "secapstone"}, fail: true}
	o, db := newTestOrchestrator(t, gh)
	ctx := context.Background()
	register(t, db, "alice")

	failure := mustFail(t, o.Provision(ctx, "d0", []string{"alice"}))
	if !strings.Contains(failure.Message, "course staff") {
		t.Errorf("remote failure should map to the generic message, got: %s", failure.Message)
	}

	if _, err := db.GetRepository(ctx, "secap_alice"); !errors.Is(err, store.ErrNotFound) {
		t.Error("repository not rolled back after remote failure")
	}
	if _, err := db.GetTeam(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Error("team not rolled back after remote failure")
	}

	// A later retry succeeds cleanly.
	gh.fail = false
	mustSucceed(t, o.Provision(ctx, "d0", []string{"alice"}))
}

func TestProvisionD0_ExistingTeamIsABugSignal(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "alice")

	// Leftover team without a repo: consistency error, no rollback.
	db.SaveTeam(ctx, &store.Team{ID: "alice", Members: []string{"alice"}})
	mustFail(t, o.Provision(ctx, "d0", []string{"alice"}))
	if _, err := db.GetTeam(ctx, "alice"); err != nil {
		t.Error("consistency failure must not delete pre-existing state")
	}
}

// S2: the individual d0 -> d1 upgrade on the same repository.
func TestProvisionD1_IndividualUpgrade(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "alice")

	mustSucceed(t, o.Provision(ctx, "d0", []string{"alice"}))
	db.SaveGrade(ctx, &store.Grade{PersonID: "alice", DelivID: "d0", Score: 72})

	success := mustSucceed(t, o.Provision(ctx, "d1", []string{"alice"}))
	if success.Status != string(progression.StatusD1) {
		t.Errorf("status = %s, want D1", success.Status)
	}

	repo, _ := db.GetRepository(ctx, "secap_alice")
	if !repo.D1Enabled {
		t.Error("d1 not enabled on the existing repository")
	}

	team, _ := db.GetTeam(ctx, "alice")
	if !team.OnD1 || !team.OnD2 || !team.OnD3 {
		t.Errorf("team flags d1=%v d2=%v d3=%v, want all true", team.OnD1, team.OnD2, team.OnD3)
	}

	for _, deliv := range []string{"d1", "d2", "d3"} {
		grade, err := db.GetGrade(ctx, "secap_alice", deliv)
		if err != nil {
			t.Fatalf("%s placeholder grade not created", deliv)
		}
		if !grade.IsPlaceholder() {
			t.Errorf("%s placeholder score = %v", deliv, grade.Score)
		}
	}

	// A second upgrade attempt is rejected: at most one d1 repo per student.
	failure := mustFail(t, o.Provision(ctx, "d1", []string{"alice"}))
	if !strings.Contains(failure.Message, "already") {
		t.Errorf("unexpected message: %s", failure.Message)
	}
}

// S3: a pair where one member is below the threshold is rejected.
func TestProvisionD1_PairRejectedBelowThreshold(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "bob", "carol")

	mustSucceed(t, o.Provision(ctx, "d0", []string{"bob"}))
	mustSucceed(t, o.Provision(ctx, "d0", []string{"carol"}))
	db.SaveGrade(ctx, &store.Grade{PersonID: "bob", DelivID: "d0", Score: 45})
	db.SaveGrade(ctx, &store.Grade{PersonID: "carol", DelivID: "d0", Score: 80})

	failure := mustFail(t, o.Provision(ctx, "d1", []string{"bob", "carol"}))
	if !strings.HasPrefix(failure.Message, "All teammates must have achieved a score of 60") {
		t.Errorf("unexpected rejection message: %s", failure.Message)
	}
}

// S4: a qualifying pair gets a fresh hex-named team and a fully enabled repo.
func TestProvisionD1_PairHappyPath(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "bob", "carol")

	mustSucceed(t, o.Provision(ctx, "d0", []string{"bob"}))
	mustSucceed(t, o.Provision(ctx, "d0", []string{"carol"}))
	db.SaveGrade(ctx, &store.Grade{PersonID: "bob", DelivID: "d0", Score: 80})
	db.SaveGrade(ctx, &store.Grade{PersonID: "carol", DelivID: "d0", Score: 80})

	success := mustSucceed(t, o.Provision(ctx, "d1", []string{"bob", "carol"}))
	if success.Status != string(progression.StatusD1) {
		t.Errorf("status = %s, want D1", success.Status)
	}

	teams, _ := db.TeamsForPerson(ctx, "bob")
	var pairTeam *store.Team
	for _, team := range teams {
		if team.OnD1 {
			pairTeam = team
		}
	}
	if pairTeam == nil {
		t.Fatal("no d1 team created for the pair")
	}
	if !regexp.MustCompile(`^[0-9a-f]{6}$`).MatchString(pairTeam.ID) {
		t.Errorf("team name %q is not a 6-hex-char token", pairTeam.ID)
	}
	if len(pairTeam.Members) != 2 {
		t.Errorf("team has %d members, want 2", len(pairTeam.Members))
	}

	repo, err := db.GetRepository(ctx, "secap_"+pairTeam.ID)
	if err != nil {
		t.Fatal("pair repository not created")
	}
	if !repo.D1Enabled || !repo.D2Enabled || !repo.D3Enabled {
		t.Errorf("repo flags d1=%v d2=%v d3=%v, want all true", repo.D1Enabled, repo.D2Enabled, repo.D3Enabled)
	}
}

func TestProvisionD1_PairValidation(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	ctx := context.Background()
	register(t, db, "bob")

	failure := mustFail(t, o.Provision(ctx, "d1", []string{"bob", "bob"}))
	if !strings.Contains(failure.Message, "distinct") {
		t.Errorf("unexpected message for duplicate pair: %s", failure.Message)
	}

	failure = mustFail(t, o.Provision(ctx, "d1", []string{"bob", "ghost"}))
	if !strings.Contains(failure.Message, "ghost") {
		t.Errorf("unexpected message for unknown teammate: %s", failure.Message)
	}
}

func TestProvision_UnknownDeliverable(t *testing.T) {
	o, db := newTestOrchestrator(t, nil)
	register(t, db, "alice")

	mustFail(t, o.Provision(context.Background(), "d9", []string{"alice"}))
	mustFail(t, o.Provision(context.Background(), "d1", []string{"a", "b", "c"}))
	mustFail(t, o.Provision(context.Background(), "d0", []string{}))
}
