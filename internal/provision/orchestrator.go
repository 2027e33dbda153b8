// Package provision creates teams, repositories and grade placeholders
// when a student starts a deliverable, gated by the progression machine.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gradeplane/internal/github"
	"gradeplane/internal/progression"
	"gradeplane/internal/store"
	"gradeplane/pkg/api"
)

// contactStaff is the catch-all rejection. Internal details never reach
// students.
const contactStaff = "Something went wrong with provisioning; please contact the course staff."

// Store is the slice of the persistence layer the orchestrator mutates.
type Store interface {
	store.PersonStore
	store.TeamStore
	store.RepositoryStore
	store.GradeStore
}

// Config carries the provisioning inputs derived from course configuration.
type Config struct {
	// ProjectPrefix prefixes repository names, e.g. "secap_".
	ProjectPrefix string
	// ImportURL is the bootstrap repository cloned into new repositories.
	ImportURL string
	// WebhookURL is installed on every provisioned repository.
	WebhookURL string
}

// Orchestrator owns the transactional create-team-and-repo paths.
type Orchestrator struct {
	store   Store
	gh      github.Adapter
	machine *progression.Machine
	cfg     Config
	logger  *slog.Logger
}

// NewOrchestrator creates a provisioning orchestrator.
func NewOrchestrator(s Store, gh github.Adapter, machine *progression.Machine, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: s, gh: gh, machine: machine, cfg: cfg, logger: logger}
}

// rejection is a user-visible refusal; anything else that goes wrong is
// mapped to the generic catch-all at the boundary.
type rejection struct{ message string }

func (r rejection) Error() string { return r.message }

func reject(format string, args ...any) error {
	return rejection{message: fmt.Sprintf(format, args...)}
}

// Provision starts a deliverable for the listed people. PersonIDs[0] is
// the requester. The returned payload carries either a status snapshot
// or a human-readable failure.
func (o *Orchestrator) Provision(ctx context.Context, delivID string, personIDs []string) api.Payload {
	payload, err := o.provision(ctx, delivID, personIDs)
	if err == nil {
		return api.Payload{Success: payload}
	}

	var rej rejection
	if errors.As(err, &rej) {
		return api.Payload{Failure: &api.Failure{Message: rej.message}}
	}

	o.logger.Error("provisioning failed", "deliv", delivID, "people", personIDs, "error", err)
	return api.Payload{Failure: &api.Failure{Message: contactStaff}}
}

func (o *Orchestrator) provision(ctx context.Context, delivID string, personIDs []string) (*api.StatusPayload, error) {
	if len(personIDs) == 0 {
		return nil, reject("No students listed on the request.")
	}

	switch {
	case delivID == "d0" && len(personIDs) == 1:
		return o.provisionD0(ctx, personIDs[0])
	case delivID == "d1" && len(personIDs) == 1:
		return o.upgradeToD1(ctx, personIDs[0])
	case delivID == "d1" && len(personIDs) == 2:
		return o.provisionPairedD1(ctx, personIDs)
	case delivID == "d0":
		return nil, reject("d0 is completed individually.")
	case delivID == "d1":
		return nil, reject("d1 may be completed alone or in a team of two.")
	default:
		return nil, reject("Deliverable %s cannot be provisioned; select d0 or d1.", delivID)
	}
}

// provisionD0 creates the personal team and repository for a student
// starting out.
func (o *Orchestrator) provisionD0(ctx context.Context, personID string) (*api.StatusPayload, error) {
	person, err := o.store.GetPerson(ctx, personID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject("You must log in to the course system before starting d0.")
	}
	if err != nil {
		return nil, err
	}

	status, err := o.machine.ComputeStatus(ctx, person.ID)
	if err != nil {
		return nil, err
	}
	if status != progression.StatusD0Pre {
		return nil, reject("d0 has already been provisioned for you.")
	}

	teamID := personID
	repoID := o.cfg.ProjectPrefix + personID

	// A leftover team or repo here is a bug signal, not a retry path:
	// fail without rollback so concurrent state is not clobbered.
	if _, err := o.store.GetTeam(ctx, teamID); err == nil {
		o.logger.Error("team already exists before d0 provisioning", "team", teamID)
		return nil, reject(contactStaff)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := o.store.GetRepository(ctx, repoID); err == nil {
		o.logger.Error("repository already exists before d0 provisioning", "repo", repoID)
		return nil, reject(contactStaff)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	team := &store.Team{ID: teamID, Members: []string{personID}, OnD0: true}
	if err := o.store.SaveTeam(ctx, team); err != nil {
		return nil, err
	}
	repo := &store.Repository{ID: repoID, TeamIDs: []string{teamID}, D0Enabled: true}
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		o.rollback(ctx, repoID, teamID)
		return nil, err
	}

	if err := o.provisionRemote(ctx, repo, team); err != nil {
		o.rollback(ctx, repoID, teamID)
		return nil, err
	}

	if err := o.placeholderGrades(ctx, repo, "d0"); err != nil {
		return nil, err
	}

	return o.statusPayload(ctx, personID)
}

// upgradeToD1 flips the student's existing d0 repository into a d1
// repository; no new remote state is created.
func (o *Orchestrator) upgradeToD1(ctx context.Context, personID string) (*api.StatusPayload, error) {
	person, err := o.store.GetPerson(ctx, personID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject("You must complete d0 before starting d1.")
	}
	if err != nil {
		return nil, err
	}

	if !o.passedD0(ctx, person.ID) {
		return nil, o.thresholdRejection()
	}

	repos, err := o.store.RepositoriesForPerson(ctx, person.ID)
	if err != nil {
		return nil, err
	}
	var d0Repo *store.Repository
	for _, r := range repos {
		if r.D1Enabled {
			return nil, reject("You already have a d1 repository.")
		}
		if r.D0Enabled && d0Repo == nil {
			d0Repo = r
		}
	}
	if d0Repo == nil {
		return nil, reject("You must complete d0 before starting d1.")
	}

	team, err := o.store.GetTeam(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load personal team for %s: %w", personID, err)
	}

	d0Repo.D1Enabled = true
	if err := o.store.SaveRepository(ctx, d0Repo); err != nil {
		return nil, err
	}
	team.OnD1, team.OnD2, team.OnD3 = true, true, true
	if err := o.store.SaveTeam(ctx, team); err != nil {
		return nil, err
	}

	if err := o.placeholderGrades(ctx, d0Repo, "d1", "d2", "d3"); err != nil {
		return nil, err
	}

	return o.statusPayload(ctx, personID)
}

// provisionPairedD1 creates a fresh two-person team and repository.
func (o *Orchestrator) provisionPairedD1(ctx context.Context, personIDs []string) (*api.StatusPayload, error) {
	if personIDs[0] == personIDs[1] {
		return nil, reject("Teams must consist of two distinct students.")
	}

	for _, id := range personIDs {
		if _, err := o.store.GetPerson(ctx, id); errors.Is(err, store.ErrNotFound) {
			return nil, reject("Unable to find %s; all team members must have logged in to the course system.", id)
		} else if err != nil {
			return nil, err
		}
	}

	for _, id := range personIDs {
		if !o.passedD0(ctx, id) {
			return nil, o.thresholdRejection()
		}
	}

	for _, id := range personIDs {
		status, err := o.machine.ComputeStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status != progression.StatusD1Unlocked {
			return nil, reject("All team members must have completed d0 and not yet started d1.")
		}
	}

	teamID, err := freshTeamName(ctx, o.store)
	if err != nil {
		return nil, err
	}
	repoID := o.cfg.ProjectPrefix + teamID

	team := &store.Team{
		ID:      teamID,
		Members: append([]string(nil), personIDs...),
		OnD1:    true,
		OnD2:    true,
		OnD3:    true,
	}
	if err := o.store.SaveTeam(ctx, team); err != nil {
		return nil, err
	}
	repo := &store.Repository{
		ID:        repoID,
		TeamIDs:   []string{teamID},
		D1Enabled: true,
		D2Enabled: true,
		D3Enabled: true,
	}
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		o.rollback(ctx, repoID, teamID)
		return nil, err
	}

	if err := o.provisionRemote(ctx, repo, team); err != nil {
		o.rollback(ctx, repoID, teamID)
		return nil, err
	}

	if err := o.placeholderGrades(ctx, repo, "d1", "d2", "d3"); err != nil {
		return nil, err
	}

	return o.statusPayload(ctx, personIDs[0])
}

// provisionRemote asks the hosting adapter to create the remote side
// and persists the resulting URLs.
func (o *Orchestrator) provisionRemote(ctx context.Context, repo *store.Repository, team *store.Team) error {
	ok, err := o.gh.ProvisionRepository(ctx, repo.ID, []*store.Team{team}, o.cfg.ImportURL, o.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("remote provisioning of %s errored: %w", repo.ID, err)
	}
	if !ok {
		return fmt.Errorf("remote provisioning of %s failed", repo.ID)
	}

	repo.URL = o.gh.RepositoryURL(repo.ID)
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		return err
	}
	team.URL = o.gh.TeamURL(team.ID)
	return o.store.SaveTeam(ctx, team)
}

// rollback deletes the locally created repo and team after a failed
// provisioning attempt.
func (o *Orchestrator) rollback(ctx context.Context, repoID, teamID string) {
	if err := o.store.DeleteRepository(ctx, repoID); err != nil {
		o.logger.Error("rollback failed to delete repository", "repo", repoID, "error", err)
	}
	if err := o.store.DeleteTeam(ctx, teamID); err != nil {
		o.logger.Error("rollback failed to delete team", "team", teamID, "error", err)
	}
	o.logger.Warn("rolled back provisioning", "repo", repoID, "team", teamID)
}

// placeholderGrades creates unearned grade rows for the repository.
func (o *Orchestrator) placeholderGrades(ctx context.Context, repo *store.Repository, delivIDs ...string) error {
	for _, delivID := range delivIDs {
		grade := &store.Grade{
			PersonID: repo.ID,
			DelivID:  delivID,
			Score:    store.PlaceholderScore,
			URL:      repo.URL,
		}
		if err := o.store.SaveGrade(ctx, grade); err != nil {
			return fmt.Errorf("failed to create %s placeholder grade: %w", delivID, err)
		}
	}
	return nil
}

// passedD0 checks the d0 grade against the pass threshold, keyed by the
// person or any of their repositories.
func (o *Orchestrator) passedD0(ctx context.Context, personID string) bool {
	ids := []string{personID}
	if repos, err := o.store.RepositoriesForPerson(ctx, personID); err == nil {
		for _, r := range repos {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		grade, err := o.store.GetGrade(ctx, id, "d0")
		if err != nil {
			continue
		}
		if !grade.IsPlaceholder() && grade.Score >= o.machine.Threshold() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) thresholdRejection() error {
	return reject("All teammates must have achieved a score of %v%% or more on d0 before starting d1.",
		o.machine.Threshold())
}

// statusPayload recomputes and snapshots the requester's progression.
func (o *Orchestrator) statusPayload(ctx context.Context, personID string) (*api.StatusPayload, error) {
	status, err := o.machine.ComputeStatus(ctx, personID)
	if err != nil {
		return nil, err
	}

	payload := &api.StatusPayload{PersonID: personID, Status: string(status)}

	repos, err := o.store.RepositoriesForPerson(ctx, personID)
	if err != nil {
		return payload, nil
	}
	for _, r := range repos {
		if r.D0Enabled && payload.D0Repo == "" {
			payload.D0Repo = r.URL
		}
		if r.D1Enabled && payload.D1Repo == "" {
			payload.D1Repo = r.URL
		}
	}
	if teams, err := o.store.TeamsForPerson(ctx, personID); err == nil {
		for _, t := range teams {
			if t.OnD1 {
				payload.TeamURL = t.URL
				break
			}
		}
	}
	return payload, nil
}
