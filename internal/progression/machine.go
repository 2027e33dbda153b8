package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gradeplane/internal/store"
)

// Store is the slice of the persistence layer the walk reads (and the
// repository rows it flips as side effects).
type Store interface {
	store.PersonStore
	store.TeamStore
	store.RepositoryStore
	store.GradeStore
}

// Machine walks the progression guards for one person at a time. The
// walk reads persisted facts only; it never calls source-hosting APIs.
type Machine struct {
	store     Store
	threshold float64
	logger    *slog.Logger
}

// NewMachine creates a progression machine. threshold is the minimum
// passing score for a deliverable grade.
func NewMachine(s Store, threshold float64, logger *slog.Logger) *Machine {
	if threshold <= 0 {
		threshold = 60
	}
	return &Machine{store: s, threshold: threshold, logger: logger}
}

// HandleUnknownUser creates a person record at the lowest stage on
// first sighting. Existing records are returned unchanged.
func (m *Machine) HandleUnknownUser(ctx context.Context, githubID string) (*store.Person, error) {
	person, err := m.store.GetPerson(ctx, githubID)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	person = &store.Person{
		ID:         githubID,
		GithubID:   githubID,
		Kind:       store.PersonKindStudent,
		SdmmStatus: string(StatusD0Pre),
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.SavePerson(ctx, person); err != nil {
		return nil, fmt.Errorf("failed to create person %s: %w", githubID, err)
	}
	m.logger.Info("created person on first sighting", "person", githubID)
	return person, nil
}

// ComputeStatus walks the progression guards for the person, starting
// from the lowest stage. Each guard is an upgrade that fires at most
// once per call. The result is merged with the cached status (the
// computed value never regresses below it) and written back onto the
// person record; the write-back is best-effort, truth lives in the raw
// facts.
func (m *Machine) ComputeStatus(ctx context.Context, personID string) (Status, error) {
	person, err := m.store.GetPerson(ctx, personID)
	if err != nil {
		return "", fmt.Errorf("failed to load person %s: %w", personID, err)
	}

	repos, err := m.store.RepositoriesForPerson(ctx, personID)
	if err != nil {
		return "", fmt.Errorf("failed to load repositories for %s: %w", personID, err)
	}
	teams, err := m.store.TeamsForPerson(ctx, personID)
	if err != nil {
		return "", fmt.Errorf("failed to load teams for %s: %w", personID, err)
	}

	status := StatusD0Pre

	// D0PRE -> D0: a d0-enabled repository exists
	if status == StatusD0Pre {
		for _, r := range repos {
			if r.D0Enabled {
				status = StatusD0
				break
			}
		}
	}

	// D0 -> D1UNLOCKED: passing d0 grade
	if status == StatusD0 {
		if m.hasPassingGrade(ctx, personID, repos, "d0") {
			status = StatusD1Unlocked
		}
	}

	// D1UNLOCKED -> D1TEAMSET: member of a d1 team
	if status == StatusD1Unlocked {
		for _, t := range teams {
			if t.OnD1 {
				status = StatusD1TeamSet
				break
			}
		}
	}

	// D1TEAMSET -> D1: a d1-enabled repository exists
	if status == StatusD1TeamSet {
		for _, r := range repos {
			if r.D1Enabled {
				status = StatusD1
				break
			}
		}
	}

	// D1 -> D2: passing d1 grade; flips d2 on the d1 repositories
	if status == StatusD1 {
		if m.hasPassingGrade(ctx, personID, repos, "d1") {
			status = StatusD2
			for _, r := range repos {
				if r.D1Enabled {
					r.D2Enabled = true
					if err := m.store.SaveRepository(ctx, r); err != nil {
						m.logger.Error("failed to enable d2 on repository",
							"repo", r.ID, "error", err)
					}
				}
			}
		}
	}

	// D2 -> D3PRE: passing d2 grade
	if status == StatusD2 {
		if m.hasPassingGrade(ctx, personID, repos, "d2") {
			status = StatusD3Pre
		}
	}

	// D3PRE -> D3: the d2 repository has its pull request merged
	if status == StatusD3Pre {
		for _, r := range repos {
			if r.D2Enabled && r.D3PullRequest {
				status = StatusD3
				break
			}
		}
	}

	// Terminal: flips d3 on the d2 repositories. Runs on every call that
	// reaches D3; the repository save is an idempotent upsert.
	if status == StatusD3 {
		for _, r := range repos {
			if r.D2Enabled {
				r.D3Enabled = true
				if err := m.store.SaveRepository(ctx, r); err != nil {
					m.logger.Error("failed to enable d3 on repository",
						"repo", r.ID, "error", err)
				}
			}
		}
	}

	// The computed status never regresses below the cached one.
	status = Max(status, Status(person.SdmmStatus))

	if person.SdmmStatus != string(status) {
		person.SdmmStatus = string(status)
		if err := m.store.SavePerson(ctx, person); err != nil {
			m.logger.Error("failed to cache status on person",
				"person", personID, "status", status, "error", err)
		}
	}

	return status, nil
}

// hasPassingGrade checks the deliverable grade keyed by the person, then
// by each of the person's repositories (grading runs report against the
// repository).
func (m *Machine) hasPassingGrade(ctx context.Context, personID string, repos []*store.Repository, delivID string) bool {
	ids := make([]string, 0, len(repos)+1)
	ids = append(ids, personID)
	for _, r := range repos {
		ids = append(ids, r.ID)
	}

	for _, id := range ids {
		grade, err := m.store.GetGrade(ctx, id, delivID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				m.logger.Error("failed to read grade", "id", id, "deliv", delivID, "error", err)
			}
			continue
		}
		if !grade.IsPlaceholder() && grade.Score >= m.threshold {
			return true
		}
	}
	return false
}

// Threshold returns the configured passing score.
func (m *Machine) Threshold() float64 {
	return m.threshold
}
