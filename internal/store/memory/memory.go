// Package memory implements the store interfaces with in-process maps.
// It backs the test suites and the socketless dev mode.
package memory

import (
	"context"
	"sync"

	"gradeplane/internal/store"
)

type resultKey struct {
	commitURL string
	delivID   string
}

type gradeKey struct {
	personID string
	delivID  string
}

// Store is an in-memory implementation of store.Factory.
type Store struct {
	mu      sync.RWMutex
	people  map[string]*store.Person
	teams   map[string]*store.Team
	repos   map[string]*store.Repository
	grades  map[gradeKey]*store.Grade
	results map[resultKey]*store.ResultRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		people:  make(map[string]*store.Person),
		teams:   make(map[string]*store.Team),
		repos:   make(map[string]*store.Repository),
		grades:  make(map[gradeKey]*store.Grade),
		results: make(map[resultKey]*store.ResultRecord),
	}
}

func (s *Store) SavePerson(ctx context.Context, person *store.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *person
	s.people[person.ID] = &cp
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id string) (*store.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) SaveTeam(ctx context.Context, team *store.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *team
	cp.Members = append([]string(nil), team.Members...)
	s.teams[team.ID] = &cp
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*store.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	cp.Members = append([]string(nil), t.Members...)
	return &cp, nil
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, id)
	return nil
}

func (s *Store) TeamsForPerson(ctx context.Context, personID string) ([]*store.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Team
	for _, t := range s.teams {
		for _, m := range t.Members {
			if m == personID {
				cp := *t
				cp.Members = append([]string(nil), t.Members...)
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) SaveRepository(ctx context.Context, repo *store.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *repo
	cp.TeamIDs = append([]string(nil), repo.TeamIDs...)
	s.repos[repo.ID] = &cp
	return nil
}

func (s *Store) GetRepository(ctx context.Context, id string) (*store.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repos[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	cp.TeamIDs = append([]string(nil), r.TeamIDs...)
	return &cp, nil
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, id)
	return nil
}

func (s *Store) RepositoriesForPerson(ctx context.Context, personID string) ([]*store.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberOf := make(map[string]bool)
	for id, t := range s.teams {
		for _, m := range t.Members {
			if m == personID {
				memberOf[id] = true
				break
			}
		}
	}

	var out []*store.Repository
	for _, r := range s.repos {
		for _, teamID := range r.TeamIDs {
			if memberOf[teamID] {
				cp := *r
				cp.TeamIDs = append([]string(nil), r.TeamIDs...)
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) SaveGrade(ctx context.Context, grade *store.Grade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *grade
	s.grades[gradeKey{personID: grade.PersonID, delivID: grade.DelivID}] = &cp
	return nil
}

func (s *Store) GetGrade(ctx context.Context, personID, delivID string) (*store.Grade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grades[gradeKey{personID: personID, delivID: delivID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) SaveResultRecord(ctx context.Context, record *store.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	cp.Payload = append([]byte(nil), record.Payload...)
	s.results[resultKey{commitURL: record.CommitURL, delivID: record.DelivID}] = &cp
	return nil
}

func (s *Store) GetResultRecord(ctx context.Context, commitURL, delivID string) (*store.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[resultKey{commitURL: commitURL, delivID: delivID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	cp.Payload = append([]byte(nil), r.Payload...)
	return &cp, nil
}
