package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gradeplane/internal/store"
)

// SavePerson inserts or fully replaces a person record.
func (s *Store) SavePerson(ctx context.Context, person *store.Person) error {
	custom, err := customToJSON(person.Custom)
	if err != nil {
		return fmt.Errorf("failed to encode custom: %w", err)
	}

	if person.CreatedAt.IsZero() {
		person.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO people (id, github_id, kind, sdmm_status, custom, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			github_id = EXCLUDED.github_id,
			kind = EXCLUDED.kind,
			sdmm_status = EXCLUDED.sdmm_status,
			custom = EXCLUDED.custom`,
		person.ID, person.GithubID, person.Kind, person.SdmmStatus, custom, person.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save person %s: %w", person.ID, err)
	}
	return nil
}

// GetPerson returns a person by id, or store.ErrNotFound.
func (s *Store) GetPerson(ctx context.Context, id string) (*store.Person, error) {
	var (
		p      store.Person
		custom []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, github_id, kind, sdmm_status, custom, created_at
		FROM people WHERE id = $1`, id).
		Scan(&p.ID, &p.GithubID, &p.Kind, &p.SdmmStatus, &custom, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %s: %w", id, err)
	}

	if p.Custom, err = customFromJSON(custom); err != nil {
		return nil, err
	}
	return &p, nil
}
