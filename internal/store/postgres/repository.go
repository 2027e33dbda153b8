package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gradeplane/internal/store"

	"github.com/lib/pq"
)

// SaveRepository inserts or fully replaces a repository record.
func (s *Store) SaveRepository(ctx context.Context, repo *store.Repository) error {
	custom, err := customToJSON(repo.Custom)
	if err != nil {
		return fmt.Errorf("failed to encode custom: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories
			(id, url, team_ids, d0_enabled, d1_enabled, d2_enabled, d3_enabled, d3_pull_request, custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			team_ids = EXCLUDED.team_ids,
			d0_enabled = EXCLUDED.d0_enabled,
			d1_enabled = EXCLUDED.d1_enabled,
			d2_enabled = EXCLUDED.d2_enabled,
			d3_enabled = EXCLUDED.d3_enabled,
			d3_pull_request = EXCLUDED.d3_pull_request,
			custom = EXCLUDED.custom`,
		repo.ID, repo.URL, pq.Array(repo.TeamIDs),
		repo.D0Enabled, repo.D1Enabled, repo.D2Enabled, repo.D3Enabled, repo.D3PullRequest, custom)
	if err != nil {
		return fmt.Errorf("failed to save repository %s: %w", repo.ID, err)
	}
	return nil
}

// GetRepository returns a repository by id, or store.ErrNotFound.
func (s *Store) GetRepository(ctx context.Context, id string) (*store.Repository, error) {
	var (
		r      store.Repository
		custom []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, team_ids, d0_enabled, d1_enabled, d2_enabled, d3_enabled, d3_pull_request, custom
		FROM repositories WHERE id = $1`, id).
		Scan(&r.ID, &r.URL, pq.Array(&r.TeamIDs),
			&r.D0Enabled, &r.D1Enabled, &r.D2Enabled, &r.D3Enabled, &r.D3PullRequest, &custom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s: %w", id, err)
	}

	if r.Custom, err = customFromJSON(custom); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRepository removes a repository. Absent rows are not an error.
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete repository %s: %w", id, err)
	}
	return nil
}

// RepositoriesForPerson returns every repository reachable through the
// person's team memberships.
func (s *Store) RepositoriesForPerson(ctx context.Context, personID string) ([]*store.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.url, r.team_ids, r.d0_enabled, r.d1_enabled, r.d2_enabled, r.d3_enabled, r.d3_pull_request, r.custom
		FROM repositories r
		WHERE EXISTS (
			SELECT 1 FROM teams t
			WHERE t.id = ANY(r.team_ids) AND $1 = ANY(t.members)
		)`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories for %s: %w", personID, err)
	}
	defer rows.Close()

	var out []*store.Repository
	for rows.Next() {
		var (
			r      store.Repository
			custom []byte
		)
		if err := rows.Scan(&r.ID, &r.URL, pq.Array(&r.TeamIDs),
			&r.D0Enabled, &r.D1Enabled, &r.D2Enabled, &r.D3Enabled, &r.D3PullRequest, &custom); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		if r.Custom, err = customFromJSON(custom); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
