package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gradeplane/internal/store"

	"github.com/lib/pq"
)

// SaveTeam inserts or fully replaces a team record.
func (s *Store) SaveTeam(ctx context.Context, team *store.Team) error {
	custom, err := customToJSON(team.Custom)
	if err != nil {
		return fmt.Errorf("failed to encode custom: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, members, on_d0, on_d1, on_d2, on_d3, url, custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			members = EXCLUDED.members,
			on_d0 = EXCLUDED.on_d0,
			on_d1 = EXCLUDED.on_d1,
			on_d2 = EXCLUDED.on_d2,
			on_d3 = EXCLUDED.on_d3,
			url = EXCLUDED.url,
			custom = EXCLUDED.custom`,
		team.ID, pq.Array(team.Members), team.OnD0, team.OnD1, team.OnD2, team.OnD3, team.URL, custom)
	if err != nil {
		return fmt.Errorf("failed to save team %s: %w", team.ID, err)
	}
	return nil
}

// GetTeam returns a team by id, or store.ErrNotFound.
func (s *Store) GetTeam(ctx context.Context, id string) (*store.Team, error) {
	var (
		t      store.Team
		custom []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, members, on_d0, on_d1, on_d2, on_d3, url, custom
		FROM teams WHERE id = $1`, id).
		Scan(&t.ID, pq.Array(&t.Members), &t.OnD0, &t.OnD1, &t.OnD2, &t.OnD3, &t.URL, &custom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team %s: %w", id, err)
	}

	if t.Custom, err = customFromJSON(custom); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTeam removes a team. Deleting an absent team is not an error.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete team %s: %w", id, err)
	}
	return nil
}

// TeamsForPerson returns every team the person is a member of.
func (s *Store) TeamsForPerson(ctx context.Context, personID string) ([]*store.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, members, on_d0, on_d1, on_d2, on_d3, url, custom
		FROM teams WHERE $1 = ANY(members)`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams for %s: %w", personID, err)
	}
	defer rows.Close()

	var out []*store.Team
	for rows.Next() {
		var (
			t      store.Team
			custom []byte
		)
		if err := rows.Scan(&t.ID, pq.Array(&t.Members), &t.OnD0, &t.OnD1, &t.OnD2, &t.OnD3, &t.URL, &custom); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		if t.Custom, err = customFromJSON(custom); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
