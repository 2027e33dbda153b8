package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gradeplane/internal/store"
)

// SaveGrade upserts the grade for its (person, deliverable) key.
func (s *Store) SaveGrade(ctx context.Context, grade *store.Grade) error {
	custom, err := customToJSON(grade.Custom)
	if err != nil {
		return fmt.Errorf("failed to encode custom: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grades (person_id, deliv_id, score, url, comment, timestamp, custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (person_id, deliv_id) DO UPDATE SET
			score = EXCLUDED.score,
			url = EXCLUDED.url,
			comment = EXCLUDED.comment,
			timestamp = EXCLUDED.timestamp,
			custom = EXCLUDED.custom`,
		grade.PersonID, grade.DelivID, grade.Score, grade.URL, grade.Comment, grade.Timestamp, custom)
	if err != nil {
		return fmt.Errorf("failed to save grade (%s, %s): %w", grade.PersonID, grade.DelivID, err)
	}
	return nil
}

// GetGrade returns the grade for the key, or store.ErrNotFound.
func (s *Store) GetGrade(ctx context.Context, personID, delivID string) (*store.Grade, error) {
	var (
		g      store.Grade
		custom []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id, deliv_id, score, url, comment, timestamp, custom
		FROM grades WHERE person_id = $1 AND deliv_id = $2`, personID, delivID).
		Scan(&g.PersonID, &g.DelivID, &g.Score, &g.URL, &g.Comment, &g.Timestamp, &custom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grade (%s, %s): %w", personID, delivID, err)
	}

	if g.Custom, err = customFromJSON(custom); err != nil {
		return nil, err
	}
	return &g, nil
}
