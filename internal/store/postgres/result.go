package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gradeplane/internal/store"
)

// SaveResultRecord upserts a grading result. The last write for a
// (commit, deliverable) pair wins; the dispatcher accepts at-least-once
// delivery and the key de-duplicates.
func (s *Store) SaveResultRecord(ctx context.Context, record *store.ResultRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (commit_url, deliv_id, commit_sha, repo_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (commit_url, deliv_id) DO UPDATE SET
			commit_sha = EXCLUDED.commit_sha,
			repo_id = EXCLUDED.repo_id,
			payload = EXCLUDED.payload`,
		record.CommitURL, record.DelivID, record.CommitSHA, record.RepoID, record.Payload)
	if err != nil {
		return fmt.Errorf("failed to save result (%s, %s): %w", record.CommitURL, record.DelivID, err)
	}
	return nil
}

// GetResultRecord returns a stored result, or store.ErrNotFound.
func (s *Store) GetResultRecord(ctx context.Context, commitURL, delivID string) (*store.ResultRecord, error) {
	var r store.ResultRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT commit_url, deliv_id, commit_sha, repo_id, payload, created_at
		FROM results WHERE commit_url = $1 AND deliv_id = $2`, commitURL, delivID).
		Scan(&r.CommitURL, &r.DelivID, &r.CommitSHA, &r.RepoID, &r.Payload, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result (%s, %s): %w", commitURL, delivID, err)
	}
	return &r, nil
}
