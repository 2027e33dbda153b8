package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"gradeplane/internal/store"
)

// maxNameAttempts bounds the collision retry loop. With 16^6 candidate
// names it is effectively never reached.
const maxNameAttempts = 100

// freshTeamName samples 6-hex-char tokens from a cryptographically
// strong source until one is unused as a team id.
func freshTeamName(ctx context.Context, teams store.TeamStore) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		buf := make([]byte, 3)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to sample team name: %w", err)
		}
		name := hex.EncodeToString(buf)

		_, err := teams.GetTeam(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check team name %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("failed to find an unused team name after %d attempts", maxNameAttempts)
}
