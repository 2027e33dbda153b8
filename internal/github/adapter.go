// Package github defines the boundary to the source-hosting platform.
// The dispatcher core consumes this interface; the real adapter that
// talks to the provider lives outside it.
package github

import (
	"context"
	"fmt"

	"gradeplane/internal/store"
)

// Adapter is the source-hosting surface the provisioning orchestrator
// consumes. ProvisionRepository returns true only on full success;
// partial-failure rollback is the orchestrator's responsibility.
type Adapter interface {
	// ProvisionRepository creates the remote repository, attaches the
	// teams, imports the bootstrap sources and installs the webhook.
	ProvisionRepository(ctx context.Context, name string, teams []*store.Team, importURL, webhookURL string) (bool, error)

	// RepositoryURL returns the browse URL for a repository id.
	RepositoryURL(repoID string) string

	// TeamURL returns the browse URL for a team id.
	TeamURL(teamID string) string
}

// URLBuilder assembles provider URLs from the configured host and org.
type URLBuilder struct {
	Host string
	Org  string
}

func (u URLBuilder) RepositoryURL(repoID string) string {
	return fmt.Sprintf("https://%s/%s/%s", u.Host, u.Org, repoID)
}

func (u URLBuilder) TeamURL(teamID string) string {
	return fmt.Sprintf("https://%s/orgs/%s/teams/%s", u.Host, u.Org, teamID)
}

// Static is an Adapter for development deployments without a hosting
// backend: remote provisioning always succeeds and URLs are assembled
// locally.
type Static struct {
	URLBuilder
}

func (Static) ProvisionRepository(ctx context.Context, name string, teams []*store.Team, importURL, webhookURL string) (bool, error) {
	return true, nil
}
