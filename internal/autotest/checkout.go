package autotest

import (
	"context"
	"fmt"
	"os/exec"
)

// GitFetcher checks out commits by shelling out to the git binary.
type GitFetcher struct{}

// Fetch clones the repository into dest and checks out the commit.
func (GitFetcher) Fetch(ctx context.Context, cloneURL, commitSHA, dest string) error {
	clone := exec.CommandContext(ctx, "git", "clone", "--quiet", cloneURL, dest)
	if out, err := clone.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %v: %s", err, out)
	}

	checkout := exec.CommandContext(ctx, "git", "-C", dest, "checkout", "--quiet", commitSHA)
	if out, err := checkout.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout %s failed: %v: %s", commitSHA, err, out)
	}
	return nil
}
