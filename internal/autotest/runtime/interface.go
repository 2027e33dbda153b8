// Package runtime provides the Runtime interface for grading container backends.
package runtime

import (
	"context"
	"io"
)

// Runtime defines the interface for executing grading containers.
// Implementations include Docker and raw process execution.
type Runtime interface {
	// Start begins execution of a grading container and returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting a grading container.
type StartOptions struct {
	Image string
	Env   map[string]string

	// WorkspacePath is bind-mounted read-write at MountPoint inside the
	// container. The container writes its report under it.
	WorkspacePath string
	MountPoint    string

	Timeout int // seconds
}

// ExitResult carries the container's exit status.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running grading container.
type Handle interface {
	// Wait blocks until the container completes and returns the exit status.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop forcefully terminates the container.
	Stop(ctx context.Context) error

	// StreamLogs returns a reader for the container's stdout/stderr.
	StreamLogs(ctx context.Context) (io.ReadCloser, error)
}
