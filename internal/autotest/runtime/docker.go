// Package runtime provides the Runtime interface for grading container backends.
package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerRuntime implements the Runtime interface using the Docker SDK.
type DockerRuntime struct {
	client *client.Client
}

// DockerConfig selects the daemon endpoint. An empty Host uses the local
// socket (or DOCKER_HOST). An http/https/tcp Host connects over TLS with
// the configured cert paths.
type DockerConfig struct {
	Host       string
	CACertPath string
	CertPath   string
	KeyPath    string
}

// DockerHandle represents a running container.
type DockerHandle struct {
	client      *client.Client
	containerID string
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// NewDockerRuntime creates a new Docker-based runtime.
func NewDockerRuntime(cfg DockerConfig) (*DockerRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}

	if cfg.Host == "" {
		// Initializes client from standard environment variables (DOCKER_HOST, etc.)
		opts = append(opts, client.FromEnv)
	} else {
		host := cfg.Host
		useTLS := false
		switch {
		case strings.HasPrefix(host, "https://"):
			host = "tcp://" + strings.TrimPrefix(host, "https://")
			useTLS = true
		case strings.HasPrefix(host, "http://"):
			host = "tcp://" + strings.TrimPrefix(host, "http://")
			useTLS = true
		case strings.HasPrefix(host, "tcp://"):
			useTLS = true
		}
		opts = append(opts, client.WithHost(host))
		if useTLS {
			opts = append(opts, client.WithTLSClientConfig(cfg.CACertPath, cfg.CertPath, cfg.KeyPath))
		}
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// Start implements Runtime.Start using Docker containers.
func (d *DockerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	// Check if the image exists locally first to save time.
	_, err := d.client.ImageInspect(ctx, opts.Image)
	if err != nil {
		// If image doesn't exist locally, pull it.
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image: opts.Image,
		Env:   mapToEnvList(opts.Env),
		Tty:   true,
	}

	var hostConfig *container.HostConfig
	if opts.WorkspacePath != "" {
		mountPoint := opts.MountPoint
		if mountPoint == "" {
			mountPoint = "/assn"
		}
		hostConfig = &container.HostConfig{
			Binds: []string{fmt.Sprintf("%s:%s", opts.WorkspacePath, mountPoint)},
		}
	}

	containerResponse, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, containerResponse.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &DockerHandle{
		client:      d.client,
		containerID: containerResponse.ID,
	}, nil
}

func (h *DockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		if status.Error != nil {
			return ExitResult{
					ExitCode: int(status.StatusCode),
					Error:    fmt.Errorf("%s", status.Error.Message),
				},
				nil
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *DockerHandle) Stop(ctx context.Context) error {
	timeOut := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeOut})
}

func (h *DockerHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	return h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
}
