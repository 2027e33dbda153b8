package autotest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gradeplane/internal/autotest/runtime"
)

// reportRelPath is where the grading container writes its structured
// report, relative to the mounted workspace.
const reportRelPath = "output/report.json"

// Job is a one-shot grading handle. Prepare is idempotent; Run always
// returns a well-formed result, even on container error or timeout.
type Job interface {
	Prepare(ctx context.Context) error
	Run(ctx context.Context, rt runtime.Runtime) *AutoTestResult
	Input() *ContainerInput
}

// NewJob selects the job implementation for the input. Targets carrying
// a sentinel postback URL get a mock job that skips the container runtime.
func NewJob(input *ContainerInput, fetcher SourceFetcher, workRoot string, logger *slog.Logger) Job {
	if input.Target.PostbackURL == PostbackEmpty || input.Target.PostbackURL == PostbackSentinel {
		return &MockGradingJob{input: input}
	}
	return &GradingJob{
		input:    input,
		fetcher:  fetcher,
		workRoot: workRoot,
		logger:   logger,
	}
}

// GradingJob prepares a workspace, launches a grading container against
// it and collects the container's report.
type GradingJob struct {
	input    *ContainerInput
	fetcher  SourceFetcher
	workRoot string
	logger   *slog.Logger

	workDir  string
	prepared bool
}

// Input returns the queue entry this job was built from.
func (j *GradingJob) Input() *ContainerInput { return j.input }

// Prepare creates the per-job working area and checks out the target
// commit. A second call on the same job is a no-op.
func (j *GradingJob) Prepare(ctx context.Context) error {
	if j.prepared {
		return nil
	}

	// The checkout owns the workspace directory: git refuses to clone
	// into a non-empty destination, so output/ is created afterwards.
	j.workDir = filepath.Join(j.workRoot, j.input.ExecutionID.String())
	if err := j.fetcher.Fetch(ctx, j.input.Target.CloneURL, j.input.Target.CommitSHA, j.workDir); err != nil {
		return fmt.Errorf("failed to fetch %s@%s: %w", j.input.Target.RepoID, j.input.Target.CommitSHA, err)
	}

	if err := os.MkdirAll(filepath.Join(j.workDir, "output"), 0o755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	j.prepared = true
	return nil
}

// Run starts the deliverable's container with the prepared tree mounted,
// enforces the per-deliverable timeout and parses the report. The result
// is well-formed on every path.
func (j *GradingJob) Run(ctx context.Context, rt runtime.Runtime) *AutoTestResult {
	result := j.newResult()

	timeout := 5 * time.Minute
	if j.input.TimeoutSeconds > 0 {
		timeout = time.Duration(j.input.TimeoutSeconds) * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := runtime.StartOptions{
		Image:         j.input.Image,
		WorkspacePath: j.workDir,
		MountPoint:    "/assn",
		Timeout:       j.input.TimeoutSeconds,
		Env: map[string]string{
			"ASSIGNMENT":   j.input.Target.DelivID,
			"COMMIT_SHA":   j.input.Target.CommitSHA,
			"EXECUTION_ID": j.input.ExecutionID.String(),
		},
	}

	handle, err := rt.Start(execCtx, opts)
	if err != nil {
		result.Output.State = ResultStateFail
		result.Output.Error = fmt.Sprintf("failed to start grading container: %v", err)
		return result
	}

	exit, err := handle.Wait(execCtx)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			j.logger.Warn("grading run timed out",
				"commit", j.input.Target.CommitSHA, "timeout", timeout)
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			handle.Stop(stopCtx)
			result.Output.State = ResultStateTimeout
			result.Output.Error = fmt.Sprintf("grading timed out after %v", timeout)
			return result
		}
		result.Output.State = ResultStateFail
		result.Output.Error = fmt.Sprintf("container wait error: %v", err)
		return result
	}

	report, err := j.readReport()
	if err != nil {
		j.logger.Error("grading container produced no readable report",
			"commit", j.input.Target.CommitSHA, "exit_code", exit.ExitCode, "error", err)
		result.Output.State = ResultStateInvalidReport
		result.Output.Error = fmt.Sprintf("unreadable report: %v", err)
		return result
	}

	result.Output.Report = report
	if exit.ExitCode == 0 {
		result.Output.State = ResultStateSuccess
	} else {
		result.Output.State = ResultStateFail
		result.Output.Error = fmt.Sprintf("grading exited with code %d", exit.ExitCode)
	}
	return result
}

func (j *GradingJob) newResult() *AutoTestResult {
	return &AutoTestResult{
		CommitSHA: j.input.Target.CommitSHA,
		CommitURL: j.input.Target.CommitURL,
		DelivID:   j.input.Target.DelivID,
		RepoID:    j.input.Target.RepoID,
		Input:     j.input,
		Output: ResultOutput{
			Timestamp:          time.Now().Unix(),
			PostbackOnComplete: j.input.Target.PostbackURL != "",
		},
	}
}

func (j *GradingJob) readReport() (*GradeReport, error) {
	raw, err := os.ReadFile(filepath.Join(j.workDir, filepath.FromSlash(reportRelPath)))
	if err != nil {
		return nil, err
	}
	var report GradeReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("malformed report: %w", err)
	}
	return &report, nil
}

// MockGradingJob skips the container runtime and returns a synthetic
// record. Selected for sentinel postback URLs.
type MockGradingJob struct {
	input *ContainerInput
}

// Input returns the queue entry this job was built from.
func (j *MockGradingJob) Input() *ContainerInput { return j.input }

// Prepare is a no-op; there is no workspace to build.
func (j *MockGradingJob) Prepare(ctx context.Context) error { return nil }

// Run returns a synthetic successful record without touching the runtime.
func (j *MockGradingJob) Run(ctx context.Context, rt runtime.Runtime) *AutoTestResult {
	score := 50.0
	return &AutoTestResult{
		CommitSHA: j.input.Target.CommitSHA,
		CommitURL: j.input.Target.CommitURL,
		DelivID:   j.input.Target.DelivID,
		RepoID:    j.input.Target.RepoID,
		Input:     j.input,
		Output: ResultOutput{
			Timestamp: time.Now().Unix(),
			State:     ResultStateSuccess,
			Report: &GradeReport{
				ScoreOverall: &score,
				Feedback:     "synthetic grading record",
			},
		},
	}
}
