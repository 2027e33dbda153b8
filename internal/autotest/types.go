// Package autotest contains the grading dispatcher: the priority queues,
// the tick scheduler, and the grading job runner.
package autotest

import (
	"context"

	"gradeplane/pkg/api"

	"github.com/google/uuid"
)

// Postback sentinels. A target carrying one of these never reaches the
// container runtime; a mock grading job produces a synthetic record instead.
const (
	PostbackEmpty    = "EMPTY"
	PostbackSentinel = "POSTBACK"
)

// CommitTarget identifies one unit of grading work.
// CommitURL is the unique key within the dispatcher.
type CommitTarget struct {
	CommitSHA   string `json:"commit_sha"`
	CommitURL   string `json:"commit_url"`
	RepoID      string `json:"repo_id"`
	CloneURL    string `json:"clone_url"`
	DelivID     string `json:"deliv_id"`
	PostbackURL string `json:"postback_url"`
	Timestamp   int64  `json:"timestamp"`
}

// ContainerInput is a CommitTarget plus the deliverable-specific
// container parameters. This is what the queues store.
type ContainerInput struct {
	ExecutionID    uuid.UUID    `json:"execution_id"`
	Target         CommitTarget `json:"target"`
	Image          string       `json:"image"`
	TimeoutSeconds int          `json:"timeout_seconds"`
}

// ResultState classifies the outcome of a grading run.
type ResultState string

const (
	ResultStateSuccess       ResultState = "SUCCESS"
	ResultStateFail          ResultState = "FAIL"
	ResultStateTimeout       ResultState = "TIMEOUT"
	ResultStateInvalidReport ResultState = "INVALID_REPORT"
)

// GradeReport is the structured report the grading container writes.
type GradeReport struct {
	ScoreOverall *float64 `json:"scoreOverall,omitempty"`
	ScoreTest    *float64 `json:"scoreTest,omitempty"`
	ScoreCover   *float64 `json:"scoreCover,omitempty"`
	PassNames    []string `json:"passNames,omitempty"`
	FailNames    []string `json:"failNames,omitempty"`
	SkipNames    []string `json:"skipNames,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
}

// ResultOutput is the outcome half of an AutoTestResult.
type ResultOutput struct {
	Timestamp          int64        `json:"timestamp"`
	PostbackOnComplete bool         `json:"postback_on_complete"`
	State              ResultState  `json:"state"`
	Report             *GradeReport `json:"report,omitempty"`
	Error              string       `json:"error,omitempty"`
}

// AutoTestResult is the full record of one grading run.
type AutoTestResult struct {
	CommitSHA string          `json:"commit_sha"`
	CommitURL string          `json:"commit_url"`
	DelivID   string          `json:"deliv_id"`
	RepoID    string          `json:"repo_id"`
	Input     *ContainerInput `json:"input"`
	Output    ResultOutput    `json:"output"`
}

// Score returns the overall score, or false if the report carries none.
func (r *AutoTestResult) Score() (float64, bool) {
	if r.Output.Report == nil || r.Output.Report.ScoreOverall == nil {
		return 0, false
	}
	return *r.Output.Report.ScoreOverall, true
}

// ResultSink stores completed grading results. Rejections are logged and
// swallowed by the dispatcher so queue health is preserved.
type ResultSink interface {
	SaveResult(ctx context.Context, result *AutoTestResult) error
}

// GradeSink accepts the partial grade emitted after each grading run.
type GradeSink interface {
	SaveGrade(ctx context.Context, grade api.GradeTransport) error
}

// SourceFetcher checks out a commit's source tree into a destination
// directory. The dispatcher treats it as an external collaborator.
type SourceFetcher interface {
	Fetch(ctx context.Context, cloneURL, commitSHA, dest string) error
}
