package autotest

import (
	"context"
	"log/slog"
	"sync"

	"gradeplane/internal/autotest/runtime"
	"gradeplane/pkg/api"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tier names.
const (
	TierExpress    = "express"
	TierStandard   = "standard"
	TierRegression = "regression"
)

// DispatcherConfig holds the slot budgets and the workspace root.
type DispatcherConfig struct {
	NumSlotsExpress    int
	NumSlotsStandard   int
	NumSlotsRegression int
	WorkRoot           string
}

// Dispatcher owns the three priority tiers. It schedules waiting work
// into free slots on every tick and promotes backlog across tiers to
// keep slots warm. All queue state is guarded by one mutex; grading
// jobs run in detached goroutines and re-enter only through the
// completion hook.
type Dispatcher struct {
	mu         sync.Mutex
	express    *JobQueue
	standard   *JobQueue
	regression *JobQueue

	runtime    runtime.Runtime
	fetcher    SourceFetcher
	resultSink ResultSink
	gradeSink  GradeSink
	workRoot   string
	logger     *slog.Logger

	// processExecution is an optional extension point invoked after the
	// result has been handed to the result sink, whether or not the sink
	// accepted it (feedback posting and the like). Its errors and panics
	// are swallowed to protect queue health.
	processExecution func(ctx context.Context, result *AutoTestResult) error
}

// NewDispatcher creates a dispatcher with the configured slot budgets.
func NewDispatcher(cfg DispatcherConfig, rt runtime.Runtime, fetcher SourceFetcher,
	results ResultSink, grades GradeSink, logger *slog.Logger) *Dispatcher {

	if cfg.NumSlotsExpress <= 0 {
		cfg.NumSlotsExpress = 1
	}
	if cfg.NumSlotsStandard <= 0 {
		cfg.NumSlotsStandard = 2
	}
	if cfg.NumSlotsRegression <= 0 {
		cfg.NumSlotsRegression = 1
	}

	return &Dispatcher{
		express:    NewJobQueue(TierExpress, cfg.NumSlotsExpress),
		standard:   NewJobQueue(TierStandard, cfg.NumSlotsStandard),
		regression: NewJobQueue(TierRegression, cfg.NumSlotsRegression),
		runtime:    rt,
		fetcher:    fetcher,
		resultSink: results,
		gradeSink:  grades,
		workRoot:   cfg.WorkRoot,
		logger:     logger,
	}
}

// SetProcessExecution installs the post-result extension point.
func (d *Dispatcher) SetProcessExecution(fn func(ctx context.Context, result *AutoTestResult) error) {
	d.processExecution = fn
}

// AddToStandardQueue admits a job to the standard tier. The caller
// ticks when it wants the work considered; Tick is the only place that
// starts jobs.
func (d *Dispatcher) AddToStandardQueue(input *ContainerInput) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queuedLocked(keyOf(input)) {
		return
	}
	d.standard.Push(input)
}

// AddToRegressionQueue admits a job to the regression tier. Used for
// staff-triggered re-grading sweeps.
func (d *Dispatcher) AddToRegressionQueue(input *ContainerInput) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queuedLocked(keyOf(input)) {
		return
	}
	d.regression.Push(input)
}

// queuedLocked reports whether the pair is waiting or running on any
// tier. Callers hold d.mu.
func (d *Dispatcher) queuedLocked(key executionKey) bool {
	return d.express.contains(key) || d.standard.contains(key) || d.regression.contains(key)
}

// Tick advances the scheduler once. Idempotent when there is nothing
// to do; never panics outward.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tickLocked(ctx)
}

// tickLocked runs one scheduling pass. Callers hold d.mu.
//
// Express is the hottest tier; when it has free slots it steals backlog
// from the slower tiers. Promotions use head-insertion so a promoted
// job keeps its earlier arrival position.
func (d *Dispatcher) tickLocked(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tick recovered from panic", "panic", r)
		}
	}()

	_, span := otel.Tracer("gradeplane-dispatcher").Start(ctx, "tick")
	defer span.End()

	d.scheduleLocked(ctx, d.express)
	d.promoteLocked(ctx, d.standard, d.express)
	d.promoteLocked(ctx, d.regression, d.express)
	d.scheduleLocked(ctx, d.standard)
	d.promoteLocked(ctx, d.regression, d.standard)
	d.scheduleLocked(ctx, d.regression)
}

// scheduleLocked starts the head of the queue in a free slot, if both
// exist. The job is fired and forgotten; it reports back through the
// completion hook.
func (d *Dispatcher) scheduleLocked(ctx context.Context, q *JobQueue) {
	if !q.HasCapacity() || q.Len() == 0 {
		return
	}
	input, err := q.ScheduleNext()
	if err != nil {
		// contract violated between checks; log and keep the loop alive
		d.logger.Error("scheduleNext failed", "queue", q.Name(), "error", err)
		return
	}

	d.logger.Info("starting grading job",
		"queue", q.Name(), "commit", input.Target.CommitSHA, "deliv", input.Target.DelivID)

	go d.runJob(context.WithoutCancel(ctx), input)
}

// promoteLocked moves the head of from into a free slot of to.
func (d *Dispatcher) promoteLocked(ctx context.Context, from, to *JobQueue) {
	if from.Len() == 0 || !to.HasCapacity() {
		return
	}
	input, err := from.Pop()
	if err != nil {
		d.logger.Error("promotion pop failed", "queue", from.Name(), "error", err)
		return
	}
	to.PushFirst(input)
	d.logger.Info("promoted job",
		"from", from.Name(), "to", to.Name(), "commit", input.Target.CommitSHA)
	d.scheduleLocked(ctx, to)
}

// PromoteIfNeeded considers moving an already-queued commit to express
// after a user feedback request. Moving only helps when the express
// backlog is shorter than the job's current position; otherwise staying
// put finishes sooner than re-queuing at the tail of express.
func (d *Dispatcher) PromoteIfNeeded(ctx context.Context, commitURL, delivID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.express.IsCommitExecuting(commitURL, delivID) ||
		d.standard.IsCommitExecuting(commitURL, delivID) ||
		d.regression.IsCommitExecuting(commitURL, delivID) {
		return
	}

	for _, q := range []*JobQueue{d.standard, d.regression} {
		idx := q.IndexOf(commitURL)
		if idx < 0 {
			continue
		}
		if d.express.Len() > idx {
			// the express backlog is at least as long as the job's
			// current position; staying put finishes sooner
			return
		}
		input := q.Remove(commitURL)
		if input == nil {
			return
		}
		d.express.Push(input)
		d.logger.Info("promoted job on feedback request",
			"from", q.Name(), "commit", commitURL, "position", idx)
		d.tickLocked(ctx)
		return
	}
}

// runJob executes one grading job outside the dispatcher lock. The
// completion hook always runs, so a panicking job still frees its slot.
func (d *Dispatcher) runJob(ctx context.Context, input *ContainerInput) {
	var result *AutoTestResult

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("grading job panicked",
				"commit", input.Target.CommitSHA, "panic", r)
		}
		if result == nil {
			result = errorResult(input, "grading job aborted before producing a result")
		}
		d.HandleExecutionComplete(ctx, result)
	}()

	tracer := otel.Tracer("gradeplane-dispatcher")
	jobCtx, span := tracer.Start(ctx, "grading_job",
		trace.WithAttributes(
			attribute.String("commit.sha", input.Target.CommitSHA),
			attribute.String("deliv.id", input.Target.DelivID),
			attribute.String("repo.id", input.Target.RepoID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	job := NewJob(input, d.fetcher, d.workRoot, d.logger)

	if err := job.Prepare(jobCtx); err != nil {
		span.RecordError(err)
		d.logger.Error("job preparation failed",
			"commit", input.Target.CommitSHA, "error", err)
		result = errorResult(input, err.Error())
		return
	}

	result = job.Run(jobCtx, d.runtime)
	span.SetAttributes(attribute.String("result.state", string(result.Output.State)))

	d.emitGrade(jobCtx, result)
}

// emitGrade sends the partial grade for a completed run to the grade
// sink. Sink failures are logged and swallowed.
func (d *Dispatcher) emitGrade(ctx context.Context, result *AutoTestResult) {
	score, ok := result.Score()
	if !ok {
		return
	}
	grade := api.GradeTransport{
		DelivID:   result.DelivID,
		RepoID:    result.RepoID,
		RepoURL:   result.Input.Target.CloneURL,
		Score:     score,
		URLName:   result.CommitSHA,
		URL:       result.CommitURL,
		Timestamp: result.Output.Timestamp,
	}
	if err := d.gradeSink.SaveGrade(ctx, grade); err != nil {
		d.logger.Error("grade sink rejected grade",
			"commit", result.CommitSHA, "error", err)
	}
}

// HandleExecutionComplete is the completion hook invoked once per
// grading run. It persists the result, runs the extension point, frees
// the slot on whichever tier held it and re-ticks.
func (d *Dispatcher) HandleExecutionComplete(ctx context.Context, result *AutoTestResult) {
	if result == nil || result.CommitSHA == "" || result.CommitURL == "" || result.Input == nil {
		d.logger.Error("dropping malformed grading result", "result", result)
		if result != nil && result.Input != nil {
			d.clearAndTick(ctx, result.Input)
		}
		return
	}

	if err := d.resultSink.SaveResult(ctx, result); err != nil {
		d.logger.Error("result sink rejected record",
			"commit", result.CommitSHA, "error", err)
	}

	if d.processExecution != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("processExecution panicked", "panic", r)
				}
			}()
			if err := d.processExecution(ctx, result); err != nil {
				d.logger.Error("processExecution failed",
					"commit", result.CommitSHA, "error", err)
			}
		}()
	}

	d.clearAndTick(ctx, result.Input)
}

// clearAndTick frees the slot for the input on all tiers (the job lives
// in exactly one; ClearExecution is idempotent) and advances the
// scheduler so freed capacity is reused within one tick.
func (d *Dispatcher) clearAndTick(ctx context.Context, input *ContainerInput) {
	d.mu.Lock()
	defer d.mu.Unlock()

	commitURL, delivID := input.Target.CommitURL, input.Target.DelivID
	d.express.ClearExecution(commitURL, delivID)
	d.standard.ClearExecution(commitURL, delivID)
	d.regression.ClearExecution(commitURL, delivID)

	d.tickLocked(ctx)
}

// TierStatus snapshots the tiers for gauges and the operator endpoint.
func (d *Dispatcher) TierStatus() []api.QueueTierStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	tiers := make([]api.QueueTierStatus, 0, 3)
	for _, q := range []*JobQueue{d.express, d.standard, d.regression} {
		tiers = append(tiers, api.QueueTierStatus{
			Name:     q.Name(),
			Waiting:  q.Len(),
			Running:  q.NumRunning(),
			Capacity: q.Capacity(),
		})
	}
	return tiers
}

// IsCommitExecuting reports whether the pair occupies a slot on any tier.
func (d *Dispatcher) IsCommitExecuting(commitURL, delivID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.express.IsCommitExecuting(commitURL, delivID) ||
		d.standard.IsCommitExecuting(commitURL, delivID) ||
		d.regression.IsCommitExecuting(commitURL, delivID)
}

func errorResult(input *ContainerInput, msg string) *AutoTestResult {
	return &AutoTestResult{
		CommitSHA: input.Target.CommitSHA,
		CommitURL: input.Target.CommitURL,
		DelivID:   input.Target.DelivID,
		RepoID:    input.Target.RepoID,
		Input:     input,
		Output: ResultOutput{
			State: ResultStateFail,
			Error: msg,
		},
	}
}
