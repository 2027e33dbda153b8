package autotest

import (
	"context"
	"encoding/json"
	"fmt"

	"gradeplane/internal/store"
	"gradeplane/pkg/api"
)

// StoreResultSink persists grading results as opaque records.
type StoreResultSink struct {
	Results store.ResultStore
}

// SaveResult implements ResultSink on top of the result store.
func (s StoreResultSink) SaveResult(ctx context.Context, result *AutoTestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return s.Results.SaveResultRecord(ctx, &store.ResultRecord{
		CommitSHA: result.CommitSHA,
		CommitURL: result.CommitURL,
		DelivID:   result.DelivID,
		RepoID:    result.RepoID,
		Payload:   payload,
	})
}

// StoreGradeSink upserts grade transports as grade rows keyed on the
// repository, matching how partial grades are reported.
type StoreGradeSink struct {
	Grades store.GradeStore
}

// SaveGrade implements GradeSink on top of the grade store.
func (s StoreGradeSink) SaveGrade(ctx context.Context, grade api.GradeTransport) error {
	return s.Grades.SaveGrade(ctx, &store.Grade{
		PersonID:  grade.RepoID,
		DelivID:   grade.DelivID,
		Score:     grade.Score,
		URL:       grade.URL,
		Comment:   grade.Comment,
		Timestamp: grade.Timestamp,
		Custom:    grade.Custom,
	})
}
