package autotest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// FeedbackPoster delivers grading feedback to a result's postback URL.
// It is installed on the dispatcher as the post-result extension; the
// dispatcher swallows its errors, so a broken comment endpoint never
// blocks the queues.
type FeedbackPoster struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFeedbackPoster creates a poster with a bounded request timeout.
func NewFeedbackPoster(logger *slog.Logger) *FeedbackPoster {
	return &FeedbackPoster{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type feedbackComment struct {
	Body string `json:"body"`
}

// ProcessExecution posts a summary comment for the completed run.
// Results without a real postback URL are skipped.
func (p *FeedbackPoster) ProcessExecution(ctx context.Context, result *AutoTestResult) error {
	url := result.Input.Target.PostbackURL
	if url == "" || url == PostbackEmpty || url == PostbackSentinel {
		return nil
	}

	body := feedbackComment{Body: p.summarize(result)}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("postback returned status %d", resp.StatusCode)
	}
	p.logger.Info("posted feedback", "commit", result.CommitSHA, "deliv", result.DelivID)
	return nil
}

func (p *FeedbackPoster) summarize(result *AutoTestResult) string {
	switch result.Output.State {
	case ResultStateTimeout:
		return fmt.Sprintf("Grading for %s timed out. Check for infinite loops or long-running tests.", result.DelivID)
	case ResultStateInvalidReport:
		return fmt.Sprintf("Grading for %s did not produce a readable report. Make sure the test suite runs to completion.", result.DelivID)
	}
	if score, ok := result.Score(); ok {
		msg := fmt.Sprintf("Grade for %s: %.1f%%", result.DelivID, score)
		if result.Output.Report != nil && result.Output.Report.Feedback != "" {
			msg += "\n\n" + result.Output.Report.Feedback
		}
		return msg
	}
	return fmt.Sprintf("Grading for %s finished without a score. Contact the course staff if this persists.", result.DelivID)
}
