// Package store contains the database layer for gradeplane.
package store

import "time"

// PersonKind distinguishes students from course staff.
type PersonKind string

const (
	PersonKindStudent PersonKind = "student"
	PersonKindStaff   PersonKind = "staff"
)

// Person represents a course participant.
// SdmmStatus caches the last computed progression status; the raw facts
// (repos, teams, grades) remain the source of truth.
type Person struct {
	ID         string
	GithubID   string
	Kind       PersonKind
	SdmmStatus string
	Custom     map[string]string
	CreatedAt  time.Time
}

// Team represents a grading team. OnD0..OnD3 indicate which
// deliverables the team covers.
type Team struct {
	ID      string
	Members []string
	OnD0    bool
	OnD1    bool
	OnD2    bool
	OnD3    bool
	URL     string
	Custom  map[string]string
}

// Repository represents a provisioned student repository.
type Repository struct {
	ID            string
	URL           string
	TeamIDs       []string
	D0Enabled     bool
	D1Enabled     bool
	D2Enabled     bool
	D3Enabled     bool
	D3PullRequest bool
	Custom        map[string]string
}

// PlaceholderScore marks a grade row that was provisioned but not yet earned.
const PlaceholderScore = -1

// Grade is one (person-or-repo, deliverable) grade record.
// Score is PlaceholderScore until a grading run produces a real value.
type Grade struct {
	PersonID  string
	DelivID   string
	Score     float64
	URL       string
	Comment   string
	Timestamp int64
	Custom    map[string]string
}

// IsPlaceholder reports whether the grade has not been earned yet.
func (g *Grade) IsPlaceholder() bool {
	return g.Score == PlaceholderScore
}

// ResultRecord is one stored grading result. Payload carries the full
// result document; the indexed columns exist for lookup only.
type ResultRecord struct {
	CommitSHA string
	CommitURL string
	DelivID   string
	RepoID    string
	Payload   []byte
	CreatedAt time.Time
}
