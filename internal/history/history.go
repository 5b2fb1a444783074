// Package history is the durable per-attempt audit log. The queue document
// only keeps a bounded error window per item; the history store keeps every
// attempt ever made, for reporting across runs.
package history

import (
	"context"
	"time"
)

// Attempt is one completed worker run against one spec.
type Attempt struct {
	ID         int64         `json:"id"`
	SpecID     string        `json:"spec_id"`
	Attempt    int           `json:"attempt"`
	Class      string        `json:"class"`
	Message    string        `json:"message,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	PRNumber   int           `json:"pr_number,omitempty"`
	Branch     string        `json:"branch,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Store persists attempts. Implementations: SQLite (default, zero setup)
// and PostgreSQL for shared deployments.
type Store interface {
	RecordAttempt(ctx context.Context, a Attempt) (int64, error)
	AttemptsFor(ctx context.Context, specID string) ([]Attempt, error)
	RecentAttempts(ctx context.Context, limit int) ([]Attempt, error)
	ClassCounts(ctx context.Context) (map[string]int, error)
	Close() error
}
