// Package tracker is the rate-limit-aware view into the external issue/PR
// tracker. Issues double as a secondary queue surface: existence is encoded
// in a structured label/title convention so bulk queries replace rate-limited
// one-by-one lookups.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// ErrRateLimited is returned when the remaining request budget is below the
// floor needed for a bulk operation. Bulk callers treat it as a hard stop.
var ErrRateLimited = errors.New("tracker rate limit exceeded")

// rateLimitFloor is the minimum remaining budget required before any bulk
// operation starts.
const rateLimitFloor = 50

// Issue is one tracker entry for a spec.
type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	State  string   `json:"state"`
}

// SpecID extracts the structured spec id from an issue title of the form
// "[APP-NAME-001] description"; empty when the title does not follow the
// convention.
func (i Issue) SpecID() string {
	t := strings.TrimSpace(i.Title)
	if !strings.HasPrefix(t, "[") {
		return ""
	}
	end := strings.IndexByte(t, ']')
	if end < 2 {
		return ""
	}
	return t[1:end]
}

// RateLimit is the current request budget.
type RateLimit struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// Tracker is the external tracker surface the orchestrator drives.
type Tracker interface {
	// RateLimit reports the remaining request budget.
	RateLimit(ctx context.Context) (RateLimit, error)

	// ListOpenSpecIssues bulk-reads every open issue carrying the spec
	// label, paginated internally.
	ListOpenSpecIssues(ctx context.Context) ([]Issue, error)

	// CreateSpecIssue creates the tracker entry for a work item.
	CreateSpecIssue(ctx context.Context, item models.WorkItem) (Issue, error)

	// Label mutations reflecting queue state.
	AddLabels(ctx context.Context, issueNumber int, labels ...string) error
	RemoveLabel(ctx context.Context, issueNumber int, label string) error

	// PR operations used during failure handling.
	ClosePR(ctx context.Context, prNumber int) error
	CommentPR(ctx context.Context, prNumber int, body string) error
	DeleteBranch(ctx context.Context, branch string) error
}

// IssueTitle renders the structured title for a work item.
func IssueTitle(item models.WorkItem) string {
	return fmt.Sprintf("[%s] %s", item.SpecID, item.Description)
}

// IssueLabels renders the initial label set for a work item.
func IssueLabels(item models.WorkItem) []string {
	return []string{
		models.LabelSpec,
		models.LabelQueued,
		fmt.Sprintf("%s%d", models.LabelPriorityPrefix, item.Priority),
	}
}

// RetryLabel renders the retry-pressure label, e.g. "retry:2/3".
func RetryLabel(attempts, max int) string {
	return fmt.Sprintf("%s%d/%d", models.LabelRetryPrefix, attempts, max)
}

// CheckBudget verifies the rate limit leaves room for a bulk operation.
func CheckBudget(ctx context.Context, t Tracker) error {
	rl, err := t.RateLimit(ctx)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if rl.Remaining < rateLimitFloor {
		return fmt.Errorf("%w: %d of %d remaining", ErrRateLimited, rl.Remaining, rl.Limit)
	}
	return nil
}
