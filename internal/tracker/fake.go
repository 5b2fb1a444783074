package tracker

import (
	"context"
	"sync"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Fake is an in-memory Tracker for tests and dry runs.
type Fake struct {
	mu        sync.Mutex
	nextIssue int
	Issues    map[int]*Issue
	ClosedPRs []int
	Comments  map[int][]string
	Branches  map[string]bool
	Remaining int // rate budget; negative means unlimited
}

// NewFake returns an empty fake with an unlimited rate budget.
func NewFake() *Fake {
	return &Fake{
		nextIssue: 1,
		Issues:    map[int]*Issue{},
		Comments:  map[int][]string{},
		Branches:  map[string]bool{},
		Remaining: -1,
	}
}

func (f *Fake) RateLimit(ctx context.Context) (RateLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Remaining < 0 {
		return RateLimit{Remaining: 5000, Limit: 5000}, nil
	}
	return RateLimit{Remaining: f.Remaining, Limit: 5000}, nil
}

func (f *Fake) ListOpenSpecIssues(ctx context.Context) ([]Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Issue
	for _, is := range f.Issues {
		if is.State == "open" && hasLabel(is.Labels, models.LabelSpec) {
			out = append(out, *is)
		}
	}
	return out, nil
}

func (f *Fake) CreateSpecIssue(ctx context.Context, item models.WorkItem) (Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	is := Issue{
		Number: f.nextIssue,
		Title:  IssueTitle(item),
		Labels: IssueLabels(item),
		State:  "open",
	}
	f.Issues[is.Number] = &is
	f.nextIssue++
	return is, nil
}

func (f *Fake) AddLabels(ctx context.Context, issueNumber int, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, ok := f.Issues[issueNumber]
	if !ok {
		is = &Issue{Number: issueNumber, State: "open"}
		f.Issues[issueNumber] = is
	}
	for _, l := range labels {
		if !hasLabel(is.Labels, l) {
			is.Labels = append(is.Labels, l)
		}
	}
	return nil
}

func (f *Fake) RemoveLabel(ctx context.Context, issueNumber int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, ok := f.Issues[issueNumber]
	if !ok {
		return nil
	}
	out := is.Labels[:0]
	for _, l := range is.Labels {
		if l != label {
			out = append(out, l)
		}
	}
	is.Labels = out
	return nil
}

func (f *Fake) ClosePR(ctx context.Context, prNumber int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClosedPRs = append(f.ClosedPRs, prNumber)
	return nil
}

func (f *Fake) CommentPR(ctx context.Context, prNumber int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Comments[prNumber] = append(f.Comments[prNumber], body)
	return nil
}

func (f *Fake) DeleteBranch(ctx context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Branches, branch)
	return nil
}

// LabelsOf returns the labels currently on an issue.
func (f *Fake) LabelsOf(issueNumber int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if is, ok := f.Issues[issueNumber]; ok {
		return append([]string(nil), is.Labels...)
	}
	return nil
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

var _ Tracker = (*Fake)(nil)
var _ Tracker = (*Client)(nil)
