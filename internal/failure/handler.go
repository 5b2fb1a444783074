// Package failure turns a worker's terminal report into queue transitions
// and tracker updates. Every class maps to exactly one policy row, so the
// handler is a table lookup plus plumbing rather than a branch forest.
package failure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sovrium/sovrium-sub014/internal/queue"
	"github.com/sovrium/sovrium-sub014/internal/tracker"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Policy describes how one failure class is treated.
type Policy struct {
	// Penalize counts the attempt against the item's retry budget.
	Penalize bool
	// CloseSurface closes the PR and deletes the branch so the next
	// attempt starts from a clean slate.
	CloseSurface bool
	// Guide is shown to the human when the retry budget is exhausted.
	Guide string
}

var policies = map[string]Policy{
	models.ClassInfrastructure: {
		CloseSurface: true,
	},
	models.ClassSpecFailure: {
		Penalize:     true,
		CloseSurface: true,
		Guide:        "Reconsider the spec's expectation or the implementation approach; automatic retries did not converge.",
	},
	models.ClassRegression: {
		Penalize:     true,
		CloseSurface: true,
		Guide:        "Inspect the affected specs for a breaking change or a missing migration before retrying.",
	},
	models.ClassQualityFailure: {
		Penalize:     true,
		CloseSurface: true,
		Guide:        "Run the formatter, linter, and type checker locally and fix every finding before retrying.",
	},
	models.ClassUnknown: {
		Penalize:     true,
		CloseSurface: true,
		Guide:        "The worker's report could not be classified; inspect its raw output manually.",
	},
}

// Handler applies the policy table to one report at a time.
type Handler struct {
	queue      *queue.Manager
	tracker    tracker.Tracker
	maxRetries int
	now        func() time.Time
}

func New(q *queue.Manager, t tracker.Tracker, maxRetries int) *Handler {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &Handler{queue: q, tracker: t, maxRetries: maxRetries, now: time.Now}
}

// Handle processes the single terminal report for an active item. The queue
// transition is the source of truth; tracker updates are best-effort and only
// logged when they fail.
func (h *Handler) Handle(ctx context.Context, item models.WorkItem, report models.WorkerReport) error {
	if report.PRNumber != nil || report.Branch != nil {
		if err := h.queue.SetTrackerLink(item.SpecID, nil, report.PRNumber, report.Branch); err != nil {
			return fmt.Errorf("record surface link: %w", err)
		}
		if report.PRNumber != nil {
			item.PRNumber = report.PRNumber
		}
		if report.Branch != nil {
			item.Branch = report.Branch
		}
	}

	class := models.ParseFailureClass(report.Class)
	if class == models.ClassSuccess {
		return h.success(ctx, item)
	}

	se := models.SpecError{
		Timestamp:     h.now().UTC(),
		Type:          class,
		Message:       report.Message,
		Detail:        report.Detail,
		AffectedSpecs: report.AffectedSpecs,
	}
	pol := policies[class]
	if !pol.Penalize {
		return h.infrastructure(ctx, item, se)
	}
	return h.codeFailure(ctx, item, se, pol)
}

func (h *Handler) success(ctx context.Context, item models.WorkItem) error {
	if err := h.queue.Complete(item.SpecID); err != nil {
		return err
	}
	if item.IssueNumber != nil {
		n := *item.IssueNumber
		if err := h.tracker.RemoveLabel(ctx, n, models.LabelInProgress); err != nil {
			slog.Warn("remove in-progress label", "spec_id", item.SpecID, "err", err)
		}
	}
	slog.Info("spec completed", "spec_id", item.SpecID, "attempts", item.Attempts)
	return nil
}

// infrastructure failures are the system's fault: the surface is torn down
// and the item goes back to pending with its retry budget untouched.
func (h *Handler) infrastructure(ctx context.Context, item models.WorkItem, se models.SpecError) error {
	h.closeSurface(ctx, item)
	h.relabel(ctx, item, []string{models.LabelInProgress}, []string{models.LabelQueued})
	if err := h.queue.RequeueWithoutPenalty(item.SpecID, se); err != nil {
		return err
	}
	slog.Warn("infrastructure failure, requeued without penalty",
		"spec_id", item.SpecID, "message", se.Message)
	return nil
}

func (h *Handler) codeFailure(ctx context.Context, item models.WorkItem, se models.SpecError, pol Policy) error {
	err := h.queue.RecordFailureAndRequeue(item.SpecID, se)
	if errors.Is(err, queue.ErrRetriesExhausted) {
		return h.escalate(ctx, item, se, pol)
	}
	if err != nil {
		return err
	}

	attempts := item.Attempts + 1
	if pol.CloseSurface {
		h.closeSurface(ctx, item)
	}
	h.relabel(ctx, item,
		[]string{models.LabelInProgress, tracker.RetryLabel(item.Attempts, h.maxRetries)},
		[]string{models.LabelQueued, tracker.RetryLabel(attempts, h.maxRetries)})
	slog.Warn("attempt failed, requeued",
		"spec_id", item.SpecID, "class", se.Type, "attempts", attempts, "max", h.maxRetries)
	return nil
}

// escalate keeps the PR open for the human, leaves the diagnostics on it,
// and parks the item in the terminal failed bucket.
func (h *Handler) escalate(ctx context.Context, item models.WorkItem, se models.SpecError, pol Policy) error {
	reason := fmt.Sprintf("%s after %d attempts: %s", se.Type, item.Attempts+1, se.Message)
	if err := h.queue.EscalateFailure(item.SpecID, se, reason, pol.Guide); err != nil {
		return err
	}
	h.relabel(ctx, item,
		[]string{models.LabelInProgress, models.LabelQueued, tracker.RetryLabel(item.Attempts, h.maxRetries)},
		[]string{models.LabelManualIntervention})
	if item.PRNumber != nil {
		body := fmt.Sprintf("Escalated to manual intervention: %s\n\n%s", reason, pol.Guide)
		if err := h.tracker.CommentPR(ctx, *item.PRNumber, body); err != nil {
			slog.Warn("comment pr", "spec_id", item.SpecID, "pr", *item.PRNumber, "err", err)
		}
	}
	slog.Error("spec escalated to manual intervention",
		"spec_id", item.SpecID, "class", se.Type, "reason", reason)
	return nil
}

func (h *Handler) closeSurface(ctx context.Context, item models.WorkItem) {
	if item.PRNumber != nil {
		if err := h.tracker.ClosePR(ctx, *item.PRNumber); err != nil {
			slog.Warn("close pr", "spec_id", item.SpecID, "pr", *item.PRNumber, "err", err)
		}
	}
	if item.Branch != nil {
		if err := h.tracker.DeleteBranch(ctx, *item.Branch); err != nil {
			slog.Warn("delete branch", "spec_id", item.SpecID, "branch", *item.Branch, "err", err)
		}
	}
}

func (h *Handler) relabel(ctx context.Context, item models.WorkItem, remove, add []string) {
	if item.IssueNumber == nil {
		return
	}
	n := *item.IssueNumber
	for _, l := range remove {
		if err := h.tracker.RemoveLabel(ctx, n, l); err != nil {
			slog.Warn("remove label", "spec_id", item.SpecID, "label", l, "err", err)
		}
	}
	if len(add) > 0 {
		if err := h.tracker.AddLabels(ctx, n, add...); err != nil {
			slog.Warn("add labels", "spec_id", item.SpecID, "labels", add, "err", err)
		}
	}
}
