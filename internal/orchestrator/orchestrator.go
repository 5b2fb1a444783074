// Package orchestrator composes the scanner, priority calculator, queue,
// tracker, and worker runtime into the operations the CLI exposes. It owns
// no state of its own: every decision is read from or written to the queue
// document.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/sovrium/sovrium-sub014/internal/config"
	"github.com/sovrium/sovrium-sub014/internal/deps"
	"github.com/sovrium/sovrium-sub014/internal/failure"
	"github.com/sovrium/sovrium-sub014/internal/gitops"
	"github.com/sovrium/sovrium-sub014/internal/history"
	"github.com/sovrium/sovrium-sub014/internal/lease"
	"github.com/sovrium/sovrium-sub014/internal/otel"
	"github.com/sovrium/sovrium-sub014/internal/priority"
	"github.com/sovrium/sovrium-sub014/internal/queue"
	"github.com/sovrium/sovrium-sub014/internal/scanner"
	"github.com/sovrium/sovrium-sub014/internal/tracker"
	"github.com/sovrium/sovrium-sub014/internal/worker"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

type Orchestrator struct {
	home    string
	cfg     config.Config
	queue   *queue.Manager
	tracker tracker.Tracker
	runtime worker.Runtime
	handler *failure.Handler
	history history.Store
	now     func() time.Time

	// Serializes the pick-and-claim pair so concurrent dispatch cycles
	// never race for the same item.
	claimMu sync.Mutex
}

type Option func(*Orchestrator)

// WithHistory attaches the durable attempt log.
func WithHistory(st history.Store) Option {
	return func(o *Orchestrator) { o.history = st }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(home string, cfg config.Config, q *queue.Manager, t tracker.Tracker, rt worker.Runtime, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		home:    home,
		cfg:     cfg,
		queue:   q,
		tracker: t,
		runtime: rt,
		handler: failure.New(q, t, cfg.MaxRetries),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Queue exposes the queue manager for read paths (status, gauges).
func (o *Orchestrator) Queue() *queue.Manager { return o.queue }

// ScanSummary reports one scan-and-enqueue pass.
type ScanSummary struct {
	Files      int
	Found      int
	Skipped    int
	Unreadable int
	Enqueued   int
}

// ScanAndEnqueue walks the corpus, prices every discovered spec, records
// the dependency report, and enqueues anything the queue has not seen.
func (o *Orchestrator) ScanAndEnqueue(ctx context.Context) (*ScanSummary, error) {
	start := o.now()
	res, err := scanner.Scan(ctx, o.cfg.CorpusRoot)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}

	calc := o.calculator()
	kept := make([]models.WorkItem, 0, len(res.Items))
	for _, it := range res.Items {
		p, err := calc.Priority(it.SpecID)
		if err != nil {
			slog.Warn("skipping unpriceable spec", "spec_id", it.SpecID, "err", err)
			continue
		}
		it.Priority = p
		kept = append(kept, it)
	}

	persisted := *res
	persisted.Items = kept
	if err := scanner.WriteResults(config.ScanPath(o.home), &persisted); err != nil {
		slog.Warn("scan results not persisted", "err", err)
	}

	an := &deps.Analyzer{Root: o.cfg.CorpusRoot, SourceRoot: o.cfg.SourceRoot, Alias: o.cfg.AliasRoot}
	if err := deps.WriteReport(config.DepsPath(o.home), an.AnalyzeAll(kept)); err != nil {
		slog.Warn("dependency report not persisted", "err", err)
	}

	added, err := o.queue.Enqueue(kept)
	if err != nil {
		return nil, err
	}
	otel.RecordScan(ctx, o.now().Sub(start))
	otel.RecordQueueOp(ctx, "enqueue")
	return &ScanSummary{
		Files:      res.Files,
		Found:      len(kept),
		Skipped:    res.Skipped,
		Unreadable: res.Unreadable,
		Enqueued:   added,
	}, nil
}

func (o *Orchestrator) calculator() *priority.Calculator {
	ds := make([]priority.Domain, 0, len(o.cfg.Domains))
	for _, d := range o.cfg.Domains {
		pd := priority.Domain{Prefix: d.Prefix, Bucket: d.Bucket}
		if d.SchemaPath != "" {
			sp := d.SchemaPath
			if !filepath.IsAbs(sp) {
				sp = filepath.Join(o.cfg.CorpusRoot, sp)
			}
			h, err := priority.LoadHierarchy(sp)
			if err != nil {
				slog.Warn("schema hierarchy unavailable, falling back to lexicographic order",
					"prefix", d.Prefix, "path", sp, "err", err)
			} else {
				pd.Hierarchy = h
			}
		}
		ds = append(ds, pd)
	}
	return priority.NewCalculator(ds)
}

// PopulateSummary reports one tracker population pass.
type PopulateSummary struct {
	Linked  int // existing issues matched by spec id
	Created int
}

// Populate creates tracker entries for queued items that have none. The
// whole pass runs under the populate lease and starts with one bulk
// existence query, so reruns create nothing twice.
func (o *Orchestrator) Populate(ctx context.Context) (*PopulateSummary, error) {
	guard := lease.NewFile(config.LeasePath(o.home))
	if err := guard.Acquire(); err != nil {
		return nil, err
	}
	defer guard.Release()

	if err := tracker.CheckBudget(ctx, o.tracker); err != nil {
		return nil, err
	}
	issues, err := o.tracker.ListOpenSpecIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}
	otel.RecordTrackerCall(ctx, "list_issues")
	byID := make(map[string]int, len(issues))
	for _, is := range issues {
		if id := is.SpecID(); id != "" {
			byID[id] = is.Number
		}
	}

	snap, err := o.queue.Status()
	if err != nil {
		return nil, err
	}
	sum := &PopulateSummary{}
	for _, bucket := range [][]*models.WorkItem{snap.Pending, snap.Active, snap.Failed} {
		for _, it := range bucket {
			if it.IssueNumber != nil {
				continue
			}
			if n, ok := byID[it.SpecID]; ok {
				if err := o.queue.SetTrackerLink(it.SpecID, &n, nil, nil); err != nil {
					return sum, err
				}
				sum.Linked++
				continue
			}
			is, err := o.tracker.CreateSpecIssue(ctx, *it)
			if err != nil {
				return sum, fmt.Errorf("create issue for %s: %w", it.SpecID, err)
			}
			otel.RecordTrackerCall(ctx, "create_issue")
			if err := o.queue.SetTrackerLink(it.SpecID, &is.Number, nil, nil); err != nil {
				return sum, err
			}
			sum.Created++
		}
	}
	return sum, nil
}

// DispatchResult reports one completed dispatch cycle.
type DispatchResult struct {
	SpecID   string
	Class    string
	Message  string
	Duration time.Duration
}

// DispatchNext claims the highest-priority ready item, runs the worker, and
// applies the outcome. Returns (nil, nil) when nothing is ready.
func (o *Orchestrator) DispatchNext(ctx context.Context) (*DispatchResult, error) {
	o.claimMu.Lock()
	next, err := o.queue.NextReady()
	if err != nil {
		o.claimMu.Unlock()
		return nil, err
	}
	if next == nil {
		o.claimMu.Unlock()
		return nil, nil
	}
	claimed, err := o.queue.Claim(next.SpecID)
	o.claimMu.Unlock()
	if err != nil {
		return nil, err
	}
	otel.RecordQueueOp(ctx, "claim")
	if claimed.IssueNumber != nil {
		n := *claimed.IssueNumber
		if err := o.tracker.RemoveLabel(ctx, n, models.LabelQueued); err != nil {
			slog.Warn("remove queued label", "spec_id", claimed.SpecID, "err", err)
		}
		if err := o.tracker.AddLabels(ctx, n, models.LabelInProgress); err != nil {
			slog.Warn("add in-progress label", "spec_id", claimed.SpecID, "err", err)
		}
	}

	a := worker.Assignment{
		SpecID:      claimed.SpecID,
		FilePath:    claimed.FilePath,
		TestName:    claimed.TestName,
		Description: claimed.Description,
		FeaturePath: claimed.FeaturePath,
		Priority:    claimed.Priority,
		Attempt:     claimed.Attempts + 1,
		MaxRetries:  o.cfg.MaxRetries,
		PriorErrors: claimed.Errors,
		CorpusRoot:  o.cfg.CorpusRoot,
		SourceRoot:  o.cfg.SourceRoot,
		Branch:      gitops.BranchName(claimed.FeaturePath, claimed.SpecID),
	}
	start := o.now()
	rep, err := o.runtime.Run(ctx, a)
	dur := o.now().Sub(start)
	if err != nil {
		// No report means the system failed, not the spec.
		rep = models.WorkerReport{
			SpecID:  claimed.SpecID,
			Class:   models.ClassInfrastructure,
			Message: "worker run failed",
			Detail:  err.Error(),
		}
	}
	otel.RecordDispatch(ctx, rep.Class, dur)
	o.recordAttempt(ctx, *claimed, rep, start, dur)

	if err := o.handler.Handle(ctx, *claimed, rep); err != nil {
		return nil, err
	}
	o.cleanupLocal(ctx, *claimed, rep)
	return &DispatchResult{
		SpecID:   claimed.SpecID,
		Class:    rep.Class,
		Message:  rep.Message,
		Duration: dur,
	}, nil
}

func (o *Orchestrator) recordAttempt(ctx context.Context, item models.WorkItem, rep models.WorkerReport, start time.Time, dur time.Duration) {
	if o.history == nil {
		return
	}
	a := history.Attempt{
		SpecID:     item.SpecID,
		Attempt:    item.Attempts + 1,
		Class:      rep.Class,
		Message:    rep.Message,
		Detail:     rep.Detail,
		StartedAt:  start.UTC(),
		FinishedAt: start.Add(dur).UTC(),
		Duration:   dur,
	}
	if rep.PRNumber != nil {
		a.PRNumber = *rep.PRNumber
	}
	if rep.Branch != nil {
		a.Branch = *rep.Branch
	}
	if _, err := o.history.RecordAttempt(ctx, a); err != nil {
		slog.Warn("attempt not recorded in history", "spec_id", item.SpecID, "err", err)
	}
}

// cleanupLocal prunes the local attempt surface depending on where the item
// landed: requeued items start their next attempt from a clean slate,
// completed items just drop the worktree, escalated items keep everything
// for the human.
func (o *Orchestrator) cleanupLocal(ctx context.Context, item models.WorkItem, rep models.WorkerReport) {
	if o.cfg.SourceRoot == "" {
		return
	}
	branch := ""
	if rep.Branch != nil {
		branch = *rep.Branch
	} else if item.Branch != nil {
		branch = *item.Branch
	}
	wt := gitops.WorktreePath(o.home, item.SpecID)

	snap, err := o.queue.Status()
	if err != nil {
		return
	}
	where := ""
	for _, it := range snap.Pending {
		if it.SpecID == item.SpecID {
			where = models.StatusPending
		}
	}
	for _, it := range snap.Completed {
		if it.SpecID == item.SpecID {
			where = models.StatusCompleted
		}
	}
	switch where {
	case models.StatusPending:
		if err := gitops.DeleteLocalBranch(ctx, o.cfg.SourceRoot, branch); err != nil {
			slog.Warn("local branch not deleted", "spec_id", item.SpecID, "branch", branch, "err", err)
		}
		if err := gitops.PruneWorktree(ctx, o.cfg.SourceRoot, wt); err != nil {
			slog.Warn("worktree not pruned", "spec_id", item.SpecID, "err", err)
		}
	case models.StatusCompleted:
		if err := gitops.PruneWorktree(ctx, o.cfg.SourceRoot, wt); err != nil {
			slog.Warn("worktree not pruned", "spec_id", item.SpecID, "err", err)
		}
	}
}

// Report ingests an out-of-band worker's terminal report for an active item.
func (o *Orchestrator) Report(ctx context.Context, rep models.WorkerReport) error {
	if rep.SpecID == "" {
		return fmt.Errorf("report requires a spec id")
	}
	snap, err := o.queue.Status()
	if err != nil {
		return err
	}
	var item *models.WorkItem
	for _, it := range snap.Active {
		if it.SpecID == rep.SpecID {
			item = it
		}
	}
	if item == nil {
		return fmt.Errorf("%w: %s not active", queue.ErrNotInBucket, rep.SpecID)
	}
	otel.RecordDispatch(ctx, models.ParseFailureClass(rep.Class), 0)
	if err := o.handler.Handle(ctx, *item, rep); err != nil {
		return err
	}
	o.cleanupLocal(ctx, *item, rep)
	return nil
}

// Requeue is the manual reset of a failed item back to pending.
func (o *Orchestrator) Requeue(ctx context.Context, specID string) error {
	snap, err := o.queue.Status()
	if err != nil {
		return err
	}
	var item *models.WorkItem
	for _, it := range snap.Failed {
		if it.SpecID == specID {
			item = it
		}
	}
	if item == nil {
		return fmt.Errorf("%w: %s not failed", queue.ErrNotInBucket, specID)
	}
	if err := o.queue.ResetFailed(specID); err != nil {
		return err
	}
	otel.RecordQueueOp(ctx, "requeue")
	if item.IssueNumber != nil {
		n := *item.IssueNumber
		if err := o.tracker.RemoveLabel(ctx, n, models.LabelManualIntervention); err != nil {
			slog.Warn("remove manual-intervention label", "spec_id", specID, "err", err)
		}
		if err := o.tracker.AddLabels(ctx, n, models.LabelQueued); err != nil {
			slog.Warn("add queued label", "spec_id", specID, "err", err)
		}
	}
	return nil
}
