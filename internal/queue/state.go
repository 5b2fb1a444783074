// Package queue is the sole authority over the persisted queue document.
// Every mutation is a whole-document load, mutate, save; atomicity comes
// from the single serializing orchestrator plus the guard sets, not from OS
// file locks.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

var (
	ErrNotFound         = errors.New("work item not found")
	ErrNotInBucket      = errors.New("work item not in expected bucket")
	ErrFileLocked       = errors.New("file already claimed by an active item")
	ErrSpecActive       = errors.New("spec already active")
	ErrRetriesExhausted = errors.New("retry budget exhausted")
	ErrCorruptQueue     = errors.New("corrupted queue document")
)

// NewState returns an empty queue document with the given tunables.
func NewState(cfg models.QueueConfig) *models.QueueState {
	return &models.QueueState{
		Version:   models.DefaultQueueVersion,
		Pending:   map[string]*models.WorkItem{},
		Active:    map[string]*models.WorkItem{},
		Completed: map[string]*models.WorkItem{},
		Failed:    map[string]*models.WorkItem{},
		Config:    cfg,
	}
}

// bucket returns the map backing one status bucket.
func bucket(st *models.QueueState, status string) (map[string]*models.WorkItem, error) {
	switch status {
	case models.StatusPending:
		return st.Pending, nil
	case models.StatusActive:
		return st.Active, nil
	case models.StatusCompleted:
		return st.Completed, nil
	case models.StatusFailed:
		return st.Failed, nil
	default:
		return nil, fmt.Errorf("unknown bucket %q", status)
	}
}

// find locates a spec id in whichever bucket holds it.
func find(st *models.QueueState, specID string) (*models.WorkItem, string) {
	for _, status := range []string{models.StatusPending, models.StatusActive, models.StatusCompleted, models.StatusFailed} {
		b, _ := bucket(st, status)
		if it, ok := b[specID]; ok {
			return it, status
		}
	}
	return nil, ""
}

// IsFileLocked reports whether some active item has claimed the file path.
func IsFileLocked(st *models.QueueState, filePath string) bool {
	for _, f := range st.ActiveFiles {
		if f == filePath {
			return true
		}
	}
	return false
}

// addActiveFile claims a file path for an active item. Callers must check
// IsFileLocked first; claiming a locked file is an invariant violation.
func addActiveFile(st *models.QueueState, filePath string) error {
	if IsFileLocked(st, filePath) {
		return fmt.Errorf("%w: %s", ErrFileLocked, filePath)
	}
	st.ActiveFiles = append(st.ActiveFiles, filePath)
	sort.Strings(st.ActiveFiles)
	return nil
}

func removeActiveFile(st *models.QueueState, filePath string) {
	out := st.ActiveFiles[:0]
	for _, f := range st.ActiveFiles {
		if f != filePath {
			out = append(out, f)
		}
	}
	st.ActiveFiles = out
}

func isSpecActive(st *models.QueueState, specID string) bool {
	for _, s := range st.ActiveSpecs {
		if s == specID {
			return true
		}
	}
	return false
}

func addActiveSpec(st *models.QueueState, specID string) error {
	if isSpecActive(st, specID) {
		return fmt.Errorf("%w: %s", ErrSpecActive, specID)
	}
	st.ActiveSpecs = append(st.ActiveSpecs, specID)
	sort.Strings(st.ActiveSpecs)
	return nil
}

func removeActiveSpec(st *models.QueueState, specID string) {
	out := st.ActiveSpecs[:0]
	for _, s := range st.ActiveSpecs {
		if s != specID {
			out = append(out, s)
		}
	}
	st.ActiveSpecs = out
}

// appendError records one attempt error, keeping the history bounded and
// ordered oldest first.
func appendError(it *models.WorkItem, se models.SpecError) {
	it.Errors = append(it.Errors, se)
	if n := len(it.Errors); n > models.DefaultErrorHistoryMax {
		it.Errors = it.Errors[n-models.DefaultErrorHistoryMax:]
	}
}

// Verify checks the document invariants: the four buckets partition the
// known set, every item's status matches its bucket, and the guard sets
// exactly mirror the active bucket. A violation means the document was
// mutated outside this package or corrupted on disk.
func Verify(st *models.QueueState) error {
	seen := map[string]string{}
	for _, status := range []string{models.StatusPending, models.StatusActive, models.StatusCompleted, models.StatusFailed} {
		b, _ := bucket(st, status)
		for id, it := range b {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("%w: %s present in both %s and %s", ErrCorruptQueue, id, prev, status)
			}
			seen[id] = status
			if it.Status != status {
				return fmt.Errorf("%w: %s has status %q in bucket %q", ErrCorruptQueue, id, it.Status, status)
			}
		}
	}

	wantFiles := map[string]bool{}
	wantSpecs := map[string]bool{}
	for id, it := range st.Active {
		wantFiles[it.FilePath] = true
		wantSpecs[id] = true
	}
	if len(wantFiles) != len(st.ActiveFiles) || len(wantSpecs) != len(st.ActiveSpecs) {
		return fmt.Errorf("%w: guard sets do not mirror the active bucket", ErrCorruptQueue)
	}
	for _, f := range st.ActiveFiles {
		if !wantFiles[f] {
			return fmt.Errorf("%w: activeFiles holds %q with no active item", ErrCorruptQueue, f)
		}
	}
	for _, s := range st.ActiveSpecs {
		if !wantSpecs[s] {
			return fmt.Errorf("%w: activeSpecs holds %q with no active item", ErrCorruptQueue, s)
		}
	}
	return nil
}

// Snapshot is the read-only view returned by Status.
type Snapshot struct {
	Pending   []*models.WorkItem
	Active    []*models.WorkItem
	Completed []*models.WorkItem
	Failed    []*models.WorkItem
	Metrics   models.QueueMetrics
	UpdatedAt time.Time
}

func sortedItems(b map[string]*models.WorkItem) []*models.WorkItem {
	out := make([]*models.WorkItem, 0, len(b))
	for _, it := range b {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].SpecID < out[j].SpecID
	})
	return out
}
