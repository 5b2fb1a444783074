package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Manager owns the queue document at one path. Mutations are serialized
// internally, so concurrent dispatch cycles within one process see a single
// logical writer. Cross-process exclusivity is the run lock's job.
type Manager struct {
	mu   sync.Mutex
	path string
	cfg  models.QueueConfig
	now  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager for the document at path. cfg seeds the
// document when none exists yet.
func NewManager(path string, cfg models.QueueConfig, opts ...Option) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = models.DefaultMaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	m := &Manager{path: path, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load reads the queue document. A missing file yields a fresh empty state;
// an unparseable or invariant-violating one is ErrCorruptQueue.
func (m *Manager) Load() (*models.QueueState, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(m.cfg), nil
		}
		return nil, err
	}
	st := NewState(m.cfg)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	for _, b := range []map[string]*models.WorkItem{st.Pending, st.Active, st.Completed, st.Failed} {
		if b == nil {
			return nil, fmt.Errorf("%w: missing bucket", ErrCorruptQueue)
		}
	}
	if err := Verify(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Save writes the document atomically: temp file in the same directory, then
// rename over the target.
func (m *Manager) Save(st *models.QueueState) error {
	st.UpdatedAt = m.now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".queue-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), m.path)
}

// mutate runs one whole-document read-modify-write cycle.
func (m *Manager) mutate(fn func(st *models.QueueState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.Load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return m.Save(st)
}

// Enqueue admits newly scanned items as pending. Items whose (file path,
// spec id) pair is already known to any bucket are skipped, so a rescan
// never resurrects or duplicates work. Returns the number admitted.
func (m *Manager) Enqueue(items []models.WorkItem) (int, error) {
	added := 0
	err := m.mutate(func(st *models.QueueState) error {
		for _, raw := range items {
			if existing, _ := find(st, raw.SpecID); existing != nil {
				continue
			}
			it := raw
			it.Status = models.StatusPending
			it.Attempts = 0
			now := m.now().UTC()
			it.CreatedAt = now
			it.UpdatedAt = now
			st.Pending[it.SpecID] = &it
			added++
		}
		return nil
	})
	return added, err
}

// Claim moves a pending item to active, claiming both guard sets. The claim
// fails if the item's file is locked or the spec is somehow already active.
func (m *Manager) Claim(specID string) (*models.WorkItem, error) {
	var claimed *models.WorkItem
	err := m.mutate(func(st *models.QueueState) error {
		it, ok := st.Pending[specID]
		if !ok {
			if _, where := find(st, specID); where != "" {
				return fmt.Errorf("%w: %s is %s, want pending", ErrNotInBucket, specID, where)
			}
			return fmt.Errorf("%w: %s", ErrNotFound, specID)
		}
		if err := addActiveFile(st, it.FilePath); err != nil {
			return err
		}
		if err := addActiveSpec(st, specID); err != nil {
			removeActiveFile(st, it.FilePath)
			return err
		}
		delete(st.Pending, specID)
		it.Status = models.StatusActive
		it.UpdatedAt = m.now().UTC()
		st.Active[specID] = it
		cp := *it
		claimed = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Transition moves an item between buckets after verifying it currently sits
// in from. It fails loudly otherwise: silent continuation would corrupt the
// partition invariant.
func (m *Manager) Transition(specID, from, to string) error {
	return m.mutate(func(st *models.QueueState) error {
		return transition(st, specID, from, to, m.now().UTC())
	})
}

func transition(st *models.QueueState, specID, from, to string, now time.Time) error {
	src, err := bucket(st, from)
	if err != nil {
		return err
	}
	dst, err := bucket(st, to)
	if err != nil {
		return err
	}
	it, ok := src[specID]
	if !ok {
		if _, where := find(st, specID); where != "" {
			return fmt.Errorf("%w: %s is %s, want %s", ErrNotInBucket, specID, where, from)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, specID)
	}
	if from == models.StatusActive {
		removeActiveFile(st, it.FilePath)
		removeActiveSpec(st, specID)
	}
	if to == models.StatusActive {
		if err := addActiveFile(st, it.FilePath); err != nil {
			return err
		}
		if err := addActiveSpec(st, specID); err != nil {
			removeActiveFile(st, it.FilePath)
			return err
		}
	}
	delete(src, specID)
	it.Status = to
	it.UpdatedAt = now
	if to == models.StatusCompleted {
		done := now
		it.CompletedAt = &done
	}
	dst[specID] = it
	return nil
}

// RecordFailureAndRequeue appends the error to the item's bounded history,
// increments attempts, releases the guards, and returns the item to pending.
// When the increment would consume the last of the budget it refuses with
// ErrRetriesExhausted instead, leaving the item active for the caller to
// escalate: the final failure must never earn another dispatch.
func (m *Manager) RecordFailureAndRequeue(specID string, se models.SpecError) error {
	return m.mutate(func(st *models.QueueState) error {
		it, ok := st.Active[specID]
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotInBucket, specID)
		}
		if it.Attempts+1 >= st.Config.MaxRetries {
			return fmt.Errorf("%w: %s attempt %d/%d", ErrRetriesExhausted, specID, it.Attempts+1, st.Config.MaxRetries)
		}
		appendError(it, se)
		it.Attempts++
		st.Metrics.TotalProcessed++
		return transition(st, specID, models.StatusActive, models.StatusPending, m.now().UTC())
	})
}

// RequeueWithoutPenalty is RecordFailureAndRequeue minus the attempts
// increment, reserved for failures the system itself caused so they never
// consume a code item's retry budget.
func (m *Manager) RequeueWithoutPenalty(specID string, se models.SpecError) error {
	return m.mutate(func(st *models.QueueState) error {
		it, ok := st.Active[specID]
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotInBucket, specID)
		}
		appendError(it, se)
		st.Metrics.InfraRetries++
		return transition(st, specID, models.StatusActive, models.StatusPending, m.now().UTC())
	})
}

// MoveToManualIntervention escalates an active item to the terminal failed
// bucket with a failure reason and a class-tailored action guide. No further
// automatic transition happens without an explicit ResetFailed.
func (m *Manager) MoveToManualIntervention(specID, reason, requiredAction string) error {
	return m.mutate(func(st *models.QueueState) error {
		it, ok := st.Active[specID]
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotInBucket, specID)
		}
		it.FailureReason = reason
		it.RequiredAction = requiredAction
		st.Metrics.TotalProcessed++
		st.Metrics.TotalFailed++
		st.Metrics.ManualInterventions++
		return transition(st, specID, models.StatusActive, models.StatusFailed, m.now().UTC())
	})
}

// EscalateFailure is MoveToManualIntervention plus the final attempt's
// diagnostics, recorded in one transaction so the history shows what
// exhausted the budget. The escalating attempt still counts, so a parked
// item reads attempts == max retries.
func (m *Manager) EscalateFailure(specID string, se models.SpecError, reason, requiredAction string) error {
	return m.mutate(func(st *models.QueueState) error {
		it, ok := st.Active[specID]
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotInBucket, specID)
		}
		appendError(it, se)
		it.Attempts++
		it.FailureReason = reason
		it.RequiredAction = requiredAction
		st.Metrics.TotalProcessed++
		st.Metrics.TotalFailed++
		st.Metrics.ManualInterventions++
		return transition(st, specID, models.StatusActive, models.StatusFailed, m.now().UTC())
	})
}

// Complete moves an active item to completed.
func (m *Manager) Complete(specID string) error {
	return m.mutate(func(st *models.QueueState) error {
		st.Metrics.TotalProcessed++
		st.Metrics.TotalSucceeded++
		return transition(st, specID, models.StatusActive, models.StatusCompleted, m.now().UTC())
	})
}

// ResetFailed is the explicit human reset: failed back to pending with a
// fresh retry budget. The error history is kept for the record.
func (m *Manager) ResetFailed(specID string) error {
	return m.mutate(func(st *models.QueueState) error {
		it, ok := st.Failed[specID]
		if !ok {
			return fmt.Errorf("%w: %s not failed", ErrNotInBucket, specID)
		}
		it.Attempts = 0
		it.FailureReason = ""
		it.RequiredAction = ""
		return transition(st, specID, models.StatusFailed, models.StatusPending, m.now().UTC())
	})
}

// SetTrackerLink records the external tracker linkage on an item wherever it
// currently lives.
func (m *Manager) SetTrackerLink(specID string, issue, pr *int, branch *string) error {
	return m.mutate(func(st *models.QueueState) error {
		it, _ := find(st, specID)
		if it == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, specID)
		}
		if issue != nil {
			it.IssueNumber = issue
		}
		if pr != nil {
			it.PRNumber = pr
		}
		if branch != nil {
			it.Branch = branch
		}
		it.UpdatedAt = m.now().UTC()
		return nil
	})
}

// NextReady returns the pending item with the lowest priority value whose
// file is not locked, or nil when nothing is dispatchable. Read-only.
func (m *Manager) NextReady() (*models.WorkItem, error) {
	st, err := m.Load()
	if err != nil {
		return nil, err
	}
	for _, it := range sortedItems(st.Pending) {
		if !IsFileLocked(st, it.FilePath) {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

// Status returns a sorted snapshot of the whole document. Read-only.
func (m *Manager) Status() (*Snapshot, error) {
	st, err := m.Load()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Pending:   sortedItems(st.Pending),
		Active:    sortedItems(st.Active),
		Completed: sortedItems(st.Completed),
		Failed:    sortedItems(st.Failed),
		Metrics:   st.Metrics,
		UpdatedAt: st.UpdatedAt,
	}, nil
}
