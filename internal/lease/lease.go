// Package lease guards the bulk populate path with a file-backed,
// self-expiring mutual-exclusion marker. Populate is the one non-idempotent
// operation (re-invocation would duplicate tracker entries), so it gets a
// lease; per-item queue transitions do not.
package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// ErrHeld is returned when a fresh lease from another run exists.
var ErrHeld = errors.New("populate lease held by another run")

// StaleAfter is the age past which a lease is treated as abandoned by a
// crashed run and removed.
const StaleAfter = 30 * time.Minute

// Store abstracts the lease file so staleness and ownership are testable
// without real file I/O.
type Store interface {
	Read() (models.Lease, error) // os.ErrNotExist when absent
	Write(models.Lease) error
	Remove() error
}

// Guard acquires and releases the lease.
type Guard struct {
	store Store
	now   func() time.Time
	ttl   time.Duration
	owner string
}

// Option configures a Guard.
type Option func(*g)

type g = Guard

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(gd *g) { gd.now = now } }

// WithTTL overrides the staleness threshold.
func WithTTL(ttl time.Duration) Option { return func(gd *g) { gd.ttl = ttl } }

// WithOwner overrides the generated owner id.
func WithOwner(owner string) Option { return func(gd *g) { gd.owner = owner } }

// New returns a guard over the given store.
func New(store Store, opts ...Option) *Guard {
	gd := &Guard{store: store, now: time.Now, ttl: StaleAfter, owner: uuid.NewString()}
	for _, o := range opts {
		o(gd)
	}
	return gd
}

// NewFile returns a guard over the lease file at path.
func NewFile(path string, opts ...Option) *Guard {
	return New(fileStore{path: path}, opts...)
}

// Acquire takes the lease. An absent file is created; a stale or corrupted
// one is removed and re-taken (self-healing against crashed runs); a fresh
// one refuses with the conflicting run's age.
func (gd *Guard) Acquire() error {
	cur, err := gd.store.Read()
	switch {
	case err == nil:
		age := gd.now().Sub(cur.Timestamp)
		if age <= gd.ttl {
			return fmt.Errorf("%w: owner %s, age %s", ErrHeld, cur.OwnerID, age.Round(time.Second))
		}
		slog.Warn("removing stale populate lease", "owner", cur.OwnerID, "age", age.Round(time.Second))
		if err := gd.store.Remove(); err != nil {
			return err
		}
	case errors.Is(err, os.ErrNotExist):
		// proceed
	default:
		// Unreadable or unparseable lease: safely removable.
		slog.Warn("removing corrupted populate lease", "err", err)
		if err := gd.store.Remove(); err != nil {
			return err
		}
	}
	return gd.store.Write(models.Lease{Timestamp: gd.now().UTC(), OwnerID: gd.owner})
}

// Renew re-stamps the lease, extending it for a long-running populate.
func (gd *Guard) Renew() error {
	return gd.store.Write(models.Lease{Timestamp: gd.now().UTC(), OwnerID: gd.owner})
}

// Release deletes the lease unconditionally; called on every exit path.
func (gd *Guard) Release() {
	if err := gd.store.Remove(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("release populate lease failed", "err", err)
	}
}

// Owner returns the guard's owner id.
func (gd *Guard) Owner() string { return gd.owner }

type fileStore struct {
	path string
}

func (f fileStore) Read() (models.Lease, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Lease{}, os.ErrNotExist
		}
		return models.Lease{}, err
	}
	var l models.Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return models.Lease{}, fmt.Errorf("corrupted lease: %w", err)
	}
	if l.Timestamp.IsZero() {
		return models.Lease{}, errors.New("corrupted lease: missing timestamp")
	}
	return l, nil
}

func (f fileStore) Write(l models.Lease) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}

func (f fileStore) Remove() error {
	err := os.Remove(f.path)
	if err != nil && os.IsNotExist(err) {
		return os.ErrNotExist
	}
	return err
}
