package lease

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease_roundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "populate.lease")
	gd := NewFile(path, WithOwner("run-1"))
	if err := gd.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lease file missing: %v", err)
	}
	gd.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lease file must be deleted on release")
	}
}

func TestAcquire_refusesFreshLease(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "populate.lease")
	first := NewFile(path, WithOwner("run-1"))
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second := NewFile(path, WithOwner("run-2"))
	err := second.Acquire()
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("want ErrHeld, got %v", err)
	}
}

func TestAcquire_reclaimsStaleLease(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "populate.lease")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	crashed := NewFile(path, WithOwner("crashed"), WithClock(func() time.Time { return base }))
	if err := crashed.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Crashed run never releases. 31 minutes later a new run self-heals.
	later := base.Add(31 * time.Minute)
	next := NewFile(path, WithOwner("fresh"), WithClock(func() time.Time { return later }))
	if err := next.Acquire(); err != nil {
		t.Fatalf("stale lease must be reclaimed: %v", err)
	}

	got, err := fileStore{path: path}.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.OwnerID != "fresh" {
		t.Fatalf("owner = %q", got.OwnerID)
	}
}

func TestAcquire_justUnderThresholdStillHeld(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "populate.lease")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = NewFile(path, WithOwner("run-1"), WithClock(func() time.Time { return base })).Acquire()

	almost := base.Add(StaleAfter - time.Second)
	err := NewFile(path, WithOwner("run-2"), WithClock(func() time.Time { return almost })).Acquire()
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("want ErrHeld just under the threshold, got %v", err)
	}
}

func TestAcquire_corruptedLeaseRemoved(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "populate.lease")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	gd := NewFile(path, WithOwner("run-1"))
	if err := gd.Acquire(); err != nil {
		t.Fatalf("corrupted lease must never block: %v", err)
	}
	got, err := fileStore{path: path}.Read()
	if err != nil || got.OwnerID != "run-1" {
		t.Fatalf("lease after heal = %+v, %v", got, err)
	}
}

func TestRelease_idempotent(t *testing.T) {
	t.Parallel()
	gd := NewFile(filepath.Join(t.TempDir(), "populate.lease"))
	gd.Release()
	gd.Release()
}

func TestWithTTL(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "populate.lease")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = NewFile(path, WithClock(func() time.Time { return base })).Acquire()

	soon := base.Add(2 * time.Minute)
	gd := NewFile(path, WithTTL(time.Minute), WithClock(func() time.Time { return soon }))
	if err := gd.Acquire(); err != nil {
		t.Fatalf("short TTL lease must be reclaimable: %v", err)
	}
}
