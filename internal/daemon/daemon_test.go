package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sovrium/sovrium-sub014/internal/config"
	"github.com/sovrium/sovrium-sub014/internal/orchestrator"
	"github.com/sovrium/sovrium-sub014/internal/queue"
	"github.com/sovrium/sovrium-sub014/internal/tracker"
	"github.com/sovrium/sovrium-sub014/internal/worker"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

func TestAcquireLockExclusive(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "specq.lock")

	l1, err := acquireLock(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := acquireLock(path); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second acquire err = %v, want already-running", err)
	}
	l1.release()

	l2, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l2.release()
}

func testDaemon(t *testing.T) (*Daemon, *queue.Manager, string) {
	t.Helper()
	home := t.TempDir()
	corpus := filepath.Join(home, "corpus")
	content := `import { it } from 'vitest'
it.fails('APP-NAME-001: accepts a short name', () => {})
`
	if err := os.MkdirAll(filepath.Join(corpus, "specs/app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corpus, "specs/app/name.test.ts"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.CorpusRoot = corpus
	cfg.SourceRoot = ""
	cfg.Domains = []config.Domain{{Prefix: "APP", Bucket: 1}}
	q := queue.NewManager(config.QueuePath(home), models.QueueConfig{MaxRetries: cfg.MaxRetries})
	orch := orchestrator.New(home, cfg, q, tracker.NewFake(), worker.StubRuntime{})
	d := New(orch, Options{
		Home:          home,
		CorpusRoot:    corpus,
		Interval:      20 * time.Millisecond,
		MaxConcurrent: 2,
	})
	return d, q, corpus
}

func TestRunDispatchesAndStopsCleanly(t *testing.T) {
	t.Parallel()
	d, q, _ := testDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap, err := q.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Completed) != 1 {
		t.Fatalf("completed = %d, want the scanned spec dispatched", len(snap.Completed))
	}
}

func TestRunPicksUpNewSpecsFromWatch(t *testing.T) {
	t.Parallel()
	d, q, corpus := testDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Give the initial scan a moment, then drop a new spec file in.
	time.Sleep(300 * time.Millisecond)
	content := `import { it } from 'vitest'
it.fails('APP-VERSION-001: records a version', () => {})
`
	if err := os.WriteFile(filepath.Join(corpus, "specs/app/version.test.ts"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap, err := q.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Completed) != 2 {
		t.Fatalf("completed = %d, want both specs dispatched", len(snap.Completed))
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	t.Parallel()
	d, _, _ := testDaemon(t)
	lock, err := acquireLock(config.LockPath(d.opts.Home))
	if err != nil {
		t.Fatal(err)
	}
	defer lock.release()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err == nil {
		t.Fatal("want startup failure while another instance holds the lock")
	}
}
