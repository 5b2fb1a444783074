package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sovrium/sovrium-sub014/internal/config"
	"github.com/sovrium/sovrium-sub014/internal/queue"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

const nameTests = `import { it } from 'vitest'
it.fails('APP-NAME-001: accepts a short name', () => {})
it.fails('APP-NAME-002: rejects an empty name', () => {})
`

func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	corpus := filepath.Join(home, "corpus")
	if err := os.MkdirAll(filepath.Join(corpus, "specs/app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corpus, "specs/app/name.test.ts"), []byte(nameTests), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.CorpusRoot = corpus
	cfg.SourceRoot = ""
	cfg.Domains = []config.Domain{{Prefix: "APP", Bucket: 1}}
	if err := config.Save(home, cfg); err != nil {
		t.Fatal(err)
	}
	return home
}

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--home", home}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestScanNextDispatchStatusFlow(t *testing.T) {
	home := testHome(t)

	out, err := run(t, home, "scan")
	if err != nil {
		t.Fatalf("scan: %v\n%s", err, out)
	}
	if !strings.Contains(out, "enqueued=2") {
		t.Fatalf("scan output: %s", out)
	}

	out, err = run(t, home, "next")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !strings.Contains(out, "spec_id=APP-NAME-001") {
		t.Fatalf("next output: %s", out)
	}

	out, err = run(t, home, "dispatch")
	if err != nil {
		t.Fatalf("dispatch: %v\n%s", err, out)
	}
	if !strings.Contains(out, "class=success") {
		t.Fatalf("dispatch output: %s", out)
	}

	out, err = run(t, home, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "completed=1") || !strings.Contains(out, "pending=1") {
		t.Fatalf("status output: %s", out)
	}

	out, err = run(t, home, "status", "--history")
	if err != nil {
		t.Fatalf("status --history: %v", err)
	}
	if !strings.Contains(out, "Recent attempts (1)") {
		t.Fatalf("history output: %s", out)
	}
}

func TestDispatchNothingReady(t *testing.T) {
	home := testHome(t)

	out, err := run(t, home, "dispatch")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(out, "dispatched=false") {
		t.Fatalf("dispatch output: %s", out)
	}
}

func TestReportCompletesActiveItem(t *testing.T) {
	home := testHome(t)
	if out, err := run(t, home, "scan"); err != nil {
		t.Fatalf("scan: %v\n%s", err, out)
	}
	q := queue.NewManager(config.QueuePath(home), models.QueueConfig{})
	if _, err := q.Claim("APP-NAME-001"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, home, "report", "--id", "APP-NAME-001", "--class", "success")
	if err != nil {
		t.Fatalf("report: %v\n%s", err, out)
	}
	if !strings.Contains(out, "reported=true") {
		t.Fatalf("report output: %s", out)
	}

	snap, err := q.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(snap.Completed))
	}
}

func TestReportRejectsInactiveItem(t *testing.T) {
	home := testHome(t)
	if _, err := run(t, home, "scan"); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, home, "report", "--id", "APP-NAME-001", "--class", "success"); err == nil {
		t.Fatal("want error reporting on a pending item")
	}
}

func TestRequeueRejectsUnknownItem(t *testing.T) {
	home := testHome(t)

	if _, err := run(t, home, "requeue", "--id", "APP-NOPE-001"); err == nil {
		t.Fatal("want error requeueing an item that is not failed")
	}
}

func TestNewHistorySelectsStoreByDSN(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	cfg := config.Default()

	st, err := newHistory(home, cfg)
	if err != nil {
		t.Fatalf("sqlite default: %v", err)
	}
	_ = st.Close()
	if _, err := os.Stat(config.HistoryDBPath(home)); err != nil {
		t.Fatalf("sqlite file missing: %v", err)
	}

	// A set DSN routes to the postgres store; a malformed one fails at
	// parse time, before any connection attempt.
	cfg.HistoryDSN = "definitely not a dsn"
	if _, err := newHistory(home, cfg); err == nil {
		t.Fatal("want parse error from the postgres store")
	}
}
