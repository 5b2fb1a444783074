// Package daemon is the continuous `specq run` loop: a single-instance lock,
// a ticker-driven dispatcher bounded by MaxConcurrent, a corpus watch that
// triggers rescans, and the metrics endpoint.
package daemon

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sovrium/sovrium-sub014/internal/config"
	"github.com/sovrium/sovrium-sub014/internal/orchestrator"
	"github.com/sovrium/sovrium-sub014/internal/otel"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Options tunes one Run invocation.
type Options struct {
	Home          string
	CorpusRoot    string
	Interval      time.Duration // dispatch tick; default 5s
	MaxConcurrent int
	MetricsAddr   string // empty disables the metrics server
}

type Daemon struct {
	opts Options
	orch *orchestrator.Orchestrator
}

func New(orch *orchestrator.Orchestrator, opts Options) *Daemon {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = models.DefaultMaxConcurrent
	}
	return &Daemon{opts: opts, orch: orch}
}

// Run blocks until ctx is canceled. Returns an error only for startup
// failures; a canceled context is a clean shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if d.opts.Home == "" {
		return errors.New("home is required")
	}
	lock, err := acquireLock(config.LockPath(d.opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	pidFile := filepath.Join(d.opts.Home, "specq.pid")
	_ = os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	defer func() { _ = os.Remove(pidFile) }()

	d.startMetrics(ctx)

	rescan := make(chan struct{}, 1)
	watcher := d.startWatch(ctx, rescan)
	if watcher != nil {
		defer watcher.Close()
	}

	if _, err := d.orch.ScanAndEnqueue(ctx); err != nil {
		return err
	}

	sem := make(chan struct{}, d.opts.MaxConcurrent)
	var wg sync.WaitGroup
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	slog.Info("run loop started",
		"interval", d.opts.Interval, "max_concurrent", d.opts.MaxConcurrent)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			slog.Info("run loop stopped")
			return nil
		case <-rescan:
			if sum, err := d.orch.ScanAndEnqueue(ctx); err != nil {
				slog.Error("rescan failed", "err", err)
			} else if sum.Enqueued > 0 {
				slog.Info("rescan enqueued new specs", "enqueued", sum.Enqueued)
			}
			d.dispatchBatch(ctx, sem, &wg)
		case <-ticker.C:
			d.dispatchBatch(ctx, sem, &wg)
		}
	}
}

// dispatchBatch fills the free semaphore slots with dispatch cycles. Each
// cycle exits immediately when nothing is ready.
func (d *Daemon) dispatchBatch(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		select {
		case sem <- struct{}{}:
		default:
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := d.orch.DispatchNext(ctx)
			if err != nil {
				slog.Error("dispatch failed", "err", err)
				return
			}
			if res != nil {
				slog.Info("dispatch finished",
					"spec_id", res.SpecID, "class", res.Class, "duration", res.Duration)
			}
		}()
	}
}

func (d *Daemon) startMetrics(ctx context.Context) {
	if d.opts.MetricsAddr == "" {
		return
	}
	handler, err := otel.InitMeterProvider(ctx, "specq")
	if err != nil {
		slog.Warn("metrics pipeline unavailable", "err", err)
		return
	}
	if err := otel.InitMetricsWithBucketCount(ctx, d.bucketCounts); err != nil {
		slog.Warn("metrics instruments unavailable", "err", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Addr: d.opts.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	slog.Info("metrics server listening", "addr", d.opts.MetricsAddr)
}

func (d *Daemon) bucketCounts() (pending, active, completed, failed int64) {
	snap, err := d.orch.Queue().Status()
	if err != nil {
		return 0, 0, 0, 0
	}
	return int64(len(snap.Pending)), int64(len(snap.Active)),
		int64(len(snap.Completed)), int64(len(snap.Failed))
}

// startWatch watches every directory under the corpus root and coalesces
// test-file changes into rescan signals. The watch is best-effort: when it
// cannot start, the ticker-driven loop still works.
func (d *Daemon) startWatch(ctx context.Context, rescan chan<- struct{}) *fsnotify.Watcher {
	if d.opts.CorpusRoot == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("corpus watch unavailable", "err", err)
		return nil
	}
	addDirs := func() {
		_ = filepath.WalkDir(d.opts.CorpusRoot, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !de.IsDir() {
				return nil
			}
			if path != d.opts.CorpusRoot && (de.Name() == "node_modules" || strings.HasPrefix(de.Name(), ".")) {
				return filepath.SkipDir
			}
			_ = watcher.Add(path)
			return nil
		})
	}
	addDirs()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if ev.Has(fsnotify.Create) {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						_ = watcher.Add(ev.Name)
						continue
					}
				}
				if !strings.HasSuffix(ev.Name, ".test.ts") && !strings.HasSuffix(ev.Name, ".test.tsx") {
					continue
				}
				select {
				case rescan <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("corpus watch error", "err", err)
			}
		}
	}()
	return watcher
}
