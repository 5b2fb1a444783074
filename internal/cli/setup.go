package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sovrium/sovrium-sub014/internal/config"
	"github.com/sovrium/sovrium-sub014/internal/history"
	"github.com/sovrium/sovrium-sub014/internal/history/postgres"
	"github.com/sovrium/sovrium-sub014/internal/orchestrator"
	"github.com/sovrium/sovrium-sub014/internal/queue"
	"github.com/sovrium/sovrium-sub014/internal/tracker"
	"github.com/sovrium/sovrium-sub014/internal/worker"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

func loadConfig(cmd *cobra.Command) (string, config.Config, error) {
	home := config.MustHomeFrom(cmd.Context())
	cfg, err := config.Load(home)
	return home, cfg, err
}

func newQueueManager(home string, cfg config.Config) *queue.Manager {
	return queue.NewManager(config.QueuePath(home), models.QueueConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
	})
}

// newTracker returns the configured tracker client, or the in-memory fake
// when no repo is configured so local workflows run detached.
func newTracker(cfg config.Config) tracker.Tracker {
	if cfg.Tracker.Repo == "" {
		slog.Warn("tracker not configured, running detached (set tracker.repo in config.yaml)")
		return tracker.NewFake()
	}
	base := cfg.Tracker.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	return tracker.NewClient(base, cfg.Tracker.Repo, cfg.Tracker.Token)
}

func newRuntime(cfg config.Config) worker.Runtime {
	if cfg.Worker.Command == "" {
		slog.Warn("worker not configured, using stub runtime (set worker.command in config.yaml)")
		return worker.StubRuntime{}
	}
	return worker.SubprocessRuntime{
		Command: cfg.Worker.Command,
		Args:    cfg.Worker.Args,
		Timeout: cfg.Worker.Timeout,
	}
}

// newHistory opens the attempt log: PostgreSQL when history_dsn is set,
// the local SQLite file under home otherwise.
func newHistory(home string, cfg config.Config) (history.Store, error) {
	if cfg.HistoryDSN != "" {
		return postgres.Open(cfg.HistoryDSN)
	}
	return history.Open(config.HistoryDBPath(home))
}

// newOrchestrator assembles the full stack. The returned closer shuts the
// history store; dispatching commands should defer it.
func newOrchestrator(home string, cfg config.Config) (*orchestrator.Orchestrator, func()) {
	var opts []orchestrator.Option
	closer := func() {}
	st, err := newHistory(home, cfg)
	if err != nil {
		slog.Warn("attempt history unavailable", "err", err)
	} else {
		opts = append(opts, orchestrator.WithHistory(st))
		closer = func() { _ = st.Close() }
	}
	orch := orchestrator.New(home, cfg, newQueueManager(home, cfg), newTracker(cfg), newRuntime(cfg), opts...)
	return orch, closer
}
