package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sovrium/sovrium-sub014/internal/daemon"
)

func newRunCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the continuous dispatch loop (single instance per home)",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.CorpusRoot == "" {
				return fmt.Errorf("corpus_root not set in config.yaml")
			}
			orch, closeHistory := newOrchestrator(home, cfg)
			defer closeHistory()

			d := daemon.New(orch, daemon.Options{
				Home:          home,
				CorpusRoot:    cfg.CorpusRoot,
				Interval:      interval,
				MaxConcurrent: cfg.MaxConcurrent,
				MetricsAddr:   cfg.MetricsAddr,
			})
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Dispatch tick interval")
	return cmd
}
