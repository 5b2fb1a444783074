// Package cli wires the specq commands. Every command resolves the home
// directory once in the root's PersistentPreRunE and carries it in the
// command context.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sovrium/sovrium-sub014/internal/config"
)

func NewRootCmd(version string) *cobra.Command {
	var homeOverride string

	cmd := &cobra.Command{
		Use:          "specq",
		Short:        "specq - autonomous spec queue orchestration",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithHome(cmd.Context(), home))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override specq home directory (default: ~/.specq, env: SPECQ_HOME)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newPopulateCmd())
	cmd.AddCommand(newNextCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDispatchCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRequeueCmd())
	cmd.AddCommand(newReportCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
