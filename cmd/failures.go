package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/paper-archiver/internal/failurelog"
)

// newFailuresCmd creates the 'failures' subcommand, which prints the
// recorded failures one per line.
func newFailuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "failures",
		Short: "Lists the articles that could not be archived",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			log, err := failurelog.New(afero.NewOsFs(), cfg.Output.FailureLog)
			if err != nil {
				return fmt.Errorf("open failure log: %w", err)
			}
			entries, err := log.Entries()
			if err != nil {
				return fmt.Errorf("read failure log: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\n", e.ItemID, e.Message)
			}
			fmt.Fprintf(out, "%d failed item(s) in %s\n", len(entries), log.Path())
			return nil
		},
	}
}
