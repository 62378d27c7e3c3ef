// File: cmd/history.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/observability"
)

// newHistoryCmd creates the `history` command listing archived runs.
func newHistoryCmd() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Store.Enabled {
				return fmt.Errorf("the run archive is disabled; set store.enabled and store.dsn (or WALDO_STORE_DSN)")
			}

			st, err := openRunStore(cmd.Context(), cfg.Store.DSN, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open run archive: %w", err)
			}
			defer st.Close()

			records, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived runs.")
				return nil
			}

			for _, rec := range records {
				fmt.Fprintln(cmd.OutOrStdout(), formatRunRecord(rec))
			}
			return nil
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	return historyCmd
}

// formatRunRecord renders one archive line: finish time, outcome, iteration
// count, a short run id, and the task.
func formatRunRecord(rec schemas.RunRecord) string {
	return fmt.Sprintf("%s  %-13s  %3d iter  %s  %s",
		rec.FinishedAt.Local().Format("2006-01-02 15:04"),
		rec.FinalState,
		rec.Iterations,
		shortID(rec.ID),
		rec.Task,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
