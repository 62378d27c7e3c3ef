// File: cmd/logs.go
package cmd

import (
	"fmt"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// newLogsCmd creates the `logs` command, printing the rotated log file and
// optionally following it while a run executes in another terminal.
func newLogsCmd() *cobra.Command {
	var follow bool

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the log file, optionally following new entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Logger.LogFile
			if path == "" {
				return fmt.Errorf("file logging is disabled (logger.log_file is empty)")
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow, // survive lumberjack rotation while following
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", path, err)
			}
			defer t.Cleanup()

			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					_ = t.Stop()
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return t.Err()
					}
					if line.Err != nil {
						return fmt.Errorf("error reading log file: %w", line.Err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), line.Text)
				}
			}
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep the file open and print new entries as they arrive")
	return logsCmd
}
