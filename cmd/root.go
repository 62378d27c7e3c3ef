// File: cmd/root.go

// Package cmd wires the waldo CLI: one-shot task runs, the archived run
// listing, and log tailing. Configuration is resolved once per invocation
// (file, then WALDO_* environment overrides) before any subcommand runs.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/observability"
)

var (
	cfgFile string
	// cfg is the resolved configuration, populated in PersistentPreRunE.
	cfg *config.Config
)

// NewRootCommand builds a fresh command tree. Tests construct their own tree
// so flag state never leaks between cases.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "waldo",
		Short:         "Waldo drives a web browser from a natural-language task.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cfgFile)
			if err != nil {
				// A fallback logger so the error itself is visible somewhere.
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "waldo",
				})
				return err
			}
			cfg = loaded

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting waldo", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./waldo.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newLogsCmd())
	return rootCmd
}

// loadConfig resolves defaults, an optional config file, and WALDO_*
// environment overrides into a validated Config.
func loadConfig(path string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.waldo")
		v.SetConfigName("waldo")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WALDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment carry the run.
	}

	return config.NewConfigFromViper(v)
}

// Execute runs the CLI and returns the process exit code: 0 for a completed
// task, 2 when a run stopped at its iteration ceiling, 1 for everything else.
func Execute(ctx context.Context) int {
	err := NewRootCommand().ExecuteContext(ctx)
	observability.Sync()

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errAbortedLimit):
		return 2
	default:
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}
