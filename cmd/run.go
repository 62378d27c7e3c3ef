// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/agent"
	"github.com/xkilldash9x/waldo-cli/internal/browser/session"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/llmclient"
	"github.com/xkilldash9x/waldo-cli/internal/observability"
	"github.com/xkilldash9x/waldo-cli/internal/store"
	"github.com/xkilldash9x/waldo-cli/internal/tokens"
)

// errAbortedLimit marks a run that stopped at the iteration ceiling. Execute
// maps it to exit code 2 so scripts can tell "ran out of budget" from "broke".
var errAbortedLimit = errors.New("run stopped at the iteration ceiling")

// Injection points so tests can run the command without a browser, a model
// endpoint, or a database.
var (
	newBrowserSession = func(ctx context.Context, bc config.BrowserConfig, logger *zap.Logger) (schemas.BrowserSession, error) {
		return session.New(ctx, bc, logger)
	}
	newLLMClient = func(ctx context.Context, c *config.Config, logger *zap.Logger) (schemas.LLMClient, error) {
		return llmclient.NewRouterFromConfig(ctx, c, logger)
	}
	openRunStore = func(ctx context.Context, dsn string, logger *zap.Logger) (schemas.RunStore, error) {
		return store.Open(ctx, dsn, logger)
	}
	newOperator = func(logger *zap.Logger) agent.Operator {
		// Prompts go to stderr so they survive stdout redirection.
		return agent.NewTerminalOperator(os.Stdin, os.Stderr, logger)
	}
)

// newRunCmd creates the `run` command: one task, one browser session, one
// terminal outcome.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   `run "task"`,
		Short: "Run one natural-language browser task to completion",
		Long: `Starts a browser, hands the task to the agent, and drives it until the
agent declares completion, hits its iteration ceiling, or fails. The agent
pauses and hands you the browser at security checkpoints (logins, CAPTCHAs,
verification codes); press Enter to hand control back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, cfg, args[0])
		},
	}
	return runCmd
}

// executeRun is the testable core of the run command.
func executeRun(cmd *cobra.Command, cfg *config.Config, goal string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	goal = strings.TrimSpace(goal)
	if goal == "" {
		return fmt.Errorf("the task description must not be empty")
	}

	task := schemas.Task{
		ID:        uuid.NewString(),
		Goal:      goal,
		CreatedAt: time.Now(),
	}
	logger.Info("Starting run", zap.String("run_id", task.ID), zap.String("goal", task.Goal))

	estimator, err := tokens.New(cfg.Agent.Estimator, cfg.LLM.DefaultPowerfulModel)
	if err != nil {
		return err
	}

	llm, err := newLLMClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	defer func() {
		if err := llm.Close(); err != nil {
			logger.Warn("Error closing LLM client", zap.Error(err))
		}
	}()

	sess, err := newBrowserSession(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		// The run context may already be canceled; give teardown its own.
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("Error closing browser session", zap.Error(err))
		}
	}()

	coordinator := agent.NewCoordinator(cfg.Agent, sess, llm, estimator, newOperator(logger), logger)

	startedAt := time.Now()
	outcome, runErr := coordinator.Run(ctx, task)
	finishedAt := time.Now()

	archiveRun(cfg, task, outcome, startedAt, finishedAt, logger)

	fmt.Fprintf(cmd.OutOrStdout(), "\n[%s after %d iteration(s)]\n%s\n",
		outcome.State, outcome.Iterations, outcome.Summary)

	if runErr != nil {
		return runErr
	}
	if outcome.State == schemas.RunAbortedLimit {
		return errAbortedLimit
	}
	return nil
}

// archiveRun persists the finished run when the archive is enabled. Archival
// is best effort: a failure is logged, never surfaced as a run failure.
func archiveRun(cfg *config.Config, task schemas.Task, outcome agent.RunOutcome, startedAt, finishedAt time.Time, logger *zap.Logger) {
	if !cfg.Store.Enabled {
		return
	}

	// The run context may be canceled (Ctrl+C); archive on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := openRunStore(ctx, cfg.Store.DSN, logger)
	if err != nil {
		logger.Warn("Failed to open run archive", zap.Error(err))
		return
	}
	defer st.Close()

	rec := schemas.RunRecord{
		ID:         task.ID,
		Task:       task.Goal,
		FinalState: outcome.State,
		Iterations: outcome.Iterations,
		Summary:    outcome.Summary,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if err := st.SaveRun(ctx, rec); err != nil {
		logger.Warn("Failed to archive run", zap.String("run_id", task.ID), zap.Error(err))
	}
}
