// File: internal/agent/coordinator.go

// Package agent implements the decision loop that drives a browser from
// natural language: a coordinator with the full tool vocabulary, restricted
// sub-agents it can delegate narrow subtasks to, and the safety machinery
// that hands control to a human at security checkpoints.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/page"
)

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// Coordinator owns one browser session for the lifetime of one task and runs
// the primary decision loop over it. Sub-agents borrow the session through
// the coordinator's delegation handler; they never outlive their invocation.
type Coordinator struct {
	cfg      config.AgentConfig
	sess     schemas.BrowserSession
	llm      schemas.LLMClient
	operator Operator
	logger   *zap.Logger

	toolbox *toolbox
	scanner *CheckpointScanner
}

// NewCoordinator wires the perception pipeline and the full toolset around
// one browser session.
func NewCoordinator(
	cfg config.AgentConfig,
	sess schemas.BrowserSession,
	llm schemas.LLMClient,
	estimator schemas.TokenEstimator,
	operator Operator,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	extractor := page.NewExtractor(sess, logger, cfg.RoleCap, cfg.FragmentMaxChars)
	compressor := page.NewCompressor(estimator, logger)

	c := &Coordinator{
		cfg:      cfg,
		sess:     sess,
		llm:      llm,
		operator: operator,
		logger:   logger,
		toolbox:  newToolbox(sess, extractor, compressor, cfg.TokenBudget, operator, logger),
		scanner:  NewCheckpointScanner(sess, logger),
	}
	c.toolbox.delegate = c.handleDelegate
	return c
}

// Run executes the task to a terminal state. The error is non-nil only for
// FAILED outcomes; ABORTED_LIMIT is a defined result carrying the partial
// summary.
func (c *Coordinator) Run(ctx context.Context, task schemas.Task) (RunOutcome, error) {
	loop := newLoop(loopParams{
		Name:               "coordinator",
		Goal:               task.Goal,
		Registry:           c.toolbox.registry(coordinatorTools),
		MaxIterations:      c.cfg.MaxIterations,
		MaxProtocolRetries: c.cfg.MaxProtocolRetries,
		Tier:               schemas.TierPowerful,
		Operator:           c.operator,
	}, c.toolbox, c.llm, c.scanner, c.logger)

	return loop.Run(ctx)
}

// handleDelegate runs one sub-agent to completion and folds its summary back
// as a single result. The child gets a fresh conversation, a restricted
// registry, and a fast-tier model; nothing of its internal transcript crosses
// back to the parent.
func (c *Coordinator) handleDelegate(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	name := strings.ToLower(strings.TrimSpace(stringArg(req, "subagent")))
	subtask := strings.TrimSpace(stringArg(req, "subtask"))

	profile, ok := profiles[name]
	if !ok {
		return schemas.ActionResult{
			Success:     false,
			Summary:     fmt.Sprintf("Unknown sub-agent %q.", name),
			ErrorCode:   schemas.ErrCodeDelegation,
			ErrorDetail: fmt.Sprintf("available sub-agents: %s", strings.Join(ProfileNames(), ", ")),
		}
	}
	if subtask == "" {
		return schemas.ActionResult{
			Success:   false,
			Summary:   "Delegation needs a non-empty subtask description.",
			ErrorCode: schemas.ErrCodeInvalidArgument,
		}
	}

	rec := DelegationRecord{
		ID:         uuidNewString(),
		Profile:    profile.Name,
		Subtask:    subtask,
		StepBudget: c.cfg.SubagentStepCeiling,
	}
	c.logger.Info("Delegating to sub-agent",
		zap.String("delegation_id", rec.ID),
		zap.String("profile", rec.Profile),
		zap.String("subtask", rec.Subtask),
		zap.Int("step_budget", rec.StepBudget))

	child := newLoop(loopParams{
		Name:               "subagent_" + profile.Name,
		Goal:               subtask,
		Preamble:           profile.Preamble,
		Registry:           c.toolbox.registry(profile.Tools),
		MaxIterations:      c.cfg.SubagentStepCeiling,
		MaxProtocolRetries: c.cfg.MaxProtocolRetries,
		Tier:               schemas.TierFast,
		// Sub-agents have no operator boundary; checkpoints end the child run.
		Operator: nil,
	}, c.toolbox, c.llm, c.scanner, c.logger)

	outcome, err := child.Run(ctx)
	rec.Steps = outcome.Iterations
	if err != nil {
		return schemas.ActionResult{
			Success:     false,
			Summary:     fmt.Sprintf("Sub-agent %s failed: %s", profile.Name, outcome.Summary),
			ErrorCode:   schemas.ErrCodeDelegation,
			ErrorDetail: err.Error(),
		}
	}

	rec.Summary = outcome.Summary
	rec.Incomplete = outcome.State != schemas.RunDone
	summary := outcome.Summary
	if rec.Incomplete {
		summary = "[INCOMPLETE] " + summary
	}

	c.logger.Info("Sub-agent finished",
		zap.String("delegation_id", rec.ID),
		zap.String("profile", rec.Profile),
		zap.Int("steps", rec.Steps),
		zap.Bool("incomplete", rec.Incomplete))

	// An exhausted child is not an error for the parent: the summary carries
	// whatever progress was made and the parent decides what to do next.
	return schemas.ActionResult{
		Success: true,
		Summary: fmt.Sprintf("Sub-agent %s finished after %d step(s): %s", profile.Name, rec.Steps, summary),
	}
}
