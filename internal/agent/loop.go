// File: internal/agent/loop.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// consecutiveFailureHintAt is how many failed actions in a row trigger an
// injected hint suggesting a change of approach.
const consecutiveFailureHintAt = 3

// loopParams parameterizes one decision loop instance. The coordinator and
// every sub-agent run the same machine; only these knobs differ.
type loopParams struct {
	// Name identifies the agent in logs: "coordinator" or "subagent:<profile>".
	Name string
	// Goal is the natural-language objective this instance pursues.
	Goal string
	// Preamble narrows the persona for sub-agent profiles. Empty for the
	// coordinator.
	Preamble string
	// Registry is the toolset this instance may use.
	Registry *Registry
	// MaxIterations is the hard ceiling on observe-decide-act-evaluate cycles.
	MaxIterations int
	// MaxProtocolRetries bounds corrective re-prompts for unusable replies.
	MaxProtocolRetries int
	// Tier selects the model capability class.
	Tier schemas.ModelTier
	// Operator is the human boundary; nil for sub-agents, which terminate at
	// checkpoints instead of pausing.
	Operator Operator
}

// Loop is one run of the observe-decide-act-evaluate state machine over a
// single conversation. It is strictly sequential: one outstanding model call
// or browser action at a time, and it always terminates within the iteration
// ceiling.
type Loop struct {
	params  loopParams
	conv    *Conversation
	toolbox *toolbox
	llm     schemas.LLMClient
	scanner *CheckpointScanner
	logger  *zap.Logger

	systemPrompt string

	state AgentState
	pause PauseState
	// pendingCheckpoint holds a detected security signal that must force the
	// next ACTING phase into PAUSED, whatever the model asked for.
	pendingCheckpoint string
	// justResumed suppresses the result-text scan for the turn produced by a
	// pause: its summary names the signal, and re-arming from it would pause
	// again before the forced re-observation can see the real page.
	justResumed         bool
	consecutiveFailures int
	iterations          int
}

func newLoop(p loopParams, tb *toolbox, llm schemas.LLMClient, scanner *CheckpointScanner, logger *zap.Logger) *Loop {
	if p.MaxIterations <= 0 {
		p.MaxIterations = 1
	}
	if p.MaxProtocolRetries <= 0 {
		p.MaxProtocolRetries = 3
	}
	return &Loop{
		params:       p,
		conv:         NewConversation(p.Goal),
		toolbox:      tb,
		llm:          llm,
		scanner:      scanner,
		logger:       logger.Named(p.Name),
		systemPrompt: buildSystemPrompt(p.Registry, p.Preamble),
		state:        StateObserving,
	}
}

// State returns the loop's current state.
func (l *Loop) State() AgentState { return l.state }

// Iterations returns how many decision cycles have completed.
func (l *Loop) Iterations() int { return l.iterations }

func (l *Loop) setState(s AgentState) {
	if l.state.Terminal() {
		return
	}
	l.state = s
}

// Run executes the loop to a terminal state. The returned error is non-nil
// only for FAILED outcomes; hitting the iteration ceiling is a defined result,
// not an error.
func (l *Loop) Run(ctx context.Context) (RunOutcome, error) {
	l.logger.Info("Agent run started",
		zap.String("goal", l.params.Goal),
		zap.Int("max_iterations", l.params.MaxIterations),
		zap.String("tier", string(l.params.Tier)))

	forceObserve := true
	for l.iterations < l.params.MaxIterations {
		if err := ctx.Err(); err != nil {
			return l.fail(fmt.Errorf("run canceled: %w", err))
		}

		// -- OBSERVING --
		if forceObserve {
			l.setState(StateObserving)
			if err := l.observe(ctx); err != nil {
				return l.fail(err)
			}
			forceObserve = false
		}

		// -- DECIDING --
		l.setState(StateDeciding)
		decision, protocolFailure := l.decide(ctx)
		if err := ctx.Err(); err != nil {
			return l.fail(fmt.Errorf("run canceled: %w", err))
		}
		if protocolFailure != nil {
			l.evaluate("", *protocolFailure)
			continue
		}
		if decision.Complete {
			// Completion ends the run even with an armed checkpoint: stopping
			// never crosses the boundary.
			l.conv.Append(TurnDecision, ToolTaskComplete, decision.Action.Rationale)
			l.setState(StateDone)
			l.logger.Info("Task completed",
				zap.Int("iterations", l.iterations),
				zap.String("summary", decision.Summary))
			return RunOutcome{
				State:      schemas.RunDone,
				Iterations: l.iterations,
				Summary:    decision.Summary,
			}, nil
		}

		l.conv.Append(TurnDecision, decision.Action.Tool, decision.Action.Rationale)
		l.logger.Info("Action decided",
			zap.String("tool", decision.Action.Tool),
			zap.Any("args", decision.Action.Args),
			zap.String("rationale", decision.Action.Rationale))

		// -- ACTING --
		l.setState(StateActing)
		result, refresh, err := l.act(ctx, decision.Action)
		if err != nil {
			return l.fail(err)
		}
		if l.state.Terminal() {
			// A sub-agent hit a security checkpoint and must stop here.
			return RunOutcome{
				State:      l.state.RunState(),
				Iterations: l.iterations,
				Summary:    result.Summary,
			}, nil
		}
		if refresh {
			forceObserve = true
		}

		// -- EVALUATING --
		l.evaluate(decision.Action.Tool, result)
	}

	l.setState(StateAbortedLimit)
	summary := fmt.Sprintf("Stopped after reaching the %d-iteration ceiling without completing the task.", l.params.MaxIterations)
	if last := l.conv.LastResult(); last != "" {
		summary += " Last result: " + last
	}
	l.logger.Warn("Iteration ceiling reached", zap.Int("iterations", l.iterations))
	return RunOutcome{
		State:      schemas.RunAbortedLimit,
		Iterations: l.iterations,
		Summary:    capSummary(summary),
	}, nil
}

// observe captures and records the page state. The very first observation
// failing is a setup fault; later failures are recorded for the model to
// react to.
func (l *Loop) observe(ctx context.Context) error {
	text, err := l.toolbox.observe(ctx)
	if err != nil {
		if l.conv.Len() == 0 {
			return fmt.Errorf("initial page observation failed: %w", err)
		}
		l.logger.Warn("Page observation failed", zap.Error(err))
		l.conv.Append(TurnResult, ToolPageOverview,
			describeResult(failedResult("Re-observing the page failed.", err)))
		return nil
	}

	l.conv.Append(TurnObservation, "", text)
	if l.pendingCheckpoint == "" && !l.pause.Active {
		if signal := l.scanner.ScanPage(ctx, text); signal != "" {
			l.armCheckpoint(signal)
		}
	}
	return nil
}

// decide asks the model for the next action, re-prompting with escalating
// hints on unusable replies. When the retry budget is spent it returns the
// protocol failure to record; the loop continues either way.
func (l *Loop) decide(ctx context.Context) (Decision, *schemas.ActionResult) {
	var lastErr error
	for attempt := 0; attempt < l.params.MaxProtocolRetries; attempt++ {
		raw, err := l.llm.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: l.systemPrompt,
			UserPrompt:   l.conv.Render(),
			Tier:         l.params.Tier,
			Options: schemas.GenerationOptions{
				Temperature:     0.2,
				ForceJSONFormat: true,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return Decision{}, &schemas.ActionResult{
					Success:   false,
					Summary:   "The run was canceled while waiting on the model.",
					ErrorCode: schemas.ErrCodeProtocol,
				}
			}
			lastErr = err
		} else {
			decision, perr := parseDecision(raw)
			if perr == nil {
				return decision, nil
			}
			lastErr = perr
		}

		l.logger.Warn("Model reply was not a usable decision",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
		if attempt+1 < l.params.MaxProtocolRetries {
			l.conv.Append(TurnHint, "", protocolHint(attempt, lastErr))
		}
	}

	return Decision{}, &schemas.ActionResult{
		Success:     false,
		Summary:     fmt.Sprintf("The model failed to produce a valid action in %d attempts.", l.params.MaxProtocolRetries),
		ErrorCode:   schemas.ErrCodeProtocol,
		ErrorDetail: lastErr.Error(),
	}
}

// protocolHint escalates the corrective message across retries.
func protocolHint(attempt int, cause error) string {
	switch attempt {
	case 0:
		return fmt.Sprintf("Your reply could not be used (%v). Respond with exactly one JSON object: "+
			`{"rationale": "...", "tool": "...", "args": {...}}.`, cause)
	case 1:
		return "Your reply was still not a single valid JSON action object. Do not add prose, " +
			"markdown, or multiple objects. Emit the JSON object only."
	default:
		return "Final attempt: emit one JSON object with the fields rationale, tool, and args, " +
			"using a tool from the documented list, or the turn will be recorded as a failure."
	}
}

// act runs one ACTING phase: validation, the safety override, the pause path,
// or plain tool execution. It reports whether the page must be re-observed.
// A non-nil error aborts the run (context cancellation during a pause).
func (l *Loop) act(ctx context.Context, req schemas.ActionRequest) (schemas.ActionResult, bool, error) {
	// Validation runs before any interception so a sub-agent invoking a tool
	// it was never granted fails closed without side effects.
	if failure := l.params.Registry.Validate(req); failure != nil {
		return *failure, false, nil
	}

	// The safety override: an armed checkpoint takes precedence over whatever
	// the model chose. Automation never proceeds past a detected checkpoint.
	if l.pendingCheckpoint != "" {
		signal := l.pendingCheckpoint
		l.logger.Warn("Security checkpoint overrides the requested action",
			zap.String("signal", signal),
			zap.String("requested_tool", req.Tool))

		if l.params.Operator == nil {
			// Sub-agents have no human boundary; they stop and report.
			l.state = StateAbortedLimit
			return schemas.ActionResult{
				Success: false,
				Summary: fmt.Sprintf("Stopped at a security checkpoint (%s); a human must complete it.", signal),
			}, false, nil
		}

		reason := fmt.Sprintf("A security checkpoint was detected on the page (%s). "+
			"Please complete it manually; automation is suspended until you resume.", signal)
		if err := l.pauseForHuman(ctx, reason); err != nil {
			return schemas.ActionResult{}, false, err
		}
		return schemas.ActionResult{
			Success: true,
			Summary: fmt.Sprintf("Execution of %s was withheld at a security checkpoint (%s). "+
				"The operator has handled it and returned control.", req.Tool, signal),
		}, true, nil
	}

	if req.Tool == ToolHumanHelp {
		reason := stringArg(req, "description")
		if err := l.pauseForHuman(ctx, reason); err != nil {
			return schemas.ActionResult{}, false, err
		}
		return schemas.ActionResult{
			Success: true,
			Summary: "The operator has finished the manual step and returned control.",
		}, true, nil
	}

	result := l.params.Registry.Execute(ctx, req)
	refresh := result.Success && l.params.Registry.RefreshAfter(req.Tool)
	return result, refresh, nil
}

// pauseForHuman suspends automation until the operator resumes. The armed
// checkpoint is cleared on resume; if the same signal is still on the page
// the next observation re-arms it.
func (l *Loop) pauseForHuman(ctx context.Context, reason string) error {
	l.pause = PauseState{Active: true, Reason: reason}
	l.setState(StatePaused)
	l.logger.Warn("Paused for human intervention", zap.String("reason", reason))

	l.params.Operator.NotifyPause(reason)
	if err := l.params.Operator.AwaitResume(ctx); err != nil {
		return fmt.Errorf("paused run ended: %w", err)
	}

	l.pause = PauseState{}
	l.pendingCheckpoint = ""
	l.justResumed = true
	l.setState(StateActing)
	return nil
}

// evaluate folds one action result into the conversation, advances the
// iteration counter, tracks the failure streak, and scans the result for
// security signals.
func (l *Loop) evaluate(tool string, result schemas.ActionResult) {
	l.setState(StateEvaluating)
	result.Summary = capSummary(result.Summary)
	l.conv.Append(TurnResult, tool, describeResult(result))
	l.iterations++

	if result.Success {
		l.consecutiveFailures = 0
		l.logger.Info("Action succeeded", zap.String("tool", tool))
	} else {
		l.consecutiveFailures++
		l.logger.Warn("Action failed",
			zap.String("tool", tool),
			zap.String("error_code", string(result.ErrorCode)),
			zap.String("detail", result.ErrorDetail))
		if l.consecutiveFailures >= consecutiveFailureHintAt {
			hint := fmt.Sprintf("The last %d actions failed. Step back: re-observe the page, "+
				"try find_element_by_text to locate the element, or take a different route.",
				l.consecutiveFailures)
			if l.params.Registry.Has(ToolHumanHelp) {
				hint += " If you are genuinely blocked, call request_human_help."
			}
			l.conv.Append(TurnHint, "", hint)
			l.consecutiveFailures = 0
		}
	}

	if l.justResumed {
		l.justResumed = false
		return
	}
	if l.pendingCheckpoint == "" && !l.pause.Active {
		if signal := l.scanner.ScanText(result.Summary); signal != "" {
			l.armCheckpoint(signal)
		}
	}
}

func (l *Loop) armCheckpoint(signal string) {
	l.pendingCheckpoint = signal
	l.logger.Warn("Security checkpoint detected; next action will pause",
		zap.String("signal", signal))
}

func (l *Loop) fail(err error) (RunOutcome, error) {
	l.setState(StateFailed)
	l.logger.Error("Run failed", zap.Error(err))
	return RunOutcome{
		State:      schemas.RunFailed,
		Iterations: l.iterations,
		Summary:    err.Error(),
	}, err
}

// describeResult renders an ActionResult as the conversation's result turn.
func describeResult(r schemas.ActionResult) string {
	if r.Success {
		return r.Summary
	}
	s := "FAILED"
	if r.ErrorCode != "" {
		s += " [" + string(r.ErrorCode) + "]"
	}
	s += ": " + r.Summary
	if r.ErrorDetail != "" {
		s += " (" + r.ErrorDetail + ")"
	}
	return s
}
