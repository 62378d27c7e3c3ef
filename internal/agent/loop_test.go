// File: internal/agent/loop_test.go
package agent

import (
	"context"
	stdjson "encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/mocks"
)

func newTask(goal string) schemas.Task {
	return schemas.Task{ID: "t-1", Goal: goal}
}

// -- Completion --

func TestRunCompletesWhenModelSignalsTaskComplete(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolTaskComplete, "nothing left to do", map[string]interface{}{
			"summary": "The page already shows the answer.",
		}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("read the page"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	assert.Equal(t, "The page already shows the answer.", outcome.Summary)
	assert.Equal(t, 0, outcome.Iterations)

	// The prompt the model saw must carry the task and the page state.
	req := llm.request(0)
	assert.Contains(t, req.UserPrompt, "TASK: read the page")
	assert.Contains(t, req.UserPrompt, "Example Domain")
	assert.Equal(t, schemas.TierPowerful, req.Tier)
}

func TestRunExecutesToolThenCompletes(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)
	sess.On("Click", mock.Anything, "#go").Return(nil)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolClick, "open the thing", map[string]interface{}{"selector": "#go"}),
		actionJSON(ToolTaskComplete, "done", map[string]interface{}{"summary": "Clicked it."}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("click the button"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	assert.Equal(t, 1, outcome.Iterations)
	sess.AssertCalled(t, "Click", mock.Anything, "#go")

	// The click result must be visible to the model on the next turn.
	assert.Contains(t, llm.request(1).UserPrompt, `Clicked "#go"`)
}

// -- Scenario D: iteration ceiling --

func TestRunAbortsAtIterationCeiling(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)
	sess.On("Scroll", mock.Anything, "down", 0).Return(nil)

	cfg := testAgentConfig()
	cfg.MaxIterations = 5

	// The model never emits a completion.
	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolScroll, "keep looking", map[string]interface{}{"direction": "down"}),
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("scroll forever"))

	require.NoError(t, err, "hitting the ceiling is a defined outcome, not an error")
	assert.Equal(t, schemas.RunAbortedLimit, outcome.State)
	assert.Equal(t, 5, outcome.Iterations)
	assert.Contains(t, outcome.Summary, "5-iteration ceiling")
	assert.Contains(t, outcome.Summary, "Scrolled down", "partial progress is reported")
}

// -- Scenario C: security checkpoint override --

func TestCheckpointOverridesModelAction(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	sess.On("CurrentURL", mock.Anything).Return("https://example.com/login", nil)
	sess.On("Title", mock.Anything).Return("Enter the verification code", nil)
	sess.On("ExecuteScript", mock.Anything, mock.Anything).
		Return(stdjson.RawMessage(`[{"role":"textbox","name":"Code","tag":"input"}]`), nil)
	sess.On("OuterHTML", mock.Anything, "body").Return("<body>Enter the verification code</body>", nil)

	op := &MockOperator{}
	op.On("NotifyPause", mock.Anything).Return()
	op.On("AwaitResume", mock.Anything).Return(nil)

	cfg := testAgentConfig()
	cfg.MaxIterations = 1

	// The model asks to click; the loop must pause instead.
	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolClick, "try to get past it", map[string]interface{}{"selector": "#submit"}),
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, op)
	outcome, err := coord.Run(context.Background(), newTask("log in"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunAbortedLimit, outcome.State)
	op.AssertCalled(t, "NotifyPause", mock.Anything)
	op.AssertCalled(t, "AwaitResume", mock.Anything)
	sess.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestCheckpointInPasswordFormMarkup(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	sess.On("CurrentURL", mock.Anything).Return("https://example.com/account", nil)
	sess.On("Title", mock.Anything).Return("Account", nil)
	sess.On("ExecuteScript", mock.Anything, mock.Anything).
		Return(stdjson.RawMessage(`[{"role":"button","name":"Sign in","tag":"button"}]`), nil)
	// The signal only shows in the raw markup, not the overview.
	sess.On("OuterHTML", mock.Anything, "body").
		Return(`<body><form><input type="password" name="pw"></form></body>`, nil)

	op := &MockOperator{}
	op.On("NotifyPause", mock.Anything).Return()
	op.On("AwaitResume", mock.Anything).Return(nil)

	cfg := testAgentConfig()
	cfg.MaxIterations = 1

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolClick, "sign in", map[string]interface{}{"selector": "button"}),
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, op)
	_, err := coord.Run(context.Background(), newTask("sign in"))

	require.NoError(t, err)
	op.AssertCalled(t, "NotifyPause", mock.Anything)
	sess.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestCompletionStillEndsRunWithArmedCheckpoint(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	sess.On("CurrentURL", mock.Anything).Return("https://example.com/", nil)
	sess.On("Title", mock.Anything).Return("CAPTCHA check", nil)
	sess.On("ExecuteScript", mock.Anything, mock.Anything).Return(stdjson.RawMessage(`[]`), nil)
	sess.On("OuterHTML", mock.Anything, "body").Return("<body>CAPTCHA check</body>", nil)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolTaskComplete, "cannot proceed", map[string]interface{}{
			"summary": "Blocked by a CAPTCHA; stopping.",
		}),
	}}

	op := &MockOperator{}
	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, op)
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	op.AssertNotCalled(t, "NotifyPause", mock.Anything)
}

// -- request_human_help --

func TestHumanHelpPausesAndForcesFreshObservation(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	op := &MockOperator{}
	op.On("NotifyPause", "Please finish the login for me.").Return()
	op.On("AwaitResume", mock.Anything).Return(nil)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolHumanHelp, "I need a person", map[string]interface{}{
			"description": "Please finish the login for me.",
		}),
		actionJSON(ToolTaskComplete, "done", map[string]interface{}{"summary": "Finished after help."}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, op)
	outcome, err := coord.Run(context.Background(), newTask("log in"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	op.AssertCalled(t, "NotifyPause", "Please finish the login for me.")

	// Two observations: the initial one and the forced post-resume pass.
	sess.AssertNumberOfCalls(t, "ExecuteScript", 2)
}

func TestPauseEndsRunWhenContextCanceled(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	op := &MockOperator{}
	op.On("NotifyPause", mock.Anything).Return()
	op.On("AwaitResume", mock.Anything).Return(context.Canceled)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolHumanHelp, "stuck", map[string]interface{}{"description": "help"}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, op)
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.Error(t, err)
	assert.Equal(t, schemas.RunFailed, outcome.State)
}

// -- Protocol faults --

func TestProtocolRetriesThenRecordedAsFailure(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	cfg := testAgentConfig()
	cfg.MaxIterations = 1
	cfg.MaxProtocolRetries = 3

	llm := &scriptedLLM{replies: []string{
		"I think we should probably look around first.",
		"Sorry, here is my reasoning in plain text again.",
		"Still no JSON from me.",
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunAbortedLimit, outcome.State)
	assert.Equal(t, 3, llm.calls(), "one call per corrective attempt")

	// The second and third prompts must carry escalating hints.
	assert.Contains(t, llm.request(1).UserPrompt, "HINT:")
	assert.Contains(t, llm.request(2).UserPrompt, "single valid JSON")
}

func TestProtocolFaultRecoversOnValidRetry(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	llm := &scriptedLLM{replies: []string{
		"Let me think about this out loud instead of acting.",
		actionJSON(ToolTaskComplete, "ok", map[string]interface{}{"summary": "Recovered."}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	assert.Equal(t, "Recovered.", outcome.Summary)
}

// -- Tool faults --

func TestUnknownToolFailsClosedAndLoopContinues(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	llm := &scriptedLLM{replies: []string{
		actionJSON("teleport", "zoom", map[string]interface{}{"to": "checkout"}),
		actionJSON(ToolTaskComplete, "giving up", map[string]interface{}{"summary": "No teleporting."}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	assert.Contains(t, llm.request(1).UserPrompt, `Unknown tool "teleport"`)
}

func TestConsecutiveFailuresInjectHint(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)
	sess.On("Click", mock.Anything, "#gone").Return(ErrBoom)

	cfg := testAgentConfig()
	cfg.MaxIterations = 4

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolClick, "try", map[string]interface{}{"selector": "#gone"}),
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunAbortedLimit, outcome.State)
	// After three straight failures the fourth prompt carries the hint.
	assert.Contains(t, llm.request(3).UserPrompt, "HINT: The last 3 actions failed")
	assert.Contains(t, llm.request(3).UserPrompt, "request_human_help")
}

// -- Scenario E + isolation: delegation --

func TestDelegationReturnsIncompleteSummaryAndIsolatesChild(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	cfg := testAgentConfig()
	cfg.SubagentStepCeiling = 2

	llm := &scriptedLLM{replies: []string{
		// Parent delegates.
		actionJSON(ToolDelegate, "the form is fiddly", map[string]interface{}{
			"subagent": "form_filler",
			"subtask":  "fill in the shipping form",
		}),
		// Child (same scripted client, fast tier) burns its two steps.
		actionJSON(ToolPageOverview, "SECRETCHILDTHOUGHT one", nil),
		actionJSON(ToolPageOverview, "SECRETCHILDTHOUGHT two", nil),
		// Parent proceeds.
		actionJSON(ToolTaskComplete, "wrap up", map[string]interface{}{"summary": "Done despite the form."}),
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("buy the thing"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	require.Equal(t, 4, llm.calls())

	// The child ran on the fast tier with its own goal and restricted tools.
	childReq := llm.request(1)
	assert.Equal(t, schemas.TierFast, childReq.Tier)
	assert.Contains(t, childReq.UserPrompt, "TASK: fill in the shipping form")
	assert.Contains(t, childReq.SystemPrompt, "form-filling specialist")
	assert.NotContains(t, childReq.SystemPrompt, ToolDelegate, "sub-agents cannot delegate")
	assert.NotContains(t, childReq.UserPrompt, "buy the thing", "child never sees the parent transcript")

	// The parent sees exactly one folded summary, flagged incomplete, and
	// nothing of the child's internal turns.
	parentReq := llm.request(3)
	assert.Contains(t, parentReq.UserPrompt, "[INCOMPLETE]")
	assert.Contains(t, parentReq.UserPrompt, "after 2 step(s)")
	assert.NotContains(t, parentReq.UserPrompt, "SECRETCHILDTHOUGHT")
}

func TestDelegationCompletesSuccessfully(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolDelegate, "read it for me", map[string]interface{}{
			"subagent": "data_reader",
			"subtask":  "extract the headline",
		}),
		actionJSON(ToolTaskComplete, "found it", map[string]interface{}{
			"summary": "The headline is Example Domain.",
		}),
		actionJSON(ToolTaskComplete, "relay", map[string]interface{}{
			"summary": "Headline extracted.",
		}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("get the headline"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)

	parentReq := llm.request(2)
	assert.Contains(t, parentReq.UserPrompt, "The headline is Example Domain.")
	assert.NotContains(t, parentReq.UserPrompt, "[INCOMPLETE]")
}

func TestDelegationToUnknownProfileFailsClosed(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	llm := &scriptedLLM{replies: []string{
		actionJSON(ToolDelegate, "try", map[string]interface{}{
			"subagent": "locksmith",
			"subtask":  "open the vault",
		}),
		actionJSON(ToolTaskComplete, "nope", map[string]interface{}{"summary": "No such helper."}),
	}}

	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunDone, outcome.State)
	assert.Contains(t, llm.request(1).UserPrompt, `Unknown sub-agent "locksmith"`)
	assert.Contains(t, llm.request(1).UserPrompt, "data_reader, form_filler, navigator")
}

func TestSubagentStopsAtCheckpointWithoutPausing(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	sess.On("CurrentURL", mock.Anything).Return("https://example.com/", nil)
	sess.On("Title", mock.Anything).Return("Prove you are human: CAPTCHA", nil)
	sess.On("ExecuteScript", mock.Anything, mock.Anything).Return(stdjson.RawMessage(`[]`), nil)
	sess.On("OuterHTML", mock.Anything, "body").Return("<body>CAPTCHA</body>", nil)

	op := &MockOperator{}
	op.On("NotifyPause", mock.Anything).Return()
	op.On("AwaitResume", mock.Anything).Return(nil)

	cfg := testAgentConfig()
	cfg.MaxIterations = 1

	llm := &scriptedLLM{replies: []string{
		// Parent delegates immediately; the checkpoint interception happens at
		// the parent's own ACTING phase only after detection, so the first
		// parent action (the delegation itself) is overridden instead.
		actionJSON(ToolDelegate, "go", map[string]interface{}{
			"subagent": "navigator",
			"subtask":  "open the next page",
		}),
	}}

	coord := newTestCoordinator(t, cfg, sess, llm, op)
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.NoError(t, err)
	assert.Equal(t, schemas.RunAbortedLimit, outcome.State)
	// The coordinator paused; the child never ran a single model call.
	op.AssertCalled(t, "NotifyPause", mock.Anything)
	assert.Equal(t, 1, llm.calls())
}

// -- Setup faults --

func TestInitialObservationFailureIsFatal(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	sess.On("CurrentURL", mock.Anything).Return("", ErrBoom)

	llm := &scriptedLLM{replies: []string{"unused"}}
	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(context.Background(), newTask("task"))

	require.Error(t, err)
	assert.Equal(t, schemas.RunFailed, outcome.State)
	assert.Equal(t, 0, llm.calls())
}

func TestCanceledContextFailsRun(t *testing.T) {
	sess := &mocks.MockBrowserSession{}
	quietPage(sess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{replies: []string{"unused"}}
	coord := newTestCoordinator(t, testAgentConfig(), sess, llm, &MockOperator{})
	outcome, err := coord.Run(ctx, newTask("task"))

	require.Error(t, err)
	assert.Equal(t, schemas.RunFailed, outcome.State)
}
