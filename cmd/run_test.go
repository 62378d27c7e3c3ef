// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/agent"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/mocks"
)

// nopOperator satisfies the operator boundary without a terminal.
type nopOperator struct{}

func (nopOperator) NotifyPause(string)                                {}
func (nopOperator) AwaitResume(context.Context) error                 { return nil }
func (nopOperator) Confirm(context.Context, string, string) (bool, error) { return true, nil }

// writeTestConfig writes a minimal config file disabling the log file sink so
// tests leave nothing behind in the home directory.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waldo.yaml")
	content := "logger:\n  log_file: \"\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// stubSession returns a browser mock for a benign single page.
func stubSession(t *testing.T) *mocks.MockBrowserSession {
	t.Helper()
	sess := &mocks.MockBrowserSession{}
	sess.On("CurrentURL", mock.Anything).Return("https://example.com/", nil).Maybe()
	sess.On("Title", mock.Anything).Return("Example Domain", nil).Maybe()
	sess.On("ExecuteScript", mock.Anything, mock.Anything).
		Return(json.RawMessage(`[{"role":"heading","name":"Example Domain","selector":"h1"}]`), nil).Maybe()
	sess.On("OuterHTML", mock.Anything, "body").Return("<body><h1>Example Domain</h1></body>", nil).Maybe()
	sess.On("Close", mock.Anything).Return(nil).Once()
	return sess
}

// install swaps the command's injection points for the duration of one test.
func install(t *testing.T, sess schemas.BrowserSession, llm schemas.LLMClient, st schemas.RunStore) {
	t.Helper()
	origSession, origLLM, origStore, origOperator := newBrowserSession, newLLMClient, openRunStore, newOperator
	t.Cleanup(func() {
		newBrowserSession, newLLMClient, openRunStore, newOperator = origSession, origLLM, origStore, origOperator
	})

	newBrowserSession = func(ctx context.Context, bc config.BrowserConfig, logger *zap.Logger) (schemas.BrowserSession, error) {
		return sess, nil
	}
	newLLMClient = func(ctx context.Context, c *config.Config, logger *zap.Logger) (schemas.LLMClient, error) {
		return llm, nil
	}
	openRunStore = func(ctx context.Context, dsn string, logger *zap.Logger) (schemas.RunStore, error) {
		if st == nil {
			return nil, errors.New("no store configured in this test")
		}
		return st, nil
	}
	newOperator = func(logger *zap.Logger) agent.Operator {
		return nopOperator{}
	}
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCompletedTaskArchivesAndPrintsOutcome(t *testing.T) {
	sess := stubSession(t)
	llm := &mocks.MockLLMClient{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"rationale": "nothing left to do", "tool": "task_complete", "args": {"summary": "All done."}}`, nil)
	llm.On("Close").Return(nil).Once()

	st := &mocks.MockRunStore{}
	st.On("SaveRun", mock.Anything, mock.MatchedBy(func(rec schemas.RunRecord) bool {
		return rec.FinalState == schemas.RunDone &&
			rec.Task == "read the example page" &&
			rec.Summary == "All done."
	})).Return(nil).Once()
	st.On("Close").Return().Once()

	install(t, sess, llm, st)
	cfgPath := writeTestConfig(t, "store:\n  enabled: true\n  dsn: postgres://stub\n")

	out, err := executeCLI(t, "--config", cfgPath, "run", "read the example page")
	require.NoError(t, err)
	assert.Contains(t, out, "DONE after")
	assert.Contains(t, out, "All done.")

	sess.AssertExpectations(t)
	llm.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestRunReturnsSentinelAtIterationCeiling(t *testing.T) {
	sess := stubSession(t)
	sess.On("Navigate", mock.Anything, "https://example.com/next").Return(nil)

	llm := &mocks.MockLLMClient{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"rationale": "keep going", "tool": "navigate_to", "args": {"url": "https://example.com/next"}}`, nil)
	llm.On("Close").Return(nil).Once()

	install(t, sess, llm, nil)
	cfgPath := writeTestConfig(t, "agent:\n  max_iterations: 1\n")

	out, err := executeCLI(t, "--config", cfgPath, "run", "an endless task")
	assert.ErrorIs(t, err, errAbortedLimit)
	assert.Contains(t, out, "ABORTED_LIMIT")
}

func TestRunRejectsBlankTask(t *testing.T) {
	install(t, stubSession(t), &mocks.MockLLMClient{}, nil)
	cfgPath := writeTestConfig(t, "")

	_, err := executeCLI(t, "--config", cfgPath, "run", "   ")
	assert.ErrorContains(t, err, "must not be empty")
}

func TestRunSurfacesLLMSetupFailure(t *testing.T) {
	origLLM := newLLMClient
	t.Cleanup(func() { newLLMClient = origLLM })
	newLLMClient = func(ctx context.Context, c *config.Config, logger *zap.Logger) (schemas.LLMClient, error) {
		return nil, errors.New("no credentials")
	}

	cfgPath := writeTestConfig(t, "")
	_, err := executeCLI(t, "--config", cfgPath, "run", "anything")
	assert.ErrorContains(t, err, "failed to initialize LLM client")
}
