// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/mocks"
	"github.com/xkilldash9x/waldo-cli/internal/tokens"
)

// ErrBoom is a generic driver failure for tests.
var ErrBoom = errors.New("boom")

// -- Operator Mock --

// MockOperator mocks the Operator boundary. It lives here because Operator is
// consumed only by this package.
type MockOperator struct {
	mock.Mock
}

var _ Operator = (*MockOperator)(nil)

func (m *MockOperator) NotifyPause(reason string) {
	m.Called(reason)
}

func (m *MockOperator) AwaitResume(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockOperator) Confirm(ctx context.Context, description, risk string) (bool, error) {
	args := m.Called(ctx, description, risk)
	return args.Bool(0), args.Error(1)
}

// -- Scripted LLM --

// scriptedLLM replays canned replies in call order and records every request
// it saw, which lets tests assert on what the loop rendered into the prompt.
// The last reply repeats once the script is exhausted.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	requests []schemas.GenerationRequest
}

var _ schemas.LLMClient = (*scriptedLLM)(nil)

func (s *scriptedLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func (s *scriptedLLM) Close() error { return nil }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) request(i int) schemas.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func (s *scriptedLLM) lastRequest() schemas.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

// -- Fixture --

// quietPage wires a mock session to present a minimal benign page: one
// heading, no checkpoint signals.
func quietPage(sess *mocks.MockBrowserSession) {
	sess.On("CurrentURL", mock.Anything).Return("https://example.com/", nil)
	sess.On("Title", mock.Anything).Return("Example Domain", nil)
	sess.On("ExecuteScript", mock.Anything, mock.Anything).
		Return(stdjson.RawMessage(`[{"role":"heading","name":"Example Domain","tag":"h1"}]`), nil)
	sess.On("OuterHTML", mock.Anything, "body").Return("<body><h1>Example Domain</h1></body>", nil)
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxIterations:       10,
		TokenBudget:         3000,
		SubagentStepCeiling: 10,
		MaxProtocolRetries:  3,
		RoleCap:             10,
		FragmentMaxChars:    2000,
		Estimator:           "heuristic",
	}
}

func newTestCoordinator(t *testing.T, cfg config.AgentConfig, sess schemas.BrowserSession, llm schemas.LLMClient, op Operator) *Coordinator {
	t.Helper()
	return NewCoordinator(cfg, sess, llm, tokens.HeuristicEstimator{}, op, zaptest.NewLogger(t))
}

func actionJSON(tool, rationale string, args map[string]interface{}) string {
	payload := map[string]interface{}{
		"rationale": rationale,
		"tool":      tool,
		"args":      args,
	}
	b, err := stdjson.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(b)
}
