// File: internal/mocks/mocks.go

// Package mocks provides shared testify mocks for the interfaces defined in
// api/schemas. Mocks for interfaces private to a package live next to that
// package's tests instead.
package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// -- Browser Session Mock --

// MockBrowserSession mocks schemas.BrowserSession.
type MockBrowserSession struct {
	mock.Mock
}

var _ schemas.BrowserSession = (*MockBrowserSession)(nil)

func (m *MockBrowserSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBrowserSession) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBrowserSession) Click(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockBrowserSession) Hover(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockBrowserSession) Type(ctx context.Context, selector string, text string) error {
	args := m.Called(ctx, selector, text)
	return args.Error(0)
}

func (m *MockBrowserSession) PressKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBrowserSession) Scroll(ctx context.Context, direction string, amount int) error {
	args := m.Called(ctx, direction, amount)
	return args.Error(0)
}

func (m *MockBrowserSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	args := m.Called(ctx, selector, timeout)
	return args.Error(0)
}

func (m *MockBrowserSession) ListTabs(ctx context.Context) ([]schemas.TabInfo, error) {
	args := m.Called(ctx)
	var tabs []schemas.TabInfo
	if v := args.Get(0); v != nil {
		tabs = v.([]schemas.TabInfo)
	}
	return tabs, args.Error(1)
}

func (m *MockBrowserSession) SwitchTab(ctx context.Context, index int) error {
	args := m.Called(ctx, index)
	return args.Error(0)
}

func (m *MockBrowserSession) CloseTab(ctx context.Context, index int) error {
	args := m.Called(ctx, index)
	return args.Error(0)
}

func (m *MockBrowserSession) SwitchFrame(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockBrowserSession) SwitchMainContent(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBrowserSession) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserSession) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserSession) ExecuteScript(ctx context.Context, script string) (json.RawMessage, error) {
	args := m.Called(ctx, script)
	var raw json.RawMessage
	if v := args.Get(0); v != nil {
		raw = v.(json.RawMessage)
	}
	return raw, args.Error(1)
}

func (m *MockBrowserSession) OuterHTML(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Token Estimator Mock --

// MockTokenEstimator mocks schemas.TokenEstimator.
type MockTokenEstimator struct {
	mock.Mock
}

var _ schemas.TokenEstimator = (*MockTokenEstimator)(nil)

func (m *MockTokenEstimator) Estimate(text string) int {
	args := m.Called(text)
	return args.Int(0)
}

func (m *MockTokenEstimator) Name() string {
	args := m.Called()
	return args.String(0)
}

// -- LLM Client Mock --

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Run Store Mock --

// MockRunStore mocks schemas.RunStore.
type MockRunStore struct {
	mock.Mock
}

var _ schemas.RunStore = (*MockRunStore)(nil)

func (m *MockRunStore) SaveRun(ctx context.Context, rec schemas.RunRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRunStore) ListRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	args := m.Called(ctx, limit)
	var recs []schemas.RunRecord
	if v := args.Get(0); v != nil {
		recs = v.([]schemas.RunRecord)
	}
	return recs, args.Error(1)
}

func (m *MockRunStore) Close() {
	m.Called()
}
