// File: api/schemas/interfaces.go
package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// BrowserSession defines the interface for controlling a single browser
// instance: navigation, element interaction, tab and frame management, and
// the raw primitives the page extractor builds on. Every operation is
// fallible and callers must never assume success.
//
//go:generate mockery --name BrowserSession --output ../../internal/mocks --outpkg mocks
type BrowserSession interface {
	ID() string                                                        // Returns the unique ID of the session.
	Navigate(ctx context.Context, url string) error                    // Loads a URL in the active tab.
	Click(ctx context.Context, selector string) error                  // Clicks the first element matching the selector.
	Hover(ctx context.Context, selector string) error                  // Moves the pointer over an element.
	Type(ctx context.Context, selector string, text string) error      // Clears the field and types text into it.
	PressKey(ctx context.Context, key string) error                    // Presses a single whitelisted key.
	Scroll(ctx context.Context, direction string, amount int) error    // Scrolls the page.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error // Waits for an element to become visible.

	ListTabs(ctx context.Context) ([]TabInfo, error) // Enumerates open tabs.
	SwitchTab(ctx context.Context, index int) error  // Activates a tab and brings it to front.
	CloseTab(ctx context.Context, index int) error   // Closes a tab; the last tab cannot be closed.

	SwitchFrame(ctx context.Context, selector string) error // Scopes element operations to an iframe.
	SwitchMainContent(ctx context.Context) error             // Clears iframe scoping.

	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// ExecuteScript evaluates a read-only JavaScript expression in the active
	// frame and returns its JSON-serialized value.
	ExecuteScript(ctx context.Context, script string) (json.RawMessage, error)
	// OuterHTML returns the raw outer HTML of the first element matching the
	// selector. Callers are expected to simplify before exposing it anywhere.
	OuterHTML(ctx context.Context, selector string) (string, error)

	Close(ctx context.Context) error // Tears the browser down.
}

// TokenEstimator prices a piece of text in model tokens. Estimation is
// approximate by contract; the compressor's truncation algorithm only
// requires that the same text always gets the same price.
type TokenEstimator interface {
	Estimate(text string) int
	Name() string
}

// RunStore persists finished run records for the history listing. The
// decision loop itself never touches a store.
//
//go:generate mockery --name RunStore --output ../../internal/mocks --outpkg mocks
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close()
}

// -- LLM Client Schemas & Interface --

// ModelTier selects a model by preference for speed versus capability.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, cheaper model.
	TierPowerful ModelTier = "powerful" // Prefers the most capable model.
)

// GenerationOptions controls the text generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest is one complete request to the LLM: the system prompt
// establishing the agent persona, the rendered conversation as the user
// prompt, the desired tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts a Large Language Model backend.
//
//go:generate mockery --name LLMClient --output ../../internal/mocks --outpkg mocks
type LLMClient interface {
	// Generate produces a completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}
