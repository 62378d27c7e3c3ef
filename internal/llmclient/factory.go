// File: internal/llmclient/factory.go

// Package llmclient provides the model backends behind schemas.LLMClient:
// a Gemini client on the official SDK, an OpenAI-compatible client speaking
// the chat completions wire format, and a tier router that throttles and
// dispatches between them.
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/config"
)

// NewRouterFromConfig builds the two tier clients declared in the config and
// wires them into a rate-limited router. Construction failures here are setup
// faults; the caller aborts rather than retrying.
func NewRouterFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LLMRouter, error) {
	fastName, fastCfg := cfg.ModelFor("fast")
	powerfulName, powerfulCfg := cfg.ModelFor("powerful")

	fast, err := newClient(ctx, fastName, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building fast-tier client %q: %w", fastName, err)
	}

	// Both tiers may resolve to the same model; reuse the client so Close is
	// not called twice on one backend.
	var powerful schemas.LLMClient
	if powerfulName == fastName {
		powerful = fast
	} else {
		powerful, err = newClient(ctx, powerfulName, powerfulCfg, logger)
		if err != nil {
			_ = fast.Close()
			return nil, fmt.Errorf("building powerful-tier client %q: %w", powerfulName, err)
		}
	}

	return NewLLMRouter(logger, fast, powerful, cfg.LLM.RequestsPerMinute)
}

// newClient builds one concrete client for a model entry.
func newClient(ctx context.Context, name string, mc config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch resolveProvider(name, mc) {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, mc, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(mc, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider for model %q. Supported: [%s, %s]",
			name, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// resolveProvider honors an explicit provider and otherwise infers one from
// the model name, defaulting to Gemini.
func resolveProvider(name string, mc config.LLMModelConfig) config.LLMProvider {
	if mc.Provider != "" {
		return mc.Provider
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "gpt-") ||
		strings.HasPrefix(lower, "o1") ||
		strings.HasPrefix(lower, "o3") ||
		strings.HasPrefix(lower, "o4") {
		return config.ProviderOpenAI
	}
	return config.ProviderGemini
}
