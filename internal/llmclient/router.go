// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// LLMRouter implements schemas.LLMClient and dispatches each request to the
// client registered for its tier, throttled by a shared rate limiter so that
// coordinator and sub-agent traffic together stay under the provider quota.
type LLMRouter struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	clients map[schemas.ModelTier]schemas.LLMClient
}

var _ schemas.LLMClient = (*LLMRouter)(nil)

// NewLLMRouter creates a router over the two tier clients. A non-positive
// requestsPerMinute disables throttling.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient, requestsPerMinute float64) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60.0)
	}

	return &LLMRouter{
		logger:  logger.Named("llm_router"),
		limiter: rate.NewLimiter(limit, 1),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// Generate waits for rate-limiter clearance and forwards the request to the
// tier's client. An unspecified tier routes to the powerful model.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for LLM rate limiter: %w", err)
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}

// Close releases both tier clients. The tiers may share one backend, so each
// distinct client is closed exactly once.
func (r *LLMRouter) Close() error {
	closed := make(map[schemas.LLMClient]bool, len(r.clients))
	var firstErr error
	for _, client := range r.clients {
		if closed[client] {
			continue
		}
		closed[client] = true
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
