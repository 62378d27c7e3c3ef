// File: internal/tokens/estimator.go

// Package tokens provides size estimators for text destined for a model
// context window. Estimates gate compression decisions, so they need to be
// cheap and monotonic rather than exact.
package tokens

import (
	"fmt"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

const (
	StrategyHeuristic = "heuristic"
	StrategyTiktoken  = "tiktoken"
)

// New returns the estimator for the named strategy. The model name only
// matters for tiktoken, which picks an encoding from it.
func New(strategy, model string) (schemas.TokenEstimator, error) {
	switch strategy {
	case StrategyHeuristic, "":
		return HeuristicEstimator{}, nil
	case StrategyTiktoken:
		return NewTiktokenEstimator(model), nil
	default:
		return nil, fmt.Errorf("unknown estimator strategy %q", strategy)
	}
}

// HeuristicEstimator approximates tokens as ceil(len/4). English prose runs
// close to four characters per token; markup runs denser, which makes this
// estimate conservative for budget checks.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(text string) int {
	return heuristicEstimate(text)
}

func (HeuristicEstimator) Name() string { return StrategyHeuristic }

func heuristicEstimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
