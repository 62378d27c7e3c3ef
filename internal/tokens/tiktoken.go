// File: internal/tokens/tiktoken.go
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps model-name prefixes to tiktoken encodings. Gemini has
// no published tiktoken encoding; cl100k_base tracks it closely enough for
// budgeting purposes.
var modelEncodings = map[string]string{
	"gpt-4o":  "o200k_base",
	"gpt-4":   "cl100k_base",
	"gpt-3.5": "cl100k_base",
	"gemini":  "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// getEncoding is indirect so tests can simulate initialization failure.
var getEncoding = tiktoken.GetEncoding

// TiktokenEstimator counts tokens with a real BPE encoding. Encoding data is
// loaded lazily on first use; if loading fails the estimator degrades to the
// character heuristic rather than blocking the run.
type TiktokenEstimator struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenEstimator picks the encoding for the given model name.
func NewTiktokenEstimator(model string) *TiktokenEstimator {
	return &TiktokenEstimator{encoding: encodingForModel(model)}
}

func (e *TiktokenEstimator) Estimate(text string) int {
	e.once.Do(func() {
		e.enc, e.initErr = getEncoding(e.encoding)
	})
	if e.initErr != nil || e.enc == nil {
		return heuristicEstimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

func (e *TiktokenEstimator) Name() string { return StrategyTiktoken }

func encodingForModel(model string) string {
	lower := strings.ToLower(model)
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(lower, prefix) {
			return enc
		}
	}
	return defaultEncoding
}
