// File: internal/agent/security.go
package agent

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/page"
)

// checkpointSignals are the phrases that mark a page or result as a security
// boundary. Matching is case-insensitive; more specific phrases come first so
// the reported reason names the thing actually seen.
var checkpointSignals = []string{
	"smartcaptcha",
	"captcha",
	"i am not a robot",
	"i'm not a robot",
	"two-factor",
	"2fa",
	"verification code",
	"one-time code",
}

const checkpointPasswordForm = "password login form"

// CheckpointScanner detects security boundaries the agent must not cross on
// its own: CAPTCHAs, second factors, and credential prompts.
type CheckpointScanner struct {
	sess   schemas.BrowserSession
	logger *zap.Logger
}

func NewCheckpointScanner(sess schemas.BrowserSession, logger *zap.Logger) *CheckpointScanner {
	return &CheckpointScanner{sess: sess, logger: logger.Named("checkpoint_scanner")}
}

// ScanText reports the first checkpoint signal found in the text, or ""
// when the text is clean.
func (s *CheckpointScanner) ScanText(text string) string {
	lowered := strings.ToLower(text)
	for _, signal := range checkpointSignals {
		if strings.Contains(lowered, signal) {
			return signal
		}
	}
	return ""
}

// ScanPage checks the rendered observation first, then the underlying page
// markup. The markup pass catches password inputs and challenge widgets that
// do not surface in the element overview. A page that cannot be fetched scans
// clean; the scanner never fails an observation.
func (s *CheckpointScanner) ScanPage(ctx context.Context, visible string) string {
	if signal := s.ScanText(visible); signal != "" {
		return signal
	}

	body, err := s.sess.OuterHTML(ctx, "body")
	if err != nil {
		s.logger.Debug("Checkpoint scan could not fetch page markup.", zap.Error(err))
		return ""
	}

	if signal := s.ScanText(page.SimplifyFragment(body)); signal != "" {
		return signal
	}
	if hasPasswordInput(s.logger, body) {
		return checkpointPasswordForm
	}
	return ""
}

func hasPasswordInput(logger *zap.Logger, body string) bool {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		logger.Debug("Checkpoint scan could not parse page markup.", zap.Error(err))
		return false
	}
	node, err := htmlquery.Query(doc, "//input[@type='password']")
	if err != nil {
		logger.Debug("Checkpoint scan password query failed.", zap.Error(err))
		return false
	}
	return node != nil
}
