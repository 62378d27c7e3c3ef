// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/browser/session"
)

// classifyActionError maps a driver error onto the coarse code vocabulary the
// model is prompted to react to. The driver exposes typed sentinels for the
// common cases; everything else is classified by matching the diagnostic
// string, which is the only contract the DevTools protocol offers.
func classifyActionError(err error) (schemas.ErrorCode, string) {
	if err == nil {
		return "", ""
	}
	msg := err.Error()

	if errors.Is(err, session.ErrElementNotFound) {
		return schemas.ErrCodeElementNotFound, msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return schemas.ErrCodeTimeout, msg
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "selector is empty"),
		strings.Contains(lower, "comma-separated list"),
		strings.Contains(lower, "matches the entire document"),
		strings.Contains(lower, "must not be empty"),
		strings.Contains(lower, "unsupported key"),
		strings.Contains(lower, "invalid scroll direction"):
		return schemas.ErrCodeInvalidArgument, msg

	case strings.Contains(msg, "net::ERR"),
		strings.Contains(lower, "navigation to"),
		strings.Contains(lower, "navigation scheme"),
		strings.Contains(lower, "invalid url"),
		strings.Contains(lower, "has no host"),
		strings.Contains(lower, "url is empty"),
		strings.Contains(lower, "allowed host list"):
		return schemas.ErrCodeNavigation, msg

	case strings.Contains(lower, "could not find node"),
		strings.Contains(lower, "no element found"),
		strings.Contains(lower, "node does not exist"),
		strings.Contains(lower, "did not become visible"):
		return schemas.ErrCodeElementNotFound, msg

	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return schemas.ErrCodeTimeout, msg
	}

	return schemas.ErrCodeExecutionFailure, msg
}

// failedResult builds the ActionResult for a classified driver error.
func failedResult(summary string, err error) schemas.ActionResult {
	code, detail := classifyActionError(err)
	return schemas.ActionResult{
		Success:     false,
		Summary:     summary,
		ErrorCode:   code,
		ErrorDetail: detail,
	}
}
