// File: internal/browser/session/frames.go
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// SwitchFrame scopes subsequent element operations to the iframe matched by
// the selector. The frame must exist in the main document and be same-origin;
// cross-origin frames cannot be scripted and are refused. Scoping is always
// resolved from the main document, so switching frames twice replaces the
// scope rather than nesting it.
func (s *Session) SwitchFrame(ctx context.Context, selector string) error {
	if err := ValidateSelector(selector); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	// Probe from the main document regardless of the current scope.
	s.mu.Lock()
	s.frameSelector = ""
	s.mu.Unlock()

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "missing";
		if (el.tagName.toLowerCase() !== 'iframe') return "not_frame";
		try {
			if (!el.contentDocument) return "cross_origin";
			void el.contentDocument.title;
		} catch (e) {
			return "cross_origin";
		}
		return "ok";
	})()`, jsonEncode(selector))

	raw, err := s.evaluate(ctx, script)
	if err != nil {
		return fmt.Errorf("switching to frame %q: %w", selector, err)
	}
	var verdict string
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return fmt.Errorf("switching to frame %q: %w", selector, err)
	}

	switch verdict {
	case "ok":
	case "missing":
		return fmt.Errorf("%w: no iframe matches %q", ErrElementNotFound, selector)
	case "not_frame":
		return fmt.Errorf("element %q is not an iframe", selector)
	case "cross_origin":
		return fmt.Errorf("iframe %q is cross-origin and cannot be scripted", selector)
	default:
		return fmt.Errorf("switching to frame %q: unexpected probe result %q", selector, verdict)
	}

	s.mu.Lock()
	s.frameSelector = selector
	s.mu.Unlock()

	s.logger.Debug("Switched into frame", zap.String("selector", selector))
	return nil
}

// SwitchMainContent clears iframe scoping; element operations address the
// main document again.
func (s *Session) SwitchMainContent(ctx context.Context) error {
	s.mu.Lock()
	had := s.frameSelector
	s.frameSelector = ""
	s.mu.Unlock()

	if had != "" {
		s.logger.Debug("Returned to main content", zap.String("previous_frame", had))
	}
	return nil
}

// inFrame reports whether element operations are currently scoped to an
// iframe.
func (s *Session) inFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameSelector != ""
}

// wrapForFrame rewrites a script so that, under an iframe scope, its
// document references resolve to the frame's document. The shadowing const
// only binds lexically, which is exactly the contract: scripts built by this
// package reference document directly and inherit the scope.
func (s *Session) wrapForFrame(script string) string {
	s.mu.Lock()
	sel := s.frameSelector
	s.mu.Unlock()
	if sel == "" {
		return script
	}
	return fmt.Sprintf(`(function() {
	const __frame = window.document.querySelector(%s);
	if (!__frame || !__frame.contentDocument) {
		throw new Error("frame no longer available: " + %s);
	}
	const document = __frame.contentDocument;
	return (%s);
})()`, jsonEncode(sel), jsonEncode(sel), script)
}
