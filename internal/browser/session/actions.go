// File: internal/browser/session/actions.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultScrollAmount = 500

// Navigate validates the URL, loads it in the active tab, and clears any
// iframe scoping. Navigation to non-web schemes, private addresses, or hosts
// outside the allow list is refused before the browser sees the URL.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	finalURL, err := SafeURL(rawURL)
	if err != nil {
		return err
	}
	if err := s.checkHostAllowed(finalURL); err != nil {
		return err
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	s.frameSelector = ""
	s.mu.Unlock()

	opCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Navigate(finalURL)); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", finalURL, s.cfg.NavigationTimeout, opCtx.Err())
		}
		return fmt.Errorf("navigation to %s failed: %w", finalURL, err)
	}

	s.logger.Debug("Navigation complete", zap.String("url", finalURL))
	return nil
}

// Click clicks the first element matching the selector. The native click is
// tried first; when it fails the click is retried through the DOM, which
// also covers elements the pointer cannot reach.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ValidateSelector(selector); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if s.inFrame() {
		return s.jsClick(ctx, selector)
	}

	opCtx, cancel := s.opContext(ctx, s.cfg.ActionTimeout)
	err := chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
	cancel()
	if err == nil {
		s.logger.Debug("Clicked element", zap.String("selector", selector))
		return nil
	}

	s.logger.Debug("Native click failed, retrying through the DOM",
		zap.String("selector", selector), zap.Error(err))
	return s.jsClick(ctx, selector)
}

func (s *Session) jsClick(ctx context.Context, selector string) error {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); if (!el) return null; el.click(); return true; })()`,
		jsonEncode(selector))
	raw, err := s.evaluate(ctx, script)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	if string(raw) == "null" {
		return fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	s.logger.Debug("Clicked element via DOM", zap.String("selector", selector))
	return nil
}

// Hover moves the pointer over the element matched by the selector. Inside
// an iframe scope the hover is synthesized with DOM events instead.
func (s *Session) Hover(ctx context.Context, selector string) error {
	if err := ValidateSelector(selector); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if s.inFrame() {
		return s.jsHover(ctx, selector)
	}

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		el.scrollIntoView({block: 'center', inline: 'center'});
		const r = el.getBoundingClientRect();
		return {x: r.left + r.width / 2, y: r.top + r.height / 2};
	})()`, jsonEncode(selector))

	raw, err := s.evaluate(ctx, script)
	if err != nil {
		return fmt.Errorf("hovering %q: %w", selector, err)
	}
	if string(raw) == "null" {
		return fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}

	var pt struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(raw, &pt); err != nil {
		return fmt.Errorf("decoding geometry of %q: %w", selector, err)
	}

	opCtx, cancel := s.opContext(ctx, s.cfg.ActionTimeout)
	defer cancel()
	err = chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y).Do(ctx)
	}))
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("hover over %q timed out after %v: %w", selector, s.cfg.ActionTimeout, opCtx.Err())
		}
		return fmt.Errorf("hover over %q failed: %w", selector, err)
	}
	s.logger.Debug("Hovered element", zap.String("selector", selector))
	return nil
}

func (s *Session) jsHover(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
		el.dispatchEvent(new MouseEvent('mouseenter', {bubbles: false}));
		return true;
	})()`, jsonEncode(selector))
	raw, err := s.evaluate(ctx, script)
	if err != nil {
		return fmt.Errorf("hovering %q: %w", selector, err)
	}
	if string(raw) == "null" {
		return fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	return nil
}

// Type clears the field matched by the selector and types text into it,
// waiting for the field to become visible first.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	if err := ValidateSelector(selector); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if s.inFrame() {
		return s.jsType(ctx, selector, text)
	}

	opCtx, cancel := s.opContext(ctx, s.cfg.ActionTimeout)
	defer cancel()

	err := chromedp.Run(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("typing into %q timed out after %v, the element may not exist or be visible: %w",
				selector, s.cfg.ActionTimeout, opCtx.Err())
		}
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}

	s.logger.Debug("Typed into element",
		zap.String("selector", selector), zap.Int("chars", len(text)))
	return nil
}

// jsType sets the value directly and fires the events frameworks listen for.
func (s *Session) jsType(ctx context.Context, selector, text string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		el.focus();
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, jsonEncode(selector), jsonEncode(text))
	raw, err := s.evaluate(ctx, script)
	if err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	if string(raw) == "null" {
		return fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	return nil
}

// PressKey dispatches a single named key to the focused element. Only the
// whitelisted control and navigation keys are accepted.
func (s *Session) PressKey(ctx context.Context, key string) error {
	code, ok := keyCode(key)
	if !ok {
		return fmt.Errorf("unsupported key %q, allowed keys: %s", key, strings.Join(AllowedKeys(), ", "))
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	opCtx, cancel := s.opContext(ctx, s.cfg.ActionTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.KeyEvent(code)); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("pressing %s timed out after %v: %w", key, s.cfg.ActionTimeout, opCtx.Err())
		}
		return fmt.Errorf("pressing %s failed: %w", key, err)
	}
	s.logger.Debug("Pressed key", zap.String("key", key))
	return nil
}

// Scroll moves the viewport. Directions down and up scroll by amount pixels
// (default 500), page_down and page_up send paging keys, bottom and top jump
// to the document extremes.
func (s *Session) Scroll(ctx context.Context, direction string, amount int) error {
	if amount <= 0 {
		amount = defaultScrollAmount
	}

	var script string
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "down":
		script = fmt.Sprintf(`(() => { (document.defaultView || window).scrollBy(0, %d); return true; })()`, amount)
	case "up":
		script = fmt.Sprintf(`(() => { (document.defaultView || window).scrollBy(0, -%d); return true; })()`, amount)
	case "bottom":
		script = `(() => { (document.defaultView || window).scrollTo(0, document.body.scrollHeight); return true; })()`
	case "top":
		script = `(() => { (document.defaultView || window).scrollTo(0, 0); return true; })()`
	case "page_down":
		return s.PressKey(ctx, "PageDown")
	case "page_up":
		return s.PressKey(ctx, "PageUp")
	default:
		return fmt.Errorf("invalid scroll direction %q, valid directions: down, up, page_down, page_up, bottom, top", direction)
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if _, err := s.evaluate(ctx, script); err != nil {
		return fmt.Errorf("scrolling %s: %w", direction, err)
	}
	s.logger.Debug("Scrolled", zap.String("direction", direction), zap.Int("amount", amount))
	return nil
}

// WaitFor blocks until the element matched by the selector is visible or the
// timeout elapses. A non-positive timeout falls back to the action timeout.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ValidateSelector(selector); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if s.inFrame() {
		return s.pollVisible(ctx, selector, timeout)
	}

	combined, cancelCombined := CombineContext(s.activeCtx(), ctx)
	defer cancelCombined()
	opCtx, cancel := context.WithTimeout(combined, timeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("element %q did not become visible within %v: %w", selector, timeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("waiting for %q failed: %w", selector, err)
	}
	return nil
}

// pollVisible implements WaitFor inside an iframe scope, where the DevTools
// selector queries cannot reach.
func (s *Session) pollVisible(ctx context.Context, selector string, timeout time.Duration) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const w = el.ownerDocument.defaultView || window;
		const st = w.getComputedStyle(el);
		const r = el.getBoundingClientRect();
		return st.display !== 'none' && st.visibility !== 'hidden' && r.width > 0 && r.height > 0;
	})()`, jsonEncode(selector))

	deadline := time.Now().Add(timeout)
	for {
		raw, err := s.evaluate(ctx, script)
		if err != nil {
			return fmt.Errorf("waiting for %q: %w", selector, err)
		}
		if string(raw) == "true" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("element %q did not become visible within %v: %w", selector, timeout, context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q: %w", selector, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}
