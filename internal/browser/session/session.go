// File: internal/browser/session/session.go

// Package session drives a single Chrome instance over the DevTools protocol
// and exposes it through the schemas.BrowserSession interface. One session
// owns one browser process; tabs and iframe scoping are managed inside it.
// All page operations are serialized, carry the caller's context, and are
// bounded by the configured action and navigation timeouts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/waldo-cli/internal/config"
)

// ErrElementNotFound marks failures where no element matched a selector.
// Callers use errors.Is to classify it separately from timeouts.
var ErrElementNotFound = errors.New("element not found")

// ErrLastTab is returned when closing the only remaining tab.
var ErrLastTab = errors.New("refusing to close the last remaining tab")

// tabHandle is an attached DevTools context for one page target.
type tabHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is a live browser under automation. It implements
// schemas.BrowserSession.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	// sem serializes page operations. The browser is a shared mutable
	// surface; interleaving actions from concurrent callers produces
	// nonsense pages.
	sem *semaphore.Weighted

	mu            sync.Mutex
	tabs          []target.ID
	handles       map[target.ID]*tabHandle
	activeTab     target.ID
	frameSelector string

	allowedHosts []glob.Glob

	closeOnce sync.Once
	closeErr  error
}

// New launches a browser process per the config and attaches to its first
// tab. The session is torn down when Close is called or ctx is canceled.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	globs, err := compileHostGlobs(cfg.AllowedHosts)
	if err != nil {
		return nil, err
	}

	opts := allocatorOptions(cfg)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	sugar := logger.Named("chromedp").Sugar()
	rootCtx, rootCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	s := &Session{
		id:           uuid.New().String(),
		cfg:          cfg,
		allocCtx:     allocCtx,
		allocCancel:  allocCancel,
		rootCtx:      rootCtx,
		rootCancel:   rootCancel,
		sem:          semaphore.NewWeighted(1),
		handles:      make(map[target.ID]*tabHandle),
		allowedHosts: globs,
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id))

	// An empty run starts the process and attaches the root target.
	launchCtx, cancel := context.WithTimeout(rootCtx, cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	rootID := chromedp.FromContext(rootCtx).Target.TargetID
	s.tabs = []target.ID{rootID}
	s.handles[rootID] = &tabHandle{ctx: rootCtx, cancel: rootCancel}
	s.activeTab = rootID

	s.logger.Info("Browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight))
	return s, nil
}

// allocatorOptions translates the browser config into exec allocator flags.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range cfg.ExtraArgs {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		if k, v, found := strings.Cut(name, "="); found {
			opts = append(opts, chromedp.Flag(k, v))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func compileHostGlobs(patterns []string) ([]glob.Glob, error) {
	var globs []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid allowed host pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// acquire serializes one page operation, honoring caller cancellation while
// waiting.
func (s *Session) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for browser: %w", err)
	}
	return nil
}

// activeCtx returns the DevTools context of the active tab.
func (s *Session) activeCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[s.activeTab]; ok {
		return h.ctx
	}
	return s.rootCtx
}

// opContext builds the context one browser operation runs under: it carries
// the active tab's DevTools wiring, is canceled when the caller's context is,
// and is bounded by timeout.
func (s *Session) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	combined, cancelCombined := CombineContext(s.activeCtx(), ctx)
	opCtx, cancelOp := context.WithTimeout(combined, timeout)
	return opCtx, func() {
		cancelOp()
		cancelCombined()
	}
}

// withEvalParams configures script evaluation: values come back serialized,
// promises are awaited, and page-side exceptions do not spam the console.
func withEvalParams(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
}

// evaluate runs a JavaScript expression in the active tab, scoped to the
// active frame. The caller must already hold the operation semaphore.
func (s *Session) evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	opCtx, cancel := s.opContext(ctx, s.cfg.ActionTimeout)
	defer cancel()

	var res json.RawMessage
	err := chromedp.Run(opCtx, chromedp.Evaluate(s.wrapForFrame(script), &res, withEvalParams))
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("script evaluation timed out after %v: %w", s.cfg.ActionTimeout, opCtx.Err())
		}
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	if res == nil {
		res = json.RawMessage("null")
	}
	return res, nil
}

// ExecuteScript evaluates a JavaScript expression in the active frame and
// returns its JSON-serialized result.
func (s *Session) ExecuteScript(ctx context.Context, script string) (json.RawMessage, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.evaluate(ctx, script)
}

// OuterHTML returns the raw outer HTML of the first element matching the
// selector in the active frame.
func (s *Session) OuterHTML(ctx context.Context, selector string) (string, error) {
	if err := ValidateSelector(selector); err != nil {
		return "", err
	}
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? el.outerHTML : null; })()`,
		jsonEncode(selector))
	raw, err := s.evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return "", fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}

	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return "", fmt.Errorf("decoding outer HTML of %q: %w", selector, err)
	}
	return html, nil
}

// CurrentURL reports the URL of the active frame's document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	return s.evaluateString(ctx, "document.location.href", "current URL")
}

// Title reports the title of the active frame's document.
func (s *Session) Title(ctx context.Context) (string, error) {
	return s.evaluateString(ctx, "document.title", "title")
}

func (s *Session) evaluateString(ctx context.Context, expr, what string) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	raw, err := s.evaluate(ctx, expr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", what, err)
	}
	var out string
	if string(raw) == "null" {
		return "", nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decoding %s: %w", what, err)
	}
	return out, nil
}

// Close tears down the browser process. It is safe to call more than once
// and from any goroutine.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session")

		// Graceful browser shutdown first, then the allocator. Cancel on a
		// detached context so a canceled caller still gets cleanup.
		if err := chromedp.Cancel(Detach(s.rootCtx)); err != nil {
			s.closeErr = fmt.Errorf("closing browser: %w", err)
		}

		s.mu.Lock()
		for id, h := range s.handles {
			if h.ctx != s.rootCtx {
				h.cancel()
			}
			delete(s.handles, id)
		}
		s.mu.Unlock()

		s.rootCancel()
		s.allocCancel()
	})
	return s.closeErr
}

// jsonEncode safely embeds a Go value as a JavaScript literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
