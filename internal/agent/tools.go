// File: internal/agent/tools.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/page"
)

const (
	defaultWaitTimeout = 10 * time.Second
	typedEchoMaxRunes  = 40
)

// toolbox binds the tool handlers to one browser session and its perception
// pipeline. The coordinator and every sub-agent it spawns share a single
// toolbox; what differs between them is which subset of tools their registry
// exposes.
type toolbox struct {
	sess       schemas.BrowserSession
	extractor  *page.Extractor
	compressor *page.Compressor
	logger     *zap.Logger
	budget     int

	// operator is nil inside sub-agents, which have no human boundary.
	operator Operator
	// delegate is installed by the coordinator; sub-agent registries never
	// include the delegation tool.
	delegate ActionHandler
}

func newToolbox(sess schemas.BrowserSession, extractor *page.Extractor, compressor *page.Compressor, budget int, operator Operator, logger *zap.Logger) *toolbox {
	return &toolbox{
		sess:       sess,
		extractor:  extractor,
		compressor: compressor,
		logger:     logger.Named("toolbox"),
		budget:     budget,
		operator:   operator,
	}
}

// observe captures a fresh page snapshot, compresses it to budget, and
// renders it. This is the one observation path: the loop's OBSERVING phase
// and the get_page_overview tool both come through here.
func (tb *toolbox) observe(ctx context.Context) (string, error) {
	snap, err := tb.extractor.Overview(ctx)
	if err != nil {
		return "", err
	}
	compressed := tb.compressor.Compress(snap, tb.budget)
	return page.Render(compressed), nil
}

// registry builds a dispatch table exposing exactly the named tools, in the
// canonical documentation order.
func (tb *toolbox) registry(names []string) *Registry {
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	r := NewRegistry(tb.logger)
	for _, spec := range tb.allSpecs() {
		if _, ok := wanted[spec.Name]; ok {
			r.Register(spec)
		}
	}
	return r
}

// allSpecs returns every tool spec in documentation order.
func (tb *toolbox) allSpecs() []*ToolSpec {
	return []*ToolSpec{
		{
			Name: ToolNavigate,
			Doc:  "Open a URL in the active tab. Bare domains get an https:// prefix.",
			Args: []ArgSpec{
				{Name: "url", Kind: ArgString, Required: true, Doc: "absolute or bare URL"},
			},
			Refresh: true,
			Handler: tb.handleNavigate,
		},
		{
			Name: ToolClick,
			Doc:  "Click the first element matching the CSS selector.",
			Args: []ArgSpec{
				{Name: "selector", Kind: ArgString, Required: true},
				{Name: "description", Kind: ArgString, Required: false, Doc: "what is being clicked, for the log"},
			},
			Refresh: true,
			Handler: tb.handleClick,
		},
		{
			Name: ToolHover,
			Doc:  "Move the pointer over an element, e.g. to open a hover menu.",
			Args: []ArgSpec{
				{Name: "selector", Kind: ArgString, Required: true},
				{Name: "description", Kind: ArgString, Required: false},
			},
			Refresh: true,
			Handler: tb.handleHover,
		},
		{
			Name: ToolTypeText,
			Doc:  "Clear the matched input field and type text into it.",
			Args: []ArgSpec{
				{Name: "selector", Kind: ArgString, Required: true},
				{Name: "text", Kind: ArgString, Required: true},
			},
			Refresh: true,
			Handler: tb.handleTypeText,
		},
		{
			Name: ToolPressKey,
			Doc:  "Press a single key (Enter, Escape, Tab, Space, Backspace, Delete, Home, End, PageUp, PageDown, ArrowUp, ArrowDown, ArrowLeft, ArrowRight).",
			Args: []ArgSpec{
				{Name: "key", Kind: ArgString, Required: true},
			},
			Refresh: true,
			Handler: tb.handlePressKey,
		},
		{
			Name: ToolScroll,
			Doc:  "Scroll the page. Directions: down, up, page_down, page_up, bottom, top.",
			Args: []ArgSpec{
				{Name: "direction", Kind: ArgString, Required: true},
				{Name: "amount", Kind: ArgInt, Required: false, Doc: "pixels for down/up, default 500"},
			},
			Refresh: true,
			Handler: tb.handleScroll,
		},
		{
			Name: ToolWaitForElement,
			Doc:  "Wait until the matched element is visible.",
			Args: []ArgSpec{
				{Name: "selector", Kind: ArgString, Required: true},
				{Name: "timeout_ms", Kind: ArgInt, Required: false, Doc: "default 10000"},
			},
			Refresh: true,
			Handler: tb.handleWaitForElement,
		},
		{
			Name:    ToolListTabs,
			Doc:     "List the open browser tabs with their indexes.",
			Handler: tb.handleListTabs,
		},
		{
			Name: ToolSwitchTab,
			Doc:  "Activate the tab at the given index.",
			Args: []ArgSpec{
				{Name: "index", Kind: ArgInt, Required: true},
			},
			Refresh: true,
			Handler: tb.handleSwitchTab,
		},
		{
			Name: ToolCloseTab,
			Doc:  "Close the tab at the given index. The last tab cannot be closed.",
			Args: []ArgSpec{
				{Name: "index", Kind: ArgInt, Required: true},
			},
			Refresh: true,
			Handler: tb.handleCloseTab,
		},
		{
			Name: ToolSwitchFrame,
			Doc:  "Scope subsequent element operations to the matched iframe.",
			Args: []ArgSpec{
				{Name: "selector", Kind: ArgString, Required: true},
			},
			Refresh: true,
			Handler: tb.handleSwitchFrame,
		},
		{
			Name:    ToolSwitchMain,
			Doc:     "Leave the iframe scope and operate on the main document again.",
			Refresh: true,
			Handler: tb.handleSwitchMain,
		},
		{
			Name:    ToolPageOverview,
			Doc:     "Get a fresh overview of the interactive elements on the current page.",
			Handler: tb.handlePageOverview,
		},
		{
			Name: ToolElementDetails,
			Doc:  "Get the simplified HTML of one element. Root selectors like body are refused.",
			Args: []ArgSpec{
				{Name: "selector", Kind: ArgString, Required: true},
			},
			Handler: tb.handleElementDetails,
		},
		{
			Name: ToolFindByText,
			Doc:  "Search the page for visible elements containing the text; returns ranked matches with selectors.",
			Args: []ArgSpec{
				{Name: "text", Kind: ArgString, Required: true},
				{Name: "role", Kind: ArgString, Required: false, Doc: "restrict to a role or tag, e.g. button"},
			},
			Handler: tb.handleFindByText,
		},
		{
			Name: ToolDelegate,
			Doc:  "Hand a narrow subtask to a restricted sub-agent (navigator, form_filler, or data_reader) and get back one summary.",
			Args: []ArgSpec{
				{Name: "subagent", Kind: ArgString, Required: true},
				{Name: "subtask", Kind: ArgString, Required: true},
			},
			Refresh: true,
			Handler: tb.handleDelegate,
		},
		{
			Name: ToolConfirm,
			Doc:  "Ask the human operator for a yes/no confirmation before a risky or destructive action.",
			Args: []ArgSpec{
				{Name: "action_description", Kind: ArgString, Required: true},
				{Name: "risk_level", Kind: ArgString, Required: true, Doc: "low, medium, or high"},
			},
			Handler: tb.handleConfirm,
		},
		{
			Name: ToolHumanHelp,
			Doc:  "Pause and hand the browser to the human operator until they resume, e.g. for logins or CAPTCHAs.",
			Args: []ArgSpec{
				{Name: "description", Kind: ArgString, Required: true},
			},
			Refresh: true,
			Handler: tb.handleHumanHelp,
		},
		{
			Name: ToolTaskComplete,
			Doc:  "Declare the task finished and report what was accomplished. This ends the run.",
			Args: []ArgSpec{
				{Name: "summary", Kind: ArgString, Required: true},
			},
			Handler: tb.handleTaskComplete,
		},
	}
}

// -- Handlers --

func (tb *toolbox) handleNavigate(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	rawURL := stringArg(req, "url")
	if err := tb.sess.Navigate(ctx, rawURL); err != nil {
		return failedResult(fmt.Sprintf("Failed to open %q.", rawURL), err)
	}

	summary := fmt.Sprintf("Navigated to %s.", rawURL)
	if finalURL, err := tb.sess.CurrentURL(ctx); err == nil && finalURL != "" {
		if title, err := tb.sess.Title(ctx); err == nil && title != "" {
			summary = fmt.Sprintf("Navigated to %s (%q).", finalURL, title)
		} else {
			summary = fmt.Sprintf("Navigated to %s.", finalURL)
		}
	}
	return schemas.ActionResult{Success: true, Summary: summary}
}

func (tb *toolbox) handleClick(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	selector := stringArg(req, "selector")
	target := describeTarget(selector, stringArg(req, "description"))
	if err := tb.sess.Click(ctx, selector); err != nil {
		return failedResult(fmt.Sprintf("Failed to click %s.", target), err)
	}
	return schemas.ActionResult{Success: true, Summary: fmt.Sprintf("Clicked %s.", target)}
}

func (tb *toolbox) handleHover(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	selector := stringArg(req, "selector")
	target := describeTarget(selector, stringArg(req, "description"))
	if err := tb.sess.Hover(ctx, selector); err != nil {
		return failedResult(fmt.Sprintf("Failed to hover over %s.", target), err)
	}
	return schemas.ActionResult{Success: true, Summary: fmt.Sprintf("Hovered over %s.", target)}
}

func (tb *toolbox) handleTypeText(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	selector := stringArg(req, "selector")
	text := stringArg(req, "text")
	if err := tb.sess.Type(ctx, selector, text); err != nil {
		return failedResult(fmt.Sprintf("Failed to type into %q.", selector), err)
	}
	return schemas.ActionResult{
		Success: true,
		Summary: fmt.Sprintf("Typed %q into %q.", echoText(text), selector),
	}
}

func (tb *toolbox) handlePressKey(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	key := stringArg(req, "key")
	if err := tb.sess.PressKey(ctx, key); err != nil {
		return failedResult(fmt.Sprintf("Failed to press %q.", key), err)
	}
	return schemas.ActionResult{Success: true, Summary: fmt.Sprintf("Pressed the %s key.", key)}
}

func (tb *toolbox) handleScroll(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	direction := stringArg(req, "direction")
	amount := intArg(req, "amount", 0)
	if err := tb.sess.Scroll(ctx, direction, amount); err != nil {
		return failedResult(fmt.Sprintf("Failed to scroll %s.", direction), err)
	}
	return schemas.ActionResult{Success: true, Summary: fmt.Sprintf("Scrolled %s.", direction)}
}

func (tb *toolbox) handleWaitForElement(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	selector := stringArg(req, "selector")
	timeout := defaultWaitTimeout
	if ms := intArg(req, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	if err := tb.sess.WaitFor(ctx, selector, timeout); err != nil {
		return failedResult(fmt.Sprintf("Element %q did not appear.", selector), err)
	}
	return schemas.ActionResult{
		Success: true,
		Summary: fmt.Sprintf("Element %q is now visible.", selector),
	}
}

func (tb *toolbox) handleListTabs(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	tabs, err := tb.sess.ListTabs(ctx)
	if err != nil {
		return failedResult("Failed to list tabs.", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d open tab(s):\n", len(tabs))
	for _, t := range tabs {
		marker := ""
		if t.Active {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "%d. %s [%s]%s\n", t.Index, t.Title, t.URL, marker)
	}
	return schemas.ActionResult{Success: true, Summary: strings.TrimRight(b.String(), "\n")}
}

func (tb *toolbox) handleSwitchTab(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	index := intArg(req, "index", -1)
	if err := tb.sess.SwitchTab(ctx, index); err != nil {
		return failedResult(fmt.Sprintf("Failed to switch to tab %d.", index), err)
	}
	return schemas.ActionResult{Success: true, Summary: fmt.Sprintf("Switched to tab %d.", index)}
}

func (tb *toolbox) handleCloseTab(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	index := intArg(req, "index", -1)
	if err := tb.sess.CloseTab(ctx, index); err != nil {
		return failedResult(fmt.Sprintf("Failed to close tab %d.", index), err)
	}
	return schemas.ActionResult{Success: true, Summary: fmt.Sprintf("Closed tab %d.", index)}
}

func (tb *toolbox) handleSwitchFrame(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	selector := stringArg(req, "selector")
	if err := tb.sess.SwitchFrame(ctx, selector); err != nil {
		return failedResult(fmt.Sprintf("Failed to focus iframe %q.", selector), err)
	}
	return schemas.ActionResult{
		Success: true,
		Summary: fmt.Sprintf("Element operations now target the iframe %q.", selector),
	}
}

func (tb *toolbox) handleSwitchMain(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	if err := tb.sess.SwitchMainContent(ctx); err != nil {
		return failedResult("Failed to leave the iframe scope.", err)
	}
	return schemas.ActionResult{
		Success: true,
		Summary: "Frame focus cleared; element operations target the main document again.",
	}
}

func (tb *toolbox) handlePageOverview(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	text, err := tb.observe(ctx)
	if err != nil {
		return failedResult("Failed to capture a page overview.", err)
	}
	return schemas.ActionResult{Success: true, Summary: text}
}

func (tb *toolbox) handleElementDetails(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	selector := stringArg(req, "selector")
	fragment, err := tb.extractor.ElementDetails(ctx, selector)
	if err != nil {
		return failedResult(fmt.Sprintf("No details for %q.", selector), err)
	}
	return schemas.ActionResult{Success: true, Summary: fragment}
}

func (tb *toolbox) handleFindByText(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	text := stringArg(req, "text")
	role := stringArg(req, "role")
	matches, err := tb.extractor.FindByText(ctx, text, role)
	if err != nil {
		return failedResult(fmt.Sprintf("Text search for %q failed.", text), err)
	}
	return schemas.ActionResult{Success: true, Summary: page.DescribeMatches(text, matches)}
}

func (tb *toolbox) handleDelegate(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	if tb.delegate == nil {
		return schemas.ActionResult{
			Success:     false,
			Summary:     "Delegation is not available in this context.",
			ErrorCode:   schemas.ErrCodeDelegation,
			ErrorDetail: "no delegation runner attached",
		}
	}
	return tb.delegate(ctx, req)
}

func (tb *toolbox) handleConfirm(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	description := stringArg(req, "action_description")
	risk := stringArg(req, "risk_level")
	if tb.operator == nil {
		return schemas.ActionResult{
			Success:     false,
			Summary:     "No operator is attached; the action was not confirmed.",
			ErrorCode:   schemas.ErrCodeExecutionFailure,
			ErrorDetail: "confirmation requested without an operator boundary",
		}
	}

	ok, err := tb.operator.Confirm(ctx, description, risk)
	if err != nil {
		return failedResult("Confirmation prompt failed.", err)
	}
	if !ok {
		return schemas.ActionResult{
			Success: false,
			Summary: fmt.Sprintf("Denied: the operator refused %q. Choose a different approach.", description),
		}
	}
	return schemas.ActionResult{
		Success: true,
		Summary: fmt.Sprintf("Confirmed: the operator approved %q.", description),
	}
}

// handleHumanHelp is a passthrough: the loop intercepts the tool to run its
// pause transition before anything executes. The handler only exists so the
// registry stays total over its vocabulary.
func (tb *toolbox) handleHumanHelp(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	return schemas.ActionResult{Success: true, Summary: "Pause requested."}
}

// handleTaskComplete is likewise intercepted at the decision layer.
func (tb *toolbox) handleTaskComplete(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	return schemas.ActionResult{Success: true, Summary: stringArg(req, "summary")}
}

func describeTarget(selector, description string) string {
	if description == "" {
		return fmt.Sprintf("%q", selector)
	}
	return fmt.Sprintf("%q (%s)", selector, description)
}

// echoText bounds the text echoed back into the conversation after typing.
func echoText(text string) string {
	runes := []rune(text)
	if len(runes) <= typedEchoMaxRunes {
		return text
	}
	return string(runes[:typedEchoMaxRunes]) + "..."
}
