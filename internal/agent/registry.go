// File: internal/agent/registry.go
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// The closed tool vocabulary. Names are what the model emits; nothing outside
// this set ever executes.
const (
	ToolNavigate       = "navigate_to"
	ToolClick          = "click"
	ToolHover          = "hover"
	ToolTypeText       = "type_text"
	ToolPressKey       = "press_key"
	ToolScroll         = "scroll"
	ToolWaitForElement = "wait_for_element"
	ToolListTabs       = "list_tabs"
	ToolSwitchTab      = "switch_to_tab"
	ToolCloseTab       = "close_tab"
	ToolSwitchFrame    = "switch_to_frame"
	ToolSwitchMain     = "switch_to_main_content"
	ToolPageOverview   = "get_page_overview"
	ToolElementDetails = "get_element_details"
	ToolFindByText     = "find_element_by_text"
	ToolDelegate       = "delegate_to_subagent"
	ToolConfirm        = "request_confirmation"
	ToolHumanHelp      = "request_human_help"
	ToolTaskComplete   = "task_complete"
)

// ArgKind is the wire type of a tool argument. JSON numbers arrive as
// float64, so ArgInt accepts any whole number.
type ArgKind string

const (
	ArgString ArgKind = "string"
	ArgInt    ArgKind = "int"
)

// ArgSpec declares one tool argument.
type ArgSpec struct {
	Name     string
	Kind     ArgKind
	Required bool
	Doc      string
}

// ActionHandler executes one validated action. Handlers report every fault
// through the ActionResult; they never return errors and must not panic (the
// registry guards against the latter anyway).
type ActionHandler func(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult

// ToolSpec is one entry in the registry: the argument schema, the prompt
// documentation, and the handler.
type ToolSpec struct {
	Name string
	Doc  string
	Args []ArgSpec

	// Refresh marks tools after which the page can no longer be assumed
	// unchanged, forcing a fresh observation before the next decision.
	Refresh bool

	Handler ActionHandler
}

// Registry is a closed dispatch table from tool name to spec. Lookups of
// unknown names, argument schema violations, and handler panics all fail
// closed as failed ActionResults.
type Registry struct {
	logger *zap.Logger
	order  []string
	specs  map[string]*ToolSpec
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("tool_registry"),
		specs:  make(map[string]*ToolSpec),
	}
}

// Register adds a spec. Registering the same name twice replaces the handler
// but keeps the original position in the documentation ordering.
func (r *Registry) Register(spec *ToolSpec) {
	if _, exists := r.specs[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.specs[spec.Name] = spec
}

// Lookup returns the spec for a tool name.
func (r *Registry) Lookup(name string) (*ToolSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Has reports whether the tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks a request against the registry schema. It returns nil when
// the request may execute, otherwise the failed result to record. Nothing
// touches the browser on a validation failure.
func (r *Registry) Validate(req schemas.ActionRequest) *schemas.ActionResult {
	spec, ok := r.specs[req.Tool]
	if !ok {
		known := r.Names()
		sort.Strings(known)
		return &schemas.ActionResult{
			Success:     false,
			Summary:     fmt.Sprintf("Unknown tool %q.", req.Tool),
			ErrorCode:   schemas.ErrCodeUnknownTool,
			ErrorDetail: fmt.Sprintf("available tools: %s", strings.Join(known, ", ")),
		}
	}

	for _, arg := range spec.Args {
		raw, present := req.Args[arg.Name]
		if !present || raw == nil {
			if arg.Required {
				return &schemas.ActionResult{
					Success:     false,
					Summary:     fmt.Sprintf("Tool %q is missing its required argument %q.", req.Tool, arg.Name),
					ErrorCode:   schemas.ErrCodeInvalidArgument,
					ErrorDetail: fmt.Sprintf("required arguments: %s", describeArgs(spec.Args)),
				}
			}
			continue
		}
		if !argKindMatches(arg.Kind, raw) {
			return &schemas.ActionResult{
				Success:     false,
				Summary:     fmt.Sprintf("Argument %q of tool %q must be a %s.", arg.Name, req.Tool, arg.Kind),
				ErrorCode:   schemas.ErrCodeInvalidArgument,
				ErrorDetail: fmt.Sprintf("got %T", raw),
			}
		}
	}
	return nil
}

// Execute validates the request and dispatches it to the handler. A panic in
// a handler is converted into a failed result; it must never take the loop
// down with it.
func (r *Registry) Execute(ctx context.Context, req schemas.ActionRequest) (result schemas.ActionResult) {
	if failure := r.Validate(req); failure != nil {
		r.logger.Warn("Rejected action request",
			zap.String("tool", req.Tool),
			zap.String("error_code", string(failure.ErrorCode)))
		return *failure
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic recovered in tool handler",
				zap.String("tool", req.Tool),
				zap.Any("panic_value", rec),
				zap.Stack("stack"),
			)
			result = schemas.ActionResult{
				Success:     false,
				Summary:     fmt.Sprintf("Tool %q failed with an internal error.", req.Tool),
				ErrorCode:   schemas.ErrCodeExecutionFailure,
				ErrorDetail: fmt.Sprintf("panic: %v", rec),
			}
		}
	}()

	spec := r.specs[req.Tool]
	return spec.Handler(ctx, req)
}

// RefreshAfter reports whether the page must be re-observed after this tool.
// Unknown tools are treated as refreshing; they never execute anyway.
func (r *Registry) RefreshAfter(name string) bool {
	spec, ok := r.specs[name]
	if !ok {
		return true
	}
	return spec.Refresh
}

// Docs renders the tool list for the system prompt, one line per tool in
// registration order.
func (r *Registry) Docs() string {
	var b strings.Builder
	for _, name := range r.order {
		spec := r.specs[name]
		fmt.Fprintf(&b, "- %s(%s): %s\n", name, describeArgs(spec.Args), spec.Doc)
	}
	return b.String()
}

func describeArgs(args []ArgSpec) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		p := fmt.Sprintf("%s: %s", a.Name, a.Kind)
		if !a.Required {
			p += "?"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

func argKindMatches(kind ArgKind, v interface{}) bool {
	switch kind {
	case ArgString:
		_, ok := v.(string)
		return ok
	case ArgInt:
		switch n := v.(type) {
		case float64:
			return n == float64(int(n))
		case float32:
			return n == float32(int(n))
		case int, int32, int64:
			return true
		}
		return false
	}
	return false
}

// -- Argument accessors --
//
// Handlers read arguments through these after validation, so the only
// remaining concern is JSON's number representation.

func stringArg(req schemas.ActionRequest, name string) string {
	if v, ok := req.Args[name].(string); ok {
		return v
	}
	return ""
}

func intArg(req schemas.ActionRequest, name string, fallback int) int {
	switch n := req.Args[name].(type) {
	case float64:
		return int(n)
	case float32:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	return fallback
}
