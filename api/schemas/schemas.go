// File: api/schemas/schemas.go
package schemas

import "time"

// Task is the immutable natural-language objective for one run. It is set
// once at session start and never mutated; everything the agent does is in
// service of this goal.
type Task struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	CreatedAt time.Time `json:"created_at"`
}

// PageElement is a single semantic entry extracted from the page: a short
// human label, a selector that can be fed back into browser actions, and the
// current value for inputs that carry one.
type PageElement struct {
	Label    string `json:"label"`
	Selector string `json:"selector"`
	Value    string `json:"value,omitempty"`
}

// RoleGroup collects the page elements sharing one accessibility role.
// Omitted counts elements dropped by the per-role cap at extraction time.
type RoleGroup struct {
	Role     string        `json:"role"`
	Elements []PageElement `json:"elements"`
	Omitted  int           `json:"omitted,omitempty"`
}

// PageSnapshot is the agent's view of the current page, computed fresh on
// every observation and superseded wholesale by the next one. After
// compression its rendered form must fit the configured token budget.
type PageSnapshot struct {
	URL    string      `json:"url"`
	Title  string      `json:"title"`
	Groups []RoleGroup `json:"groups"`

	// Fragment holds a simplified HTML excerpt when the observation was a
	// narrowed element inspection rather than a full overview.
	Fragment string `json:"fragment,omitempty"`

	// EstimatedTokens, Truncated and OmittedElements are filled in by the
	// compressor; OmittedElements counts entries it dropped to meet budget.
	EstimatedTokens int  `json:"estimated_tokens"`
	Truncated       bool `json:"truncated"`
	OmittedElements int  `json:"omitted_elements,omitempty"`
}

// ActionRequest is one tool invocation decided by the model: the tool name,
// its argument mapping, and the model's stated rationale. Requests are
// validated against the tool registry before anything touches the browser.
type ActionRequest struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Rationale string                 `json:"rationale"`
}

// ErrorCode classifies a failed action for the model's benefit. The codes are
// coarse on purpose; the human-readable summary carries the detail.
type ErrorCode string

const (
	ErrCodeElementNotFound  ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigation       ErrorCode = "NAVIGATION_ERROR"
	ErrCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrCodeUnknownTool      ErrorCode = "UNKNOWN_TOOL"
	ErrCodeProtocol         ErrorCode = "PROTOCOL_ERROR"
	ErrCodeDelegation       ErrorCode = "DELEGATION_ERROR"
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
)

// ActionResult is the structured outcome of executing one ActionRequest. The
// summary is bounded and never contains raw unsimplified page markup; it is
// appended to the conversation as the next turn.
type ActionResult struct {
	Success     bool      `json:"success"`
	Summary     string    `json:"summary"`
	ErrorCode   ErrorCode `json:"error_code,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// TabInfo describes one open browser tab for the tab-management tools.
type TabInfo struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// RunState is the terminal outcome of a run.
type RunState string

const (
	RunDone         RunState = "DONE"          // The model signalled task completion.
	RunAbortedLimit RunState = "ABORTED_LIMIT" // The iteration ceiling was reached.
	RunFailed       RunState = "FAILED"        // An unrecoverable setup fault occurred.
)

// RunRecord is the archived summary of one finished run. Records exist for
// the operator's `history` listing only; the decision loop never reads them.
type RunRecord struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	FinalState RunState  `json:"final_state"`
	Iterations int       `json:"iterations"`
	Summary    string    `json:"summary"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
