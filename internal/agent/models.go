// internal/agent/models.go
package agent

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// AgentState represents the loop's current phase. The three terminal states
// mirror schemas.RunState; everything else is a transient phase of one cycle.
type AgentState string

const (
	StateObserving  AgentState = "OBSERVING"  // Capturing and compressing the page state.
	StateDeciding   AgentState = "DECIDING"   // Waiting on the model for the next action.
	StateActing     AgentState = "ACTING"     // Executing the chosen tool.
	StateEvaluating AgentState = "EVALUATING" // Folding the result back into the conversation.

	// StatePaused is a sub-state of ACTING: a human currently owns the browser
	// and no automated tool may run until they hand it back.
	StatePaused AgentState = "PAUSED"

	StateDone         AgentState = "DONE"          // The model signalled completion.
	StateAbortedLimit AgentState = "ABORTED_LIMIT" // The iteration ceiling was reached.
	StateFailed       AgentState = "FAILED"        // An unrecoverable fault ended the run.
)

// Terminal reports whether the state can never be exited.
func (s AgentState) Terminal() bool {
	return s == StateDone || s == StateAbortedLimit || s == StateFailed
}

// RunState maps a terminal AgentState onto the archived run outcome.
func (s AgentState) RunState() schemas.RunState {
	switch s {
	case StateDone:
		return schemas.RunDone
	case StateAbortedLimit:
		return schemas.RunAbortedLimit
	default:
		return schemas.RunFailed
	}
}

// TurnKind is the closed set of conversation entry kinds.
type TurnKind string

const (
	TurnObservation TurnKind = "observation" // A compressed page state.
	TurnDecision    TurnKind = "decision"    // The model's chosen action and rationale.
	TurnResult      TurnKind = "result"      // The outcome of executing an action.
	TurnHint        TurnKind = "hint"        // A corrective re-prompt injected by the loop.
)

// Turn is one conversation entry. Turns are append-only; nothing ever edits
// or removes one after it is recorded.
type Turn struct {
	Kind    TurnKind
	Tool    string // Set on decision and result turns.
	Content string
	At      time.Time
}

// Conversation is the ordered transcript of one agent's run. Exactly one
// goroutine owns it at a time; sub-agents get a fresh instance and only their
// final summary crosses back into the parent's.
type Conversation struct {
	goal  string
	turns []Turn
}

// NewConversation starts an empty transcript for the given goal.
func NewConversation(goal string) *Conversation {
	return &Conversation{goal: goal}
}

// Goal returns the immutable objective this conversation serves.
func (c *Conversation) Goal() string { return c.goal }

// Append records a new turn.
func (c *Conversation) Append(kind TurnKind, tool, content string) {
	c.turns = append(c.turns, Turn{Kind: kind, Tool: tool, Content: content, At: time.Now().UTC()})
}

// Len returns the number of recorded turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Turns returns a copy of the transcript.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// LastResult returns the content of the most recent result turn, or "" when
// no action has completed yet. Used for partial summaries on aborted runs.
func (c *Conversation) LastResult() string {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Kind == TurnResult {
			return c.turns[i].Content
		}
	}
	return ""
}

// Render flattens the transcript into the prompt text the model sees. Page
// states are superseded wholesale by newer ones, so every observation except
// the latest renders as a placeholder; the full element listing of a stale
// page would only mislead the model.
func (c *Conversation) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n", c.goal)

	lastObs := -1
	for i, t := range c.turns {
		if t.Kind == TurnObservation {
			lastObs = i
		}
	}

	for i, t := range c.turns {
		b.WriteString("\n")
		switch t.Kind {
		case TurnObservation:
			if i != lastObs {
				b.WriteString("PAGE STATE: (superseded by a newer observation below)\n")
				continue
			}
			b.WriteString("PAGE STATE:\n")
			b.WriteString(t.Content)
			if !strings.HasSuffix(t.Content, "\n") {
				b.WriteString("\n")
			}
		case TurnDecision:
			fmt.Fprintf(&b, "ACTION %s: %s\n", t.Tool, t.Content)
		case TurnResult:
			fmt.Fprintf(&b, "RESULT: %s\n", t.Content)
		case TurnHint:
			fmt.Fprintf(&b, "HINT: %s\n", t.Content)
		}
	}
	return b.String()
}

// Decision is the parsed form of one model reply: either a tool call or the
// completion signal. Replies that parse but name no tool never become a
// Decision; they are protocol faults handled in DECIDING.
type Decision struct {
	Action   schemas.ActionRequest
	Complete bool   // The model called task_complete.
	Summary  string // Completion summary, set when Complete.
}

// DelegationRecord captures one sub-agent run. It is ephemeral: once the
// summary is folded into the parent conversation the record is only logged.
type DelegationRecord struct {
	ID         string
	Profile    string
	Subtask    string
	StepBudget int
	Steps      int
	Summary    string
	Incomplete bool
}

// PauseState says whether a human currently owns the browser and why.
type PauseState struct {
	Active bool
	Reason string
}

// RunOutcome is what a finished run reports to its caller.
type RunOutcome struct {
	State      schemas.RunState
	Iterations int
	Summary    string
}

// maxSummaryBytes bounds every result summary entering the conversation.
// Oversized tool output (a huge fragment, a chatty sub-agent) is cut rather
// than allowed to crowd the model's context.
const maxSummaryBytes = 4 * 1024

// capSummary bounds s to maxSummaryBytes at a rune boundary, appending a
// marker when anything was cut.
func capSummary(s string) string {
	if len(s) <= maxSummaryBytes {
		return s
	}
	cut := s[:maxSummaryBytes]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n... [summary truncated]"
}
