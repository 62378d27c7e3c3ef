// File: internal/agent/profiles.go
package agent

import (
	"fmt"
	"sort"
	"strings"
)

// coordinatorTools is the full vocabulary, in documentation order. The
// coordinator is the only agent that can delegate or reach the operator.
var coordinatorTools = []string{
	ToolNavigate,
	ToolClick,
	ToolHover,
	ToolTypeText,
	ToolPressKey,
	ToolScroll,
	ToolWaitForElement,
	ToolListTabs,
	ToolSwitchTab,
	ToolCloseTab,
	ToolSwitchFrame,
	ToolSwitchMain,
	ToolPageOverview,
	ToolElementDetails,
	ToolFindByText,
	ToolDelegate,
	ToolConfirm,
	ToolHumanHelp,
	ToolTaskComplete,
}

// Profile parameterizes a sub-agent: a restricted toolset and a preamble
// narrowing its focus. Subsets are configuration, not code; every profile
// runs the same loop. task_complete is always included so a sub-agent can
// report back.
type Profile struct {
	Name     string
	Preamble string
	Tools    []string
}

var profiles = map[string]Profile{
	"navigator": {
		Name: "navigator",
		Preamble: "You are a navigation specialist. Your only job is to get the browser " +
			"to the right place: follow links, open menus, and confirm arrival. Do not " +
			"fill forms or extract data beyond what navigation requires.",
		Tools: []string{
			ToolNavigate, ToolClick, ToolHover, ToolScroll, ToolWaitForElement,
			ToolPageOverview, ToolElementDetails, ToolTaskComplete,
		},
	},
	"form_filler": {
		Name: "form_filler",
		Preamble: "You are a form-filling specialist. Locate the fields named in the " +
			"subtask, enter the given values exactly, and submit only when the subtask " +
			"says to. Never invent values that were not provided.",
		Tools: []string{
			ToolTypeText, ToolClick, ToolPressKey, ToolWaitForElement,
			ToolPageOverview, ToolElementDetails, ToolTaskComplete,
		},
	},
	"data_reader": {
		Name: "data_reader",
		Preamble: "You are a read-only extraction specialist. Collect the information " +
			"the subtask asks for and report it verbatim in your completion summary. " +
			"You cannot click or type; scroll and inspect instead.",
		Tools: []string{
			ToolPageOverview, ToolElementDetails, ToolScroll, ToolWaitForElement,
			ToolTaskComplete,
		},
	},
}

// ProfileNames lists the registered sub-agent profiles, sorted for stable
// error messages.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// buildSystemPrompt renders the persona, the reply contract, and the tool
// documentation for one agent. The reply contract is strict on purpose:
// everything downstream of DECIDING assumes one JSON object per turn.
func buildSystemPrompt(registry *Registry, preamble string) string {
	var b strings.Builder

	b.WriteString("You are an autonomous web browsing agent operating a real browser.\n")
	if preamble != "" {
		b.WriteString("\n")
		b.WriteString(preamble)
		b.WriteString("\n")
	}

	b.WriteString(`
Work one step at a time. Each turn you receive the task, the conversation so
far, and the current page state. Reply with exactly one JSON object and
nothing else:

{"rationale": "<one sentence on why>", "tool": "<tool name>", "args": {...}}

Rules:
- Use only the tools listed below, with the arguments they declare.
- Prefer selectors shown in the page state; use find_element_by_text when none fit.
- Never attempt to solve a CAPTCHA, enter credentials, or bypass a
  verification step yourself`)

	if registry.Has(ToolHumanHelp) {
		b.WriteString("; call request_human_help instead")
	}
	b.WriteString(".\n")
	if registry.Has(ToolConfirm) {
		b.WriteString("- Before anything destructive or irreversible (purchases, deletions, sending messages), call request_confirmation.\n")
	}
	fmt.Fprintf(&b, "- When the goal is met, call %s with a concise summary of what was done.\n", ToolTaskComplete)

	b.WriteString("\nAvailable tools:\n")
	b.WriteString(registry.Docs())
	return b.String()
}
