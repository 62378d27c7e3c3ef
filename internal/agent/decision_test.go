// File: internal/agent/decision_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionFencedBlock(t *testing.T) {
	raw := "Here is what I will do next:\n```json\n" +
		`{"rationale": "the search box is visible", "tool": "type_text", "args": {"selector": "#q", "text": "golang"}}` +
		"\n```\nLet me know how it goes."

	d, err := parseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, "type_text", d.Action.Tool)
	assert.Equal(t, "the search box is visible", d.Action.Rationale)
	assert.Equal(t, "#q", d.Action.Args["selector"])
	assert.False(t, d.Complete)
}

func TestParseDecisionBareObject(t *testing.T) {
	d, err := parseDecision(`{"rationale":"go","tool":"navigate_to","args":{"url":"example.com"}}`)
	require.NoError(t, err)
	assert.Equal(t, ToolNavigate, d.Action.Tool)
}

func TestParseDecisionProseWrappedObject(t *testing.T) {
	raw := `I think the right move is {"rationale":"obvious","tool":"scroll","args":{"direction":"down"}} here.`
	d, err := parseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, ToolScroll, d.Action.Tool)
}

func TestParseDecisionNestedBracesInStrings(t *testing.T) {
	raw := `{"rationale":"selector has braces {weird}","tool":"click","args":{"selector":"div[data-x='{a}']"}}`
	d, err := parseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, `div[data-x='{a}']`, d.Action.Args["selector"])
}

func TestParseDecisionTaskComplete(t *testing.T) {
	d, err := parseDecision(`{"rationale":"done","tool":"task_complete","args":{"summary":"All set."}}`)
	require.NoError(t, err)
	assert.True(t, d.Complete)
	assert.Equal(t, "All set.", d.Summary)
}

func TestParseDecisionMissingArgsDefaultsEmpty(t *testing.T) {
	d, err := parseDecision(`{"rationale":"look","tool":"list_tabs"}`)
	require.NoError(t, err)
	assert.NotNil(t, d.Action.Args)
	assert.Empty(t, d.Action.Args)
}

func TestParseDecisionProtocolFaults(t *testing.T) {
	cases := map[string]string{
		"no object":       "I would rather describe my plan in prose.",
		"unbalanced":      `{"rationale":"oops","tool":"click","args":{`,
		"malformed json":  "```json\n{tool: click}\n```",
		"missing tool":    `{"rationale":"hmm","args":{}}`,
		"whitespace tool": `{"rationale":"hmm","tool":"  ","args":{}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseDecision(raw)
			require.Error(t, err)
			var perr *protocolError
			assert.ErrorAs(t, err, &perr)
		})
	}
}
