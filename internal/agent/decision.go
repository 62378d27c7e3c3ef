// File: internal/agent/decision.go
package agent

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBlockRegex pulls a fenced JSON object out of a markdown-flavored reply.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// protocolError marks a reply that could not be turned into a Decision. The
// loop retries these with a corrective hint rather than failing the run.
type protocolError struct {
	reason string
}

func (e *protocolError) Error() string { return e.reason }

func newProtocolError(format string, args ...interface{}) error {
	return &protocolError{reason: fmt.Sprintf(format, args...)}
}

// decisionPayload is the wire shape the model is instructed to reply with.
type decisionPayload struct {
	Rationale string                 `json:"rationale"`
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
}

// parseDecision extracts and validates the single JSON action object from a
// raw model reply. Markdown fences, prose around the object, and a bare
// object are all accepted; anything without a usable tool field is a
// protocol error.
func parseDecision(raw string) (Decision, error) {
	blob, err := extractJSONObject(raw)
	if err != nil {
		return Decision{}, err
	}

	var payload decisionPayload
	if err := json.UnmarshalFromString(blob, &payload); err != nil {
		return Decision{}, newProtocolError("reply contained malformed JSON: %v", err)
	}

	tool := strings.TrimSpace(payload.Tool)
	if tool == "" {
		return Decision{}, newProtocolError("reply is missing the required \"tool\" field")
	}
	if payload.Args == nil {
		payload.Args = map[string]interface{}{}
	}

	d := Decision{
		Action: schemas.ActionRequest{
			Tool:      tool,
			Args:      payload.Args,
			Rationale: strings.TrimSpace(payload.Rationale),
		},
	}
	if tool == ToolTaskComplete {
		d.Complete = true
		if s, ok := payload.Args["summary"].(string); ok {
			d.Summary = s
		}
	}
	return d, nil
}

// extractJSONObject finds the JSON object in a reply. Fenced blocks win;
// otherwise the first balanced top-level object is taken, which tolerates
// models that wrap the object in explanatory prose.
func extractJSONObject(raw string) (string, error) {
	if m := jsonBlockRegex.FindStringSubmatch(raw); len(m) > 1 {
		return m[1], nil
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return "", newProtocolError("reply contained no JSON object")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", newProtocolError("reply contained an unbalanced JSON object")
}
