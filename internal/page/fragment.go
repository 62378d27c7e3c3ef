// File: internal/page/fragment.go
package page

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// droppedElements are removed wholesale during simplification. They carry no
// structure an agent can act on.
var droppedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"svg":      {},
	"iframe":   {},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SimplifyFragment strips an HTML fragment down to its structural skeleton:
// scripts, styles and comments are removed, inline styles, event handlers
// and data- attributes are dropped, and whitespace runs collapse to single
// spaces. Input that fails to parse is returned whitespace-collapsed rather
// than discarded.
func SimplifyFragment(fragment string) string {
	ctxNode := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return strings.TrimSpace(whitespaceRun.ReplaceAllString(fragment, " "))
	}

	var b strings.Builder
	for _, n := range nodes {
		clean := simplifyNode(n)
		if clean == nil {
			continue
		}
		if err := html.Render(&b, clean); err != nil {
			return strings.TrimSpace(whitespaceRun.ReplaceAllString(fragment, " "))
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// simplifyNode returns a cleaned copy of n, or nil when the node should be
// dropped entirely.
func simplifyNode(n *html.Node) *html.Node {
	switch n.Type {
	case html.CommentNode:
		return nil
	case html.ElementNode:
		if _, drop := droppedElements[n.Data]; drop {
			return nil
		}
	}

	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     keepAttrs(n.Attr),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		child := simplifyNode(c)
		if child == nil {
			continue
		}
		clone.AppendChild(child)
	}
	return clone
}

// keepAttrs filters out presentation and instrumentation attributes.
func keepAttrs(attrs []html.Attribute) []html.Attribute {
	var kept []html.Attribute
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if key == "style" {
			continue
		}
		if strings.HasPrefix(key, "on") {
			continue
		}
		if strings.HasPrefix(key, "data-") {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// TruncateFragment bounds a fragment to max characters, preferring to cut at
// a tag boundary near the limit, and appends a marker naming how much was
// removed. Fragments at or under the limit pass through untouched; a
// non-positive max disables the bound.
func TruncateFragment(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	cut := s[:max]
	if idx := strings.LastIndex(cut, ">"); idx > int(float64(max)*0.8) {
		cut = cut[:idx+1]
	}
	return cut + fmt.Sprintf("\n\n... [TRUNCATED - content was %d chars, showing first %d chars]", len(s), len(cut))
}
