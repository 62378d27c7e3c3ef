// File: internal/page/extractor.go

// Package page turns a live browser document into a compact, token-bounded
// text snapshot an agent can reason over. The extractor inventories the
// interactive surface of the page, the fragment simplifier reduces raw HTML
// to its structural skeleton, and the compressor fits the result to a token
// budget without ever truncating silently.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rolePriority orders snapshot groups so orientation comes before action:
// structural landmarks and headings first, then the interactive controls.
// Unlisted roles sort after all known ones, alphabetically.
var rolePriority = map[string]int{
	"heading":    0,
	"navigation": 1,
	"main":       2,
	"banner":     3,
	"form":       4,
	"search":     5,

	"link":      10,
	"button":    11,
	"textbox":   12,
	"searchbox": 13,
	"combobox":  14,
	"select":    15,
	"textarea":  16,
	"checkbox":  17,
	"radio":     18,
	"menuitem":  19,
	"tab":       20,
}

const unknownRolePriority = 100

// tooBroadSelectors would match the whole document or huge swaths of it.
// Element detail requests for these are refused with guidance instead of
// flooding the context with the entire page.
var tooBroadSelectors = map[string]struct{}{
	"":          {},
	"*":         {},
	"html":      {},
	"body":      {},
	":root":     {},
	"document":  {},
	"html body": {},
	"body *":    {},
}

// TextMatch describes one element located by visible text. Selector is a
// synthetic attribute selector valid until the next navigation or DOM
// rewrite.
type TextMatch struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Tag      string `json:"tag"`
	Role     string `json:"role"`
	Context  string `json:"context"`
	Classes  string `json:"classes"`
	ID       string `json:"id"`
	Index    int    `json:"index"`
}

// rawElement mirrors the objects produced by overviewScript.
type rawElement struct {
	Role    string `json:"role"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Tag     string `json:"tag"`
	Classes string `json:"classes"`
	ID      string `json:"id"`
}

// Extractor reads structured page state out of a browser session.
type Extractor struct {
	sess        schemas.BrowserSession
	logger      *zap.Logger
	roleCap     int
	fragmentMax int
}

// NewExtractor builds an extractor bound to the given session. roleCap limits
// how many elements each role group retains; fragmentMax bounds the character
// length of simplified HTML fragments.
func NewExtractor(sess schemas.BrowserSession, logger *zap.Logger, roleCap, fragmentMax int) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if roleCap <= 0 {
		roleCap = 10
	}
	if fragmentMax <= 0 {
		fragmentMax = 2000
	}
	return &Extractor{
		sess:        sess,
		logger:      logger.Named("extractor"),
		roleCap:     roleCap,
		fragmentMax: fragmentMax,
	}
}

// Overview captures the interactive surface of the current document as a
// structured snapshot. Elements are grouped by role, groups are ordered by
// rolePriority, and each group is capped at the configured role cap with the
// overflow recorded rather than dropped silently.
func (e *Extractor) Overview(ctx context.Context) (schemas.PageSnapshot, error) {
	snap := schemas.PageSnapshot{}

	url, err := e.sess.CurrentURL(ctx)
	if err != nil {
		return snap, fmt.Errorf("overview: reading current URL: %w", err)
	}
	title, err := e.sess.Title(ctx)
	if err != nil {
		return snap, fmt.Errorf("overview: reading title: %w", err)
	}
	snap.URL = url
	snap.Title = title

	raw, err := e.sess.ExecuteScript(ctx, overviewScript)
	if err != nil {
		return snap, fmt.Errorf("overview: inventory script: %w", err)
	}

	var elems []rawElement
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &elems); err != nil {
			return snap, fmt.Errorf("overview: decoding inventory: %w", err)
		}
	}

	snap.Groups = e.groupElements(elems)
	e.logger.Debug("Captured page overview",
		zap.String("url", url),
		zap.Int("elements", len(elems)),
		zap.Int("groups", len(snap.Groups)))
	return snap, nil
}

// groupElements buckets raw elements by role, preserving document order
// inside each bucket, then orders the buckets by role priority and applies
// the per-role cap.
func (e *Extractor) groupElements(elems []rawElement) []schemas.RoleGroup {
	byRole := make(map[string][]schemas.PageElement)
	var order []string
	for _, el := range elems {
		role := el.Role
		if role == "" {
			role = el.Tag
		}
		if _, seen := byRole[role]; !seen {
			order = append(order, role)
		}
		byRole[role] = append(byRole[role], schemas.PageElement{
			Label:    el.Name,
			Selector: selectorHint(el),
			Value:    el.Value,
		})
	}

	sortRoles(order)

	groups := make([]schemas.RoleGroup, 0, len(order))
	for _, role := range order {
		members := byRole[role]
		g := schemas.RoleGroup{Role: role}
		if len(members) > e.roleCap {
			g.Elements = members[:e.roleCap]
			g.Omitted = len(members) - e.roleCap
		} else {
			g.Elements = members
		}
		groups = append(groups, g)
	}
	return groups
}

// sortRoles orders role names by priority, falling back to alphabetical
// order among unknown roles. The sort is stable only in effect: ties are
// broken by name, so the result is deterministic for any input order.
func sortRoles(roles []string) {
	lessRole := func(a, b string) bool {
		pa, ok := rolePriority[a]
		if !ok {
			pa = unknownRolePriority
		}
		pb, ok := rolePriority[b]
		if !ok {
			pb = unknownRolePriority
		}
		if pa != pb {
			return pa < pb
		}
		return a < b
	}
	// Insertion sort keeps this dependency-free for the tiny slices involved.
	for i := 1; i < len(roles); i++ {
		for j := i; j > 0 && lessRole(roles[j], roles[j-1]); j-- {
			roles[j], roles[j-1] = roles[j-1], roles[j]
		}
	}
}

// selectorHint builds a usable CSS selector for an element: its id when one
// exists, otherwise its tag qualified by up to two classes.
func selectorHint(el rawElement) string {
	if el.ID != "" {
		return "#" + el.ID
	}
	sel := el.Tag
	classes := strings.Fields(el.Classes)
	for i, c := range classes {
		if i >= 2 {
			break
		}
		sel += "." + c
	}
	return sel
}

// ElementDetails returns the simplified, length-bounded HTML of the element
// matched by selector. Selectors that would address the whole document are
// refused with guidance toward a narrower query.
func (e *Extractor) ElementDetails(ctx context.Context, selector string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(selector))
	if _, broad := tooBroadSelectors[normalized]; broad {
		return "", fmt.Errorf(
			"selector %q matches the entire document; request a specific element instead, or use a text search to locate one",
			selector)
	}

	raw, err := e.sess.OuterHTML(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("details for %q: %w", selector, err)
	}

	simplified := SimplifyFragment(raw)
	return TruncateFragment(simplified, e.fragmentMax), nil
}

// FindByText locates up to ten visible elements containing the given text,
// ranked so that interactive elements beat the inert containers around them.
// role, when non-empty, restricts matches to elements with that role or tag.
func (e *Extractor) FindByText(ctx context.Context, text, role string) ([]TextMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("find by text: search text must not be empty")
	}

	raw, err := e.sess.ExecuteScript(ctx, findByTextScript(text, role))
	if err != nil {
		return nil, fmt.Errorf("find by text: search script: %w", err)
	}

	var matches []TextMatch
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &matches); err != nil {
			return nil, fmt.Errorf("find by text: decoding matches: %w", err)
		}
	}

	e.logger.Debug("Text search complete",
		zap.String("text", text),
		zap.String("role", role),
		zap.Int("matches", len(matches)))
	return matches, nil
}

// DescribeMatches renders text matches in the numbered, selector-bearing
// format shown to the agent.
func DescribeMatches(text string, matches []TextMatch) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No visible elements found containing text %q.", text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d element(s) containing %q:\n", len(matches), text)
	for _, m := range matches {
		desc := m.Tag
		if m.Role != "" {
			desc += " role=" + m.Role
		}
		if m.ID != "" {
			desc += " id=" + m.ID
		}
		fmt.Fprintf(&b, "\n%d. <%s> %q %s\n   selector: %s\n", m.Index+1, desc, m.Text, m.Context, m.Selector)
	}
	b.WriteString("\nSelectors remain valid until the next navigation or page change.")
	return b.String()
}
