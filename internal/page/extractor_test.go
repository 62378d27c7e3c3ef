// File: internal/page/extractor_test.go
package page

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waldo-cli/internal/mocks"
	"github.com/xkilldash9x/waldo-cli/internal/tokens"
)

func newTestExtractor(t *testing.T, sess *mocks.MockBrowserSession) *Extractor {
	t.Helper()
	return NewExtractor(sess, zaptest.NewLogger(t), 10, 2000)
}

func stubPageIdentity(sess *mocks.MockBrowserSession, url, title string) {
	sess.On("CurrentURL", mock.Anything).Return(url, nil)
	sess.On("Title", mock.Anything).Return(title, nil)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()

	t.Run("groups by role in priority order", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		stubPageIdentity(sess, "https://example.com/login", "Login")

		// Document order deliberately interleaves roles; the snapshot must
		// come back ordered structural first, then interactive, then unknown.
		inventory := `[
			{"role": "button", "name": "Sign In", "value": "", "tag": "button", "classes": "btn primary wide", "id": ""},
			{"role": "heading", "name": "Welcome Back", "value": "", "tag": "h1", "classes": "", "id": ""},
			{"role": "link", "name": "Forgot password?", "value": "", "tag": "a", "classes": "", "id": "forgot"},
			{"role": "textbox", "name": "Email", "value": "a@b.c", "tag": "input", "classes": "", "id": "email"},
			{"role": "chip", "name": "Beta", "value": "", "tag": "span", "classes": "chip", "id": ""}
		]`
		sess.On("ExecuteScript", mock.Anything, mock.Anything).Return(stdjson.RawMessage(inventory), nil)

		snap, err := newTestExtractor(t, sess).Overview(ctx)
		require.NoError(t, err)

		assert.Equal(t, "https://example.com/login", snap.URL)
		assert.Equal(t, "Login", snap.Title)

		var roles []string
		for _, g := range snap.Groups {
			roles = append(roles, g.Role)
		}
		assert.Equal(t, []string{"heading", "link", "button", "textbox", "chip"}, roles)

		// Selector hints prefer ids, then tag plus at most two classes.
		assert.Equal(t, "#forgot", snap.Groups[1].Elements[0].Selector)
		assert.Equal(t, "button.btn.primary", snap.Groups[2].Elements[0].Selector)
		assert.Equal(t, "a@b.c", snap.Groups[3].Elements[0].Value)
		assert.Equal(t, "span.chip", snap.Groups[4].Elements[0].Selector)
	})

	t.Run("caps each role group and reports the overflow", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		stubPageIdentity(sess, "https://example.com/catalog", "Catalog")

		var entries []string
		for i := 0; i < 50; i++ {
			entries = append(entries, fmt.Sprintf(
				`{"role": "button", "name": "Add to cart %d", "value": "", "tag": "button", "classes": "add", "id": ""}`, i))
		}
		inventory := "[" + strings.Join(entries, ",") + "]"
		sess.On("ExecuteScript", mock.Anything, mock.Anything).Return(stdjson.RawMessage(inventory), nil)

		snap, err := newTestExtractor(t, sess).Overview(ctx)
		require.NoError(t, err)

		require.Len(t, snap.Groups, 1)
		assert.Len(t, snap.Groups[0].Elements, 10)
		assert.Equal(t, 40, snap.Groups[0].Omitted)
		assert.Equal(t, "Add to cart 0", snap.Groups[0].Elements[0].Label)

		est := tokens.HeuristicEstimator{}
		c := NewCompressor(est, zaptest.NewLogger(t))
		rendered := Render(c.Compress(snap, 3000))

		assert.Contains(t, rendered, "BUTTONS:")
		assert.Equal(t, 10, strings.Count(rendered, "  - "))
		assert.Contains(t, rendered, "... and 40 more")
		assert.NotContains(t, rendered, "(truncated,")
	})

	t.Run("empty inventory", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		stubPageIdentity(sess, "about:blank", "")
		sess.On("ExecuteScript", mock.Anything, mock.Anything).Return(stdjson.RawMessage("null"), nil)

		snap, err := newTestExtractor(t, sess).Overview(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Groups)
		assert.Contains(t, Render(snap), "(none detected)")
	})

	t.Run("script failure surfaces", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		stubPageIdentity(sess, "https://example.com", "Example")
		sess.On("ExecuteScript", mock.Anything, mock.Anything).
			Return(nil, errors.New("target crashed"))

		_, err := newTestExtractor(t, sess).Overview(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inventory script")
	})
}

func TestElementDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses whole document selectors", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		e := newTestExtractor(t, sess)

		for _, sel := range []string{"body", "html", "*", ":root", "HTML", " Body ", "html body", ""} {
			_, err := e.ElementDetails(ctx, sel)
			require.Error(t, err, "selector %q", sel)
			assert.Contains(t, err.Error(), "matches the entire document")
		}
		sess.AssertNotCalled(t, "OuterHTML", mock.Anything, mock.Anything)
	})

	t.Run("simplifies and bounds the fragment", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		raw := `<form id="login" style="margin:0" onsubmit="hijack()">` +
			`<script>steal()</script>` +
			`<input name="email" data-tracking="42">` +
			strings.Repeat(`<p>filler paragraph with enough text to overflow</p>`, 100) +
			`</form>`
		sess.On("OuterHTML", mock.Anything, "#login").Return(raw, nil)

		e := NewExtractor(sess, zaptest.NewLogger(t), 10, 300)
		got, err := e.ElementDetails(ctx, "#login")
		require.NoError(t, err)

		assert.Contains(t, got, `<form id="login">`)
		assert.NotContains(t, got, "script")
		assert.NotContains(t, got, "onsubmit")
		assert.NotContains(t, got, "data-tracking")
		assert.Contains(t, got, "[TRUNCATED - content was")
		assert.LessOrEqual(t, len(got), 300+100)
	})

	t.Run("lookup failure surfaces", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		sess.On("OuterHTML", mock.Anything, "#ghost").
			Return("", errors.New("element not found"))

		_, err := newTestExtractor(t, sess).ElementDetails(ctx, "#ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `details for "#ghost"`)
	})
}

func TestFindByText(t *testing.T) {
	ctx := context.Background()

	t.Run("parses and describes matches", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		results := `[
			{"selector": "[data-waldo-find-id=\"0\"]", "text": "Sign In", "tag": "button", "role": "", "context": "in <form#login>", "classes": "btn", "id": "", "index": 0},
			{"selector": "[data-waldo-find-id=\"1\"]", "text": "Sign In to continue", "tag": "p", "role": "", "context": "in <div.hero>", "classes": "", "id": "", "index": 1}
		]`
		sess.On("ExecuteScript", mock.Anything, mock.MatchedBy(func(script string) bool {
			return strings.Contains(script, `"Sign In"`) && strings.Contains(script, "data-waldo-find-id")
		})).Return(stdjson.RawMessage(results), nil)

		matches, err := newTestExtractor(t, sess).FindByText(ctx, "Sign In", "")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, `[data-waldo-find-id="0"]`, matches[0].Selector)
		assert.Equal(t, "button", matches[0].Tag)

		desc := DescribeMatches("Sign In", matches)
		assert.Contains(t, desc, `Found 2 element(s) containing "Sign In"`)
		assert.Contains(t, desc, `1. <button> "Sign In" in <form#login>`)
		assert.Contains(t, desc, `selector: [data-waldo-find-id="0"]`)
		assert.Contains(t, desc, "valid until the next navigation")
	})

	t.Run("role filter is embedded in the script", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		sess.On("ExecuteScript", mock.Anything, mock.MatchedBy(func(script string) bool {
			return strings.Contains(script, `const roleFilter = "button"`)
		})).Return(stdjson.RawMessage("[]"), nil)

		matches, err := newTestExtractor(t, sess).FindByText(ctx, "Buy", "button")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("empty needle is rejected without touching the page", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		_, err := newTestExtractor(t, sess).FindByText(ctx, "   ", "")
		require.Error(t, err)
		sess.AssertNotCalled(t, "ExecuteScript", mock.Anything, mock.Anything)
	})

	t.Run("no matches", func(t *testing.T) {
		sess := new(mocks.MockBrowserSession)
		sess.On("ExecuteScript", mock.Anything, mock.Anything).Return(stdjson.RawMessage("null"), nil)

		matches, err := newTestExtractor(t, sess).FindByText(ctx, "Nonexistent", "")
		require.NoError(t, err)
		assert.Empty(t, matches)
		assert.Contains(t, DescribeMatches("Nonexistent", matches), "No visible elements found")
	})
}
