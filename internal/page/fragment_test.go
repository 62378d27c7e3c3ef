// File: internal/page/fragment_test.go
package page

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
)

func TestSimplifyFragment(t *testing.T) {
	t.Run("drops scripts styles and comments", func(t *testing.T) {
		in := `<div class="card"><script>evil()</script><style>.x{}</style><!-- note --><p>Hello</p></div>`
		assert.Equal(t, `<div class="card"><p>Hello</p></div>`, SimplifyFragment(in))
	})

	t.Run("strips presentation and instrumentation attributes", func(t *testing.T) {
		in := `<a href="/next" style="color:red" onclick="track()" data-analytics="7" id="next">Next</a>`
		assert.Equal(t, `<a href="/next" id="next">Next</a>`, SimplifyFragment(in))
	})

	t.Run("drops embedded vectors and frames", func(t *testing.T) {
		in := `<div><svg viewBox="0 0 1 1"><path d="M0"/></svg><iframe src="/ad"></iframe>ok</div>`
		assert.Equal(t, `<div>ok</div>`, SimplifyFragment(in))
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		in := "<p>Hello\n\n\t   world</p>\n\n   <p>again</p>"
		assert.Equal(t, "<p>Hello world</p> <p>again</p>", SimplifyFragment(in))
	})

	t.Run("tolerates malformed markup", func(t *testing.T) {
		in := `<div><span class="x">unclosed`
		got := SimplifyFragment(in)
		assert.Contains(t, got, "unclosed")
		assert.NotContains(t, got, "\n")
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", SimplifyFragment(""))
		assert.Equal(t, "", SimplifyFragment("   \n\t  "))
	})
}

func TestTruncateFragment(t *testing.T) {
	t.Run("short input passes through", func(t *testing.T) {
		s := "<p>short</p>"
		assert.Equal(t, s, TruncateFragment(s, 2000))
		assert.Equal(t, s, TruncateFragment(s, len(s)))
		assert.Equal(t, s, TruncateFragment(s, 0))
	})

	t.Run("appends a marker naming the cut", func(t *testing.T) {
		s := strings.Repeat("a", 100)
		got := TruncateFragment(s, 50)
		want := strings.Repeat("a", 50) +
			"\n\n... [TRUNCATED - content was 100 chars, showing first 50 chars]"
		assert.Equal(t, want, got)
	})

	t.Run("prefers cutting at a tag boundary", func(t *testing.T) {
		s := "<div><span>abc</span></div>"
		got := TruncateFragment(s, 22)
		want := "<div><span>abc</span>" +
			"\n\n... [TRUNCATED - content was 27 chars, showing first 21 chars]"
		assert.Equal(t, want, got)
	})

	t.Run("keeps the hard cut when no boundary is near", func(t *testing.T) {
		s := "<div>" + strings.Repeat("b", 100)
		got := TruncateFragment(s, 60)
		assert.Contains(t, got, "showing first 60 chars]")
	})
}

// FuzzSimplifyFragment checks robustness of the simplify and truncate pair
// against arbitrary markup.
func FuzzSimplifyFragment(f *testing.F) {
	f.Add([]byte(`<div class="a"><script>x()</script>text</div>`))
	f.Add([]byte(`<p style="x" onclick="y">hi <!-- c --></p>`))
	f.Add([]byte(`<<<>>>&amp;<not-a-tag`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		var input struct {
			Fragment string
			Max      int
		}
		if err := fuzzConsumer.GenerateStruct(&input); err != nil {
			return
		}

		out := SimplifyFragment(input.Fragment)
		if strings.Contains(out, "<script") {
			t.Fatalf("script element survived simplification: %q", out)
		}

		max := input.Max % 4096
		if max < 0 {
			max = -max
		}
		if max == 0 {
			max = 1
		}
		bounded := TruncateFragment(out, max)
		if len(out) <= max && bounded != out {
			t.Fatalf("truncation altered an in-bounds fragment")
		}
		if len(out) > max && len(bounded) > max+100 {
			t.Fatalf("truncated fragment overshoots the bound: %d > %d", len(bounded), max+100)
		}
	})
}
