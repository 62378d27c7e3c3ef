// File: internal/page/compress.go
package page

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// Compressor fits page snapshots to a token budget. Content is shed in
// reverse priority order, the raw fragment first, then elements from the
// lowest priority groups upward, and every removal is recorded on the
// snapshot so the rendered form names what is missing.
type Compressor struct {
	estimator schemas.TokenEstimator
	logger    *zap.Logger
}

// NewCompressor builds a compressor using the given token estimator.
func NewCompressor(estimator schemas.TokenEstimator, logger *zap.Logger) *Compressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{
		estimator: estimator,
		logger:    logger.Named("compressor"),
	}
}

// Compress returns a snapshot whose rendered form estimates at or under
// budget. Snapshots already within budget pass through unchanged apart from
// the recorded estimate, which makes the operation idempotent: compressing
// an already compressed snapshot with the same budget is a no-op.
//
// A non-positive budget disables compression.
func (c *Compressor) Compress(snap schemas.PageSnapshot, budget int) schemas.PageSnapshot {
	out := snap
	cost := c.estimator.Estimate(Render(out))
	if budget <= 0 || cost <= budget {
		out.EstimatedTokens = cost
		return out
	}

	out.Truncated = true
	total := 0
	for _, g := range out.Groups {
		total += len(g.Elements)
	}
	// Omissions recorded by an earlier pass stay recorded.
	priorOmitted := out.OmittedElements

	// The fragment is the first casualty. If everything else fits, restore
	// as much of it as the remaining budget allows.
	fragment := out.Fragment
	out.Fragment = ""
	if base := c.estimator.Estimate(Render(out)); base <= budget {
		out.Fragment = c.refitFragment(out, fragment, budget)
		out.EstimatedTokens = c.estimator.Estimate(Render(out))
		c.logger.Debug("Compressed snapshot by trimming fragment",
			zap.Int("budget", budget),
			zap.Int("estimated_tokens", out.EstimatedTokens))
		return out
	}

	// Shed elements from the back of the priority order until the render
	// fits. Scanning from the largest keep count down finds the longest
	// prefix that fits.
	for k := total - 1; k >= 0; k-- {
		cand := out
		cand.Groups = prefixGroups(out.Groups, k)
		cand.OmittedElements = priorOmitted + total - k
		if kept := c.estimator.Estimate(Render(cand)); kept <= budget {
			cand.EstimatedTokens = kept
			c.logger.Debug("Compressed snapshot by dropping elements",
				zap.Int("budget", budget),
				zap.Int("kept", k),
				zap.Int("omitted", cand.OmittedElements),
				zap.Int("estimated_tokens", kept))
			return cand
		}
	}

	// Even an element-free snapshot is over budget, so the header itself
	// must shrink. This only happens with pathologically small budgets.
	out.Groups = nil
	out.OmittedElements = priorOmitted + total
	out = c.clampHeader(out, budget)
	out.EstimatedTokens = c.estimator.Estimate(Render(out))
	c.logger.Warn("Snapshot header exceeded token budget",
		zap.Int("budget", budget),
		zap.Int("estimated_tokens", out.EstimatedTokens))
	return out
}

// refitFragment finds the longest truncation of fragment that keeps the
// snapshot within budget, returning "" when not even a stub fits.
func (c *Compressor) refitFragment(snap schemas.PageSnapshot, fragment string, budget int) string {
	if fragment == "" {
		return ""
	}

	fits := func(frag string) bool {
		cand := snap
		cand.Fragment = frag
		return c.estimator.Estimate(Render(cand)) <= budget
	}
	if fits(fragment) {
		return fragment
	}

	// Binary search the cut point. TruncateFragment appends a marker, so
	// fitting is not perfectly monotonic in the cut length, but the marker
	// length is near constant and the search converges on a valid cut.
	lo, hi := 0, len(fragment)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(TruncateFragment(fragment, mid)) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return ""
	}
	return TruncateFragment(fragment, lo)
}

// clampHeader halves the title, then the URL, until the render fits or both
// are empty.
func (c *Compressor) clampHeader(snap schemas.PageSnapshot, budget int) schemas.PageSnapshot {
	for len(snap.Title) > 0 && c.estimator.Estimate(Render(snap)) > budget {
		snap.Title = snap.Title[:len(snap.Title)/2]
	}
	for len(snap.URL) > 0 && c.estimator.Estimate(Render(snap)) > budget {
		snap.URL = snap.URL[:len(snap.URL)/2]
	}
	return snap
}

// prefixGroups keeps the first k elements across groups in order, retaining
// partial groups and discarding groups past the cut entirely.
func prefixGroups(groups []schemas.RoleGroup, k int) []schemas.RoleGroup {
	if k <= 0 {
		return nil
	}
	kept := make([]schemas.RoleGroup, 0, len(groups))
	remaining := k
	for _, g := range groups {
		if remaining <= 0 {
			break
		}
		ng := g
		if len(g.Elements) > remaining {
			ng.Elements = g.Elements[:remaining]
		}
		remaining -= len(ng.Elements)
		kept = append(kept, ng)
	}
	return kept
}

// Render produces the textual form of a snapshot shown to the agent. It is
// a pure function of the snapshot: rendering never mutates or re-estimates.
func Render(snap schemas.PageSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "URL: %s\n", snap.URL)
	fmt.Fprintf(&b, "Title: %s\n", snap.Title)
	b.WriteString("\nInteractive Elements:\n")

	if len(snap.Groups) == 0 {
		b.WriteString("  (none detected)\n")
	}
	for _, g := range snap.Groups {
		fmt.Fprintf(&b, "\n%sS:\n", strings.ToUpper(g.Role))
		for _, el := range g.Elements {
			b.WriteString("  - " + el.Label)
			if el.Value != "" {
				fmt.Fprintf(&b, " (value: %s)", el.Value)
			}
			if el.Selector != "" {
				fmt.Fprintf(&b, " [%s]", el.Selector)
			}
			b.WriteString("\n")
		}
		if g.Omitted > 0 {
			fmt.Fprintf(&b, "  ... and %d more\n", g.Omitted)
		}
	}

	if snap.Fragment != "" {
		b.WriteString("\nFragment:\n")
		b.WriteString(snap.Fragment)
		b.WriteString("\n")
	}

	if snap.Truncated {
		fmt.Fprintf(&b, "\n... (truncated, %d elements omitted)\n", snap.OmittedElements)
	}

	return b.String()
}
