// File: internal/browser/session/validate.go
package session

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// blockedSchemes never reach the browser. Each one is either a script
// injection vector or a way off the web.
var blockedSchemes = []string{
	"javascript:", "data:", "file:", "ftp:", "about:", "blob:", "vbscript:",
}

// ValidateSelector rejects selector strings the element operations cannot
// handle: empty selectors and comma-separated selector lists. Commas inside
// quotes or brackets, as in attribute selectors, are fine.
func ValidateSelector(selector string) error {
	s := strings.TrimSpace(selector)
	if s == "" {
		return fmt.Errorf("selector is empty")
	}
	if hasTopLevelComma(s) {
		return fmt.Errorf("selector %q contains a comma-separated list, target one element at a time", selector)
	}
	return nil
}

// hasTopLevelComma reports whether s contains a comma outside quotes and
// outside bracket or parenthesis groups.
func hasTopLevelComma(s string) bool {
	var quote rune
	depth := 0
	escaped := false

	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			return true
		}
	}
	return false
}

// SafeURL normalizes a navigation target and refuses unsafe ones: non-web
// schemes, loopback and private addresses, and link-local ranges. URLs
// without a scheme get https.
func SafeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("url is empty")
	}

	lower := strings.ToLower(trimmed)
	for _, scheme := range blockedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", fmt.Errorf("navigation to %s urls is not allowed", strings.TrimSuffix(scheme, ":"))
		}
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("navigation scheme %q is not allowed, use http or https", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return "", fmt.Errorf("navigation to localhost is not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return "", fmt.Errorf("navigation to the non-public address %s is not allowed", host)
		}
	}

	return u.String(), nil
}

// checkHostAllowed enforces the configured host allow list. An empty list
// allows every host SafeURL accepts.
func (s *Session) checkHostAllowed(finalURL string) error {
	if len(s.allowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", finalURL, err)
	}
	host := strings.ToLower(u.Hostname())
	for _, g := range s.allowedHosts {
		if g.Match(host) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not in the allowed host list", host)
}
