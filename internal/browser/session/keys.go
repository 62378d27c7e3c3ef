// File: internal/browser/session/keys.go
package session

import (
	"sort"

	"github.com/chromedp/chromedp/kb"
)

// keyCodes maps the accepted key names to their DevTools key codes. The set
// deliberately covers navigation and form control only; anything else a task
// needs should go through Type.
var keyCodes = map[string]string{
	"Enter":      kb.Enter,
	"Escape":     kb.Escape,
	"Tab":        kb.Tab,
	"Space":      " ",
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

// keyCode resolves a key name to its dispatchable code.
func keyCode(name string) (string, bool) {
	code, ok := keyCodes[name]
	return code, ok
}

// AllowedKeys lists the accepted key names in stable order.
func AllowedKeys() []string {
	names := make([]string, 0, len(keyCodes))
	for name := range keyCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
