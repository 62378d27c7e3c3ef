// File: internal/page/scripts.go
package page

import (
	stdjson "encoding/json"
	"fmt"
)

// overviewScript inventories the interactive and structural elements of the
// current document. It returns an array of {role, name, value, tag, classes,
// id} objects in document order, visible elements only.
const overviewScript = `
(() => {
    const elements = [];
    const interactiveSelectors = [
        'button', 'a', 'input', 'select', 'textarea',
        '[role="button"]', '[role="link"]', '[role="textbox"]',
        '[role="searchbox"]', '[role="combobox"]', '[role="checkbox"]',
        '[role="radio"]', '[role="menuitem"]', '[role="tab"]',
        'h1', 'h2', 'h3', 'h4', 'h5', 'h6'
    ];

    const found = document.querySelectorAll(interactiveSelectors.join(', '));

    found.forEach(el => {
        const text = el.innerText || el.textContent || el.value || el.placeholder || el.getAttribute('aria-label') || '';
        if (!text.trim()) return;

        const rect = el.getBoundingClientRect();
        const style = window.getComputedStyle(el);
        const isVisible = style.display !== 'none' &&
                          style.visibility !== 'hidden' &&
                          rect.width > 0 &&
                          rect.height > 0;
        if (!isVisible) return;

        let role = el.getAttribute('role') || el.tagName.toLowerCase();
        if (role === 'a') role = 'link';
        if (role === 'input') {
            const type = el.getAttribute('type') || 'text';
            if (type === 'checkbox') role = 'checkbox';
            else if (type === 'radio') role = 'radio';
            else role = 'textbox';
        }
        if (['h1', 'h2', 'h3', 'h4', 'h5', 'h6'].includes(role)) role = 'heading';

        elements.push({
            role: role,
            name: text.substring(0, 100).trim(),
            value: el.value || '',
            tag: el.tagName.toLowerCase(),
            classes: el.className || '',
            id: el.id || ''
        });
    });

    return elements;
})()`

// findByTextScript builds a script that walks the document for visible
// elements containing the given text, scores them so interactive elements
// outrank their text-bearing children, tags the best ten with a synthetic
// attribute, and returns selectors addressing those tags.
func findByTextScript(text, role string) string {
	return fmt.Sprintf(`
(() => {
    const needle = %s;
    const roleFilter = %s;
    const interactiveTags = ['button', 'a', 'input', 'select', 'textarea'];

    const getPriority = (node) => {
        let priority = 0;
        const tag = node.tagName.toLowerCase();

        if (interactiveTags.includes(tag)) priority += 100;

        const ownText = Array.from(node.childNodes)
            .filter(n => n.nodeType === Node.TEXT_NODE)
            .map(n => n.textContent.trim())
            .join(' ');
        if (ownText.includes(needle)) priority += 50;

        // A span/div inside a button or link should lose to its parent.
        if (['span', 'div', 'p'].includes(tag)) {
            const parent = node.parentElement;
            if (parent && interactiveTags.includes(parent.tagName.toLowerCase())) {
                priority -= 200;
            }
        }

        if (['div', 'span', 'body', 'html'].includes(tag)) priority -= 20;

        priority -= Math.min(node.textContent.length / 100, 30);
        return priority;
    };

    const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT, null);
    const candidates = [];
    let node;

    while (node = walker.nextNode()) {
        if (!node.textContent.includes(needle)) continue;

        if (roleFilter) {
            const nodeRole = node.getAttribute('role') || node.tagName.toLowerCase();
            if (nodeRole !== roleFilter && node.tagName.toLowerCase() !== roleFilter) continue;
        }

        const rect = node.getBoundingClientRect();
        const style = window.getComputedStyle(node);
        const isVisible = style.display !== 'none' &&
                          style.visibility !== 'hidden' &&
                          style.opacity !== '0' &&
                          rect.width > 0 &&
                          rect.height > 0;
        if (!isVisible) continue;

        let contextDesc = '';
        const parent = node.parentElement;
        if (parent) {
            const parentTag = parent.tagName.toLowerCase();
            const parentClass = parent.className ? '.' + String(parent.className).split(' ')[0] : '';
            const parentId = parent.id ? '#' + parent.id : '';
            contextDesc = 'in <' + parentTag + parentClass + parentId + '>';
        }

        candidates.push({
            node: node,
            priority: getPriority(node),
            text: node.textContent.substring(0, 100).trim(),
            tag: node.tagName.toLowerCase(),
            role: node.getAttribute('role') || '',
            context: contextDesc,
            classes: String(node.className || ''),
            id: node.id || ''
        });
    }

    candidates.sort((a, b) => b.priority - a.priority);

    const results = [];
    candidates.slice(0, 10).forEach((item, idx) => {
        item.node.setAttribute('data-waldo-find-id', idx);
        results.push({
            selector: '[data-waldo-find-id="' + idx + '"]',
            text: item.text,
            tag: item.tag,
            role: item.role,
            context: item.context,
            classes: item.classes,
            id: item.id,
            index: idx
        });
    });

    return results;
})()`, encodeJS(text), encodeJS(role))
}

// encodeJS safely embeds a Go value as a JavaScript literal.
func encodeJS(v interface{}) string {
	b, err := stdjson.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
