package browser

import (
	"encoding/json"
	"fmt"
)

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

const visibleFn = `function(e) {
	const r = e.getBoundingClientRect();
	const st = window.getComputedStyle(e);
	return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
}`

// pickScript evaluates to true after tagging the chosen match of selector
// with pickAttr, or false when there is no such match. With text set, the
// first match whose text contains it (case-insensitive) is chosen.
func pickScript(selector string, index int, visibleOnly bool, text string) string {
	return fmt.Sprintf(`(() => {
	const visible = %s;
	document.querySelectorAll('[%s]').forEach(e => e.removeAttribute('%s'));
	let els = Array.from(document.querySelectorAll(%s));
	if (%t) els = els.filter(visible);
	const want = %s.toLowerCase();
	if (want) els = els.filter(e => (e.innerText || '').toLowerCase().includes(want));
	const el = els[%d];
	if (!el) return false;
	el.setAttribute('%s', '1');
	return true;
})()`, visibleFn, pickAttr, pickAttr, jsString(selector), visibleOnly, jsString(text), index, pickAttr)
}

// visibleTextsScript evaluates to the trimmed innerText of every visible match.
func visibleTextsScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const visible = %s;
	return Array.from(document.querySelectorAll(%s)).filter(visible).map(e => (e.innerText || '').trim());
})()`, visibleFn, jsString(selector))
}
