// internal/surface/scripts.go
package surface

// Page-side functions shared by the browser backends. Each is a function expression
// taking the element as its first argument (or `this` for rod's element Eval).

// ScriptRect returns {x,y,width,height} or null when the element has no rendered box.
const ScriptRect = `function(el) {
	el = el || this;
	if (!el || !el.isConnected) return null;
	const r = el.getBoundingClientRect();
	if (r.width <= 0 || r.height <= 0) return null;
	return {x: r.left, y: r.top, width: r.width, height: r.height};
}`

// ScriptVisible mirrors the visibility rules used for geometry retrieval.
const ScriptVisible = `function(el) {
	el = el || this;
	if (!el || !el.isConnected) return false;
	const r = el.getBoundingClientRect();
	const s = window.getComputedStyle(el);
	return r.width > 0 && r.height > 0 && s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
}`

// ScriptTextOrAttribute returns innerText for "text"/"" and the attribute value otherwise.
const ScriptTextOrAttribute = `function(el, name) {
	el = el || this;
	if (!name || name === 'text') return (el.innerText || el.textContent || '').trim();
	const v = el.getAttribute(name);
	return v === null ? '' : v;
}`

// ScriptActivate calls the element's own click method.
const ScriptActivate = `function(el) {
	el = el || this;
	el.click();
	return true;
}`

// ScriptPointerEvents dispatches the event sequence a real press produces.
const ScriptPointerEvents = `function(el) {
	el = el || this;
	const r = el.getBoundingClientRect();
	const x = r.left + r.width / 2, y = r.top + r.height / 2;
	const base = {bubbles: true, cancelable: true, composed: true, clientX: x, clientY: y, button: 0, view: window};
	el.dispatchEvent(new PointerEvent('pointerover', base));
	el.dispatchEvent(new PointerEvent('pointerdown', Object.assign({buttons: 1, pointerType: 'mouse', isPrimary: true}, base)));
	el.dispatchEvent(new MouseEvent('mousedown', Object.assign({buttons: 1}, base)));
	el.dispatchEvent(new PointerEvent('pointerup', Object.assign({pointerType: 'mouse', isPrimary: true}, base)));
	el.dispatchEvent(new MouseEvent('mouseup', base));
	el.dispatchEvent(new MouseEvent('click', base));
	return true;
}`
