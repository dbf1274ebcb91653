package browser

// Page-side helpers. Query helpers take one string argument and return an
// element or null. Node helpers run with the element bound to this.

const jsQueryCSS = `function(sel) {
	return document.querySelector(sel);
}`

const jsQueryPierce = `function(sel) {
	const walk = (root) => {
		const hit = root.querySelector(sel);
		if (hit) return hit;
		for (const el of root.querySelectorAll('*')) {
			if (el.shadowRoot) {
				const found = walk(el.shadowRoot);
				if (found) return found;
			}
		}
		return null;
	};
	return walk(document);
}`

const jsQueryXPath = `function(xp) {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return null;
	return n.nodeType === Node.ELEMENT_NODE ? n : n.parentElement;
}`

// The container of the first matching text node, in document order.
const jsQueryText = `function(text) {
	const root = document.body || document.documentElement;
	if (!root) return null;
	const walker = document.createTreeWalker(root, NodeFilter.SHOW_TEXT);
	let n;
	while ((n = walker.nextNode())) {
		if (n.textContent && n.textContent.includes(text)) return n.parentElement;
	}
	return null;
}`

const jsQueryLabel = `function(label) {
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const want = norm(label);
	for (const el of document.querySelectorAll('[aria-label]')) {
		if (norm(el.getAttribute('aria-label')) === want) return el;
	}
	for (const el of document.querySelectorAll('[aria-labelledby]')) {
		const ids = el.getAttribute('aria-labelledby').split(/\s+/);
		const text = ids.map((id) => {
			const ref = document.getElementById(id);
			return ref ? ref.textContent : '';
		}).join(' ');
		if (norm(text) === want) return el;
	}
	for (const lab of document.querySelectorAll('label')) {
		if (norm(lab.textContent) !== want) continue;
		if (lab.control) return lab.control;
		const forId = lab.getAttribute('for');
		if (forId) {
			const target = document.getElementById(forId);
			if (target) return target;
		}
		return lab;
	}
	for (const el of document.querySelectorAll('[title]')) {
		if (norm(el.getAttribute('title')) === want) return el;
	}
	return null;
}`

const jsDescribe = `function() {
	const el = this;
	const data = {};
	for (const a of Array.from(el.attributes || [])) {
		if (a.name.startsWith('data-')) data[a.name] = a.value;
	}
	let cls = '';
	if (typeof el.className === 'string') cls = el.className;
	else if (el.getAttribute) cls = el.getAttribute('class') || '';
	return {
		tag: (el.tagName || '').toLowerCase(),
		role: el.getAttribute ? (el.getAttribute('role') || '') : '',
		class: cls,
		data: data,
		hasClickHandler: typeof el.onclick === 'function' || (el.hasAttribute ? el.hasAttribute('onclick') : false),
		cursor: el.nodeType === 1 ? getComputedStyle(el).cursor : '',
		text: (el.innerText || el.textContent || '').trim().slice(0, 80),
	};
}`

// Collects this and its parent elements, nearest first.
const jsAncestors = `function(max) {
	const out = [];
	let el = this;
	while (el && el.nodeType === 1 && out.length < max) {
		out.push(el);
		el = el.parentElement;
	}
	return out;
}`

const jsText = `function() {
	return (this.innerText || this.textContent || '').trim();
}`

// Selects that accept the value get it directly; other fields are focused and
// cleared so the value can be typed in.
const jsPrepareValue = `function(value) {
	this.scrollIntoView({block: 'center', inline: 'center'});
	if (this.tagName === 'SELECT') {
		this.value = value;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return 'done';
	}
	this.focus();
	if (this.isContentEditable) {
		document.getSelection().selectAllChildren(this);
	} else if (typeof this.select === 'function') {
		this.select();
	}
	return 'type';
}`

const jsCommitValue = `function() {
	this.dispatchEvent(new Event('change', {bubbles: true}));
}`
