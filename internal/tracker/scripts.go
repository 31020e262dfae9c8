package tracker

// The remote side of the tracker is a fixed set of script templates invoked
// via Runtime.callFunctionOn with the resolved node as `this`. They are owned
// here as data, not generated at runtime, and form a versioned wire contract
// with the shell's injected sandbox bridge (window.__shellInspect): defensive
// property access, depth caps and denylists in these bodies must be preserved
// when editing. All results cross the boundary by value.

const scriptsVersion = "1"

// scriptToggleHighlight toggles an overlay mark on the node. Runs in the
// isolated sandbox only; the overlay hook lives in the injected bridge, never
// in page code. Arguments: (kind string, active bool).
const scriptToggleHighlight = `function(kind, active) {
	try {
		var bridge = window.__shellInspect;
		if (bridge && typeof bridge.setHighlight === 'function') {
			bridge.setHighlight(this, kind, active);
			return true;
		}
	} catch (err) {}
	return false;
}`

// scriptDescribeElement asks the sandbox bridge for the node's serializable
// descriptor (tag, attributes, bounding rect, simple own-properties).
// Argument: the tracker-assigned element id string. Returns null when the
// bridge is absent or extraction fails.
const scriptDescribeElement = `function(elementId) {
	try {
		var bridge = window.__shellInspect;
		if (bridge && typeof bridge.describeElement === 'function') {
			return bridge.describeElement(this, elementId);
		}
	} catch (err) {}
	return null;
}`

// scriptIsConnected reports whether the node is still part of its document.
const scriptIsConnected = `function() {
	try {
		return this.isConnected === true;
	} catch (err) {
		return false;
	}
}`

// scriptOwnPropertyNames enumerates the node's own enumerable property names
// in the main world without serializing their values. Universal prototype
// members and functions are excluded; the count is capped so a pathological
// page cannot flood the boundary.
const scriptOwnPropertyNames = `function() {
	var denylist = {
		'constructor': true, 'hasOwnProperty': true, 'isPrototypeOf': true,
		'propertyIsEnumerable': true, 'toLocaleString': true, 'toString': true,
		'valueOf': true, '__proto__': true, '__defineGetter__': true,
		'__defineSetter__': true, '__lookupGetter__': true, '__lookupSetter__': true
	};
	var names = [];
	try {
		var keys = Object.keys(this);
		for (var i = 0; i < keys.length && names.length < 100; i++) {
			var key = keys[i];
			if (denylist[key]) continue;
			try {
				if (typeof this[key] === 'function') continue;
			} catch (err) {
				continue;
			}
			names.push(key);
		}
	} catch (err) {}
	return names;
}`

// scriptCollectFiberAncestors walks the framework's internal per-node tree
// bottom-up from the node's fiber, following the return pointer. The walk is
// depth-capped at 30 and cycle-guarded; a record whose extraction throws is
// recorded as an all-empty placeholder rather than aborting the walk.
// Returns a flat array of ancestor records, nearest first, or null when the
// node has no fiber at all.
const scriptCollectFiberAncestors = `function() {
	function nameOf(type) {
		if (!type) return '';
		if (typeof type === 'string') return type;
		try {
			return String(type.name || '');
		} catch (err) {
			return '';
		}
	}
	function displayNameOf(type) {
		if (!type || typeof type === 'string') return '';
		try {
			return String(type.displayName || '');
		} catch (err) {
			return '';
		}
	}

	var fiber = null;
	try {
		var keys = Object.keys(this);
		for (var i = 0; i < keys.length; i++) {
			if (keys[i].indexOf('__reactFiber$') === 0) {
				fiber = this[keys[i]];
				break;
			}
		}
	} catch (err) {}
	if (!fiber) return null;

	var records = [];
	var seen = [];
	var node = fiber;
	while (node && records.length < 30) {
		if (seen.indexOf(node) !== -1) break;
		seen.push(node);
		var record = {};
		try {
			record.typeName = nameOf(node.type);
			record.typeDisplayName = displayNameOf(node.type);
			record.elementTypeName = nameOf(node.elementType);
			record.elementTypeDisplayName = displayNameOf(node.elementType);
			var owner = node._debugOwner;
			if (owner) {
				record.ownerName = nameOf(owner.type) || displayNameOf(owner.type);
				record.ownerEnv = String(owner.env || (owner._debugInfo && owner._debugInfo.env) || '');
			}
		} catch (err) {
			record = {};
		}
		records.push(record);
		try {
			node = node['return'];
		} catch (err) {
			break;
		}
	}
	return records;
}`

// exprDocumentTitle fetches a frame's live title. Evaluated in the frame's
// best-available context when the cached title is empty.
const exprDocumentTitle = `(function() {
	try {
		return String(document.title || '');
	} catch (err) {
		return '';
	}
})()`
