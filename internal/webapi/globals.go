package webapi

import (
	"fmt"
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// globalsJS defines pure-JS polyfills for simple global APIs.
const globalsJS = `
globalThis.structuredClone = (function() {
	var TYPED_ARRAY_CONSTRUCTORS = [
		typeof Uint8Array !== 'undefined' && Uint8Array,
		typeof Int8Array !== 'undefined' && Int8Array,
		typeof Uint8ClampedArray !== 'undefined' && Uint8ClampedArray,
		typeof Int16Array !== 'undefined' && Int16Array,
		typeof Uint16Array !== 'undefined' && Uint16Array,
		typeof Int32Array !== 'undefined' && Int32Array,
		typeof Uint32Array !== 'undefined' && Uint32Array,
		typeof Float32Array !== 'undefined' && Float32Array,
		typeof Float64Array !== 'undefined' && Float64Array,
		typeof BigInt64Array !== 'undefined' && BigInt64Array,
		typeof BigUint64Array !== 'undefined' && BigUint64Array,
	].filter(Boolean);

	function cloneError(msg) {
		return new DOMException(msg, 'DataCloneError');
	}

	function deepClone(value, seen) {
		if (value === undefined) throw cloneError('value could not be cloned');
		if (value === null) return null;

		var type = typeof value;
		if (type === 'boolean' || type === 'number' || type === 'string' || type === 'bigint') return value;
		if (type === 'function') throw cloneError('value could not be cloned');
		if (type === 'symbol') throw cloneError('value could not be cloned');

		if (typeof WeakMap !== 'undefined' && value instanceof WeakMap) throw cloneError('WeakMap cannot be cloned');
		if (typeof WeakSet !== 'undefined' && value instanceof WeakSet) throw cloneError('WeakSet cannot be cloned');
		if (typeof Promise !== 'undefined' && value instanceof Promise) throw cloneError('Promise cannot be cloned');

		if (seen.has(value)) throw cloneError('value could not be cloned: circular reference');
		seen.set(value, true);

		if (value instanceof Date) return new Date(value.getTime());
		if (value instanceof RegExp) return new RegExp(value.source, value.flags);
		if (value instanceof ArrayBuffer) { return value.slice(0); }

		for (var ti = 0; ti < TYPED_ARRAY_CONSTRUCTORS.length; ti++) {
			var TA = TYPED_ARRAY_CONSTRUCTORS[ti];
			if (value instanceof TA) {
				var clonedBuf = value.buffer.slice(value.byteOffset, value.byteOffset + value.byteLength);
				return new TA(clonedBuf);
			}
		}

		if (typeof DataView !== 'undefined' && value instanceof DataView) {
			var dvBuf = value.buffer.slice(value.byteOffset, value.byteOffset + value.byteLength);
			return new DataView(dvBuf);
		}

		if (typeof Map !== 'undefined' && value instanceof Map) {
			var clonedMap = new Map();
			value.forEach(function(v, k) {
				clonedMap.set(deepClone(k, seen), deepClone(v, seen));
			});
			return clonedMap;
		}

		if (typeof Set !== 'undefined' && value instanceof Set) {
			var clonedSet = new Set();
			value.forEach(function(v) {
				clonedSet.add(deepClone(v, seen));
			});
			return clonedSet;
		}

		if (Array.isArray(value)) {
			var arr = new Array(value.length);
			for (var i = 0; i < value.length; i++) {
				arr[i] = deepClone(value[i], seen);
			}
			return arr;
		}

		var result = {};
		var keys = Object.keys(value);
		for (var j = 0; j < keys.length; j++) {
			result[keys[j]] = deepClone(value[keys[j]], seen);
		}
		return result;
	}

	return function structuredClone(value) {
		return deepClone(value, new WeakMap());
	};
})();

globalThis.queueMicrotask = function(fn) {
	Promise.resolve().then(fn);
};
`

// SetupGlobals registers structuredClone, queueMicrotask, and
// performance.now(). navigator.sendBeacon and ctx.waitUntil are
// Cloudflare-Workers-specific concepts with no place in FetchEvent's
// contract (respondWith only) and are not carried over, see DESIGN.md.
func SetupGlobals(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	startTime := time.Now()
	if err := rt.RegisterFunc("__performanceNow", func() float64 {
		return float64(time.Since(startTime).Nanoseconds()) / 1e6
	}); err != nil {
		return err
	}

	if err := rt.Eval(globalsJS); err != nil {
		return fmt.Errorf("evaluating globals.js: %w", err)
	}

	return rt.Eval(`
		globalThis.performance = {
			now: function() { return __performanceNow(); }
		};
	`)
}

// ErrMissingArg returns a formatted error for functions called with too few arguments.
func ErrMissingArg(name string, required int) error {
	return fmt.Errorf("%s requires at least %d argument(s)", name, required)
}

// ErrInvalidArg returns a formatted error for invalid argument values.
func ErrInvalidArg(name, reason string) error {
	return fmt.Errorf("%s: %s", name, reason)
}
