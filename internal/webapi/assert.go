package webapi

import (
	"fmt"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// assertJS implements the `assert` standard module: ok/equal/strictEqual,
// each throwing an AssertionError on failure.
const assertJS = `
globalThis.assert = (function() {
	class AssertionError extends Error {
		constructor(message) {
			super(message);
			this.name = 'AssertionError';
		}
	}

	function fmtVal(v) {
		try { return JSON.stringify(v); } catch (e) { return String(v); }
	}

	function ok(value, message) {
		if (!value) {
			throw new AssertionError(message || (fmtVal(value) + ' == true'));
		}
	}

	function equal(actual, expected, message) {
		// eslint-disable-next-line eqeqeq
		if (!(actual == expected)) {
			throw new AssertionError(message || (fmtVal(actual) + ' == ' + fmtVal(expected)));
		}
	}

	function strictEqual(actual, expected, message) {
		if (actual !== expected) {
			throw new AssertionError(message || (fmtVal(actual) + ' === ' + fmtVal(expected)));
		}
	}

	function deepEqual(actual, expected, message) {
		var a, b;
		try { a = JSON.stringify(actual); b = JSON.stringify(expected); } catch (e) {
			throw new AssertionError(message || 'values could not be compared');
		}
		if (a !== b) {
			throw new AssertionError(message || (a + ' deepEqual ' + b));
		}
	}

	function throws(fn, message) {
		var threw = false;
		try { fn(); } catch (e) { threw = true; }
		if (!threw) {
			throw new AssertionError(message || 'Missing expected exception');
		}
	}

	return {
		AssertionError: AssertionError,
		ok: ok,
		equal: equal,
		strictEqual: strictEqual,
		deepEqual: deepEqual,
		throws: throws,
	};
})();
`

// SetupAssert evaluates the assert standard module.
func SetupAssert(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(assertJS); err != nil {
		return fmt.Errorf("evaluating assert.js: %w", err)
	}
	return nil
}
