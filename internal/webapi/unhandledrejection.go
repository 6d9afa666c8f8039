package webapi

import (
	"fmt"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// unhandledRejectionJS provides a best-effort polyfill for unhandled promise
// rejection tracking: a rejection passed to globalThis.__trackRejection that
// still has no attached handler at the next microtask checkpoint is
// dispatched as an `unhandledrejection` event through
// globalThis.dispatchEvent. Rejections are not tracked automatically, and
// nothing in this package calls __trackRejection; the dispatchEvent that
// SetupFetchEvent installs delivers the event to no listener.
const unhandledRejectionJS = `
(function() {

class PromiseRejectionEvent extends Event {
	constructor(type, init) {
		super(type, init);
		this.promise = (init && init.promise) || null;
		this.reason = (init && init.reason) !== undefined ? init.reason : undefined;
	}
}

const _pendingRejections = new Map();
let _rejectionId = 0;

const _origPromise = globalThis.Promise;
const _origThen = _origPromise.prototype.then;

_origPromise.prototype.then = function(onFulfilled, onRejected) {
	const result = _origThen.call(this, onFulfilled, onRejected);
	if (typeof onRejected === 'function' && this.__rejectionId !== undefined) {
		_pendingRejections.delete(this.__rejectionId);
	}
	return result;
};

const _origCatch = _origPromise.prototype.catch;
_origPromise.prototype.catch = function(onRejected) {
	const result = _origCatch.call(this, onRejected);
	if (typeof onRejected === 'function' && this.__rejectionId !== undefined) {
		_pendingRejections.delete(this.__rejectionId);
	}
	return result;
};

globalThis.__trackRejection = function(promise, reason) {
	const id = ++_rejectionId;
	try {
		Object.defineProperty(promise, '__rejectionId', { value: id, writable: true, configurable: true });
	} catch (e) {
		return;
	}
	_pendingRejections.set(id, { promise, reason });
	queueMicrotask(function() {
		if (_pendingRejections.has(id)) {
			_pendingRejections.delete(id);
			const event = new PromiseRejectionEvent('unhandledrejection', {
				promise: promise,
				reason: reason,
				cancelable: true,
			});
			globalThis.dispatchEvent(event);
		}
	});
};

globalThis.PromiseRejectionEvent = PromiseRejectionEvent;

})();
`

// SetupUnhandledRejection registers PromiseRejectionEvent and best-effort
// unhandled rejection tracking on globalThis. Must run after SetupAbort
// (needs Event/EventTarget) and SetupFetchEvent (needs globalThis.dispatchEvent).
func SetupUnhandledRejection(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(unhandledRejectionJS); err != nil {
		return fmt.Errorf("evaluating unhandledrejection.js: %w", err)
	}
	return nil
}
