package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// TimerDriver fires any due setTimeout/setInterval callbacks registered by
// a worker's script. Implemented by internal/eventloop.EventLoop; declared
// here (rather than imported) so Host stays a leaf type with no dependency
// on the timer bookkeeping itself.
type TimerDriver interface {
	// Fire invokes callbacks for every timer whose deadline has passed and
	// returns whether any timer is still outstanding (passed on as
	// RunEventLoop's result; the worker loop ticks at a fixed interval
	// either way).
	Fire(rt JSRuntime) (hasPending bool)
}

// PendingResult is the outcome of a settled request started via
// Host.StartRequest, keyed by the token StartRequest returned.
type PendingResult struct {
	Response *HTTPResponse
	Err      *EngineError
}

// Host is the shared, backend-agnostic half of EngineHost (component A).
// It implements FetchEventBinding (B), EventListenerRegistry (C) and
// ResponseBuilder (F) purely in terms of JSRuntime.Eval/EvalString — the
// listener slot, the FetchEvent class, and the response-wiring promise
// chain all live in JavaScript (installed by internal/webapi's
// SetupFetchEvent) and are driven here through a small JSON protocol, so
// neither QuickJS nor V8 needs a native promise-introspection API.
//
// Every request is tracked as "pending" even when its handler responds
// synchronously: the wiring always resolves through a Promise chain (the
// body read is async regardless of transport), so the first PollPending
// call after StartRequest observes already-settled state for the common
// synchronous case instead of the caller special-casing it.
type Host struct {
	rt      JSRuntime
	timers  TimerDriver
	closeFn func()
	tokens  atomic.Uint64
}

// NewHost wraps a configured JSRuntime (with the fetch-event protocol and
// standard modules already installed by the backend package) into a Host.
func NewHost(rt JSRuntime, timers TimerDriver, closeFn func()) *Host {
	return &Host{rt: rt, timers: timers, closeFn: closeFn}
}

// CompileAndEvaluate runs UserCode once. A non-nil error here is always
// fatal (ScriptCompile): the worker loop must enter degraded mode.
func (h *Host) CompileAndEvaluate(source string, mode Mode) error {
	if err := h.rt.Eval(source); err != nil {
		return &EngineError{Kind: ErrScriptCompile, Message: err.Error()}
	}
	// Settle any top-level microtasks (e.g. a top-level await in module mode).
	h.rt.RunMicrotasks()
	return nil
}

// RunEventLoop drives one round: fire any due timers, then drain
// microtasks. Returns whether any timer remains outstanding.
func (h *Host) RunEventLoop() bool {
	pending := false
	if h.timers != nil {
		pending = h.timers.Fire(h.rt)
	}
	h.rt.RunMicrotasks()
	return pending
}

type startRequestWire struct {
	URL     string              `json:"url"`
	Method  string              `json:"method"`
	Headers map[string][]string `json:"headers"`
	BodyB64 *string             `json:"bodyB64"`
}

type startResultWire struct {
	Kind    string `json:"kind"` // "pending" or "error"
	Message string `json:"message"`
}

// StartRequest invokes the registered `fetch` listener (FetchEventBinding +
// EventListenerRegistry). On success, the request is now tracked under the
// returned token; call PollPending with it until it reports settled. A
// non-nil error is synchronous (the listener threw, returned a value, or
// never called respondWith) and needs no polling.
func (h *Host) StartRequest(head RequestHead, body []byte) (token uint64, err *EngineError) {
	token = h.tokens.Add(1)

	var bodyB64 *string
	if len(body) > 0 {
		s := base64.StdEncoding.EncodeToString(body)
		bodyB64 = &s
	}
	wire := startRequestWire{
		URL:     head.URL,
		Method:  head.Method,
		Headers: head.Header,
		BodyB64: bodyB64,
	}
	reqJSON, jsonErr := json.Marshal(wire)
	if jsonErr != nil {
		return token, &EngineError{Kind: ErrEngineInternal, Message: fmt.Sprintf("encoding request: %s", jsonErr)}
	}

	js := fmt.Sprintf("JSON.stringify(globalThis.__startRequest(%d, %s))", token, string(reqJSON))
	out, evalErr := h.rt.EvalString(js)
	if evalErr != nil {
		return token, &EngineError{Kind: ErrEngineInternal, Message: evalErr.Error()}
	}

	var result startResultWire
	if jsonErr := json.Unmarshal([]byte(out), &result); jsonErr != nil {
		return token, &EngineError{Kind: ErrEngineInternal, Message: fmt.Sprintf("decoding start result: %s", jsonErr)}
	}
	if result.Kind == "error" {
		return token, classifyStartError(result.Message)
	}
	return token, nil
}

// classifyStartError maps the JS-side message text back to an ErrorKind,
// per the error table; the message itself is always preserved verbatim.
func classifyStartError(msg string) *EngineError {
	kind := ErrScriptExecution
	switch msg {
	case "the fetch event handler should not return a value":
		kind = ErrHandlerMustReturnUndefined
	case "FetchEvent.respondWith must be called with a Response object before returning":
		kind = ErrRespondWithNotCalled
	case "If an object is returned, it must be an instance of Response":
		kind = ErrResponseTypeMismatch
	}
	return &EngineError{Kind: kind, Message: msg}
}

type pendingWire struct {
	Settled bool            `json:"settled"`
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Value   *pendingValue   `json:"value"`
}

type pendingValue struct {
	Status  int        `json:"status"`
	Headers [][]string `json:"headers"`
	BodyB64 string      `json:"bodyB64"`
}

// PollPending checks whether the request started under token has settled.
// The second return value is false while the promise chain is still
// running; the caller should keep retrying on subsequent selector rounds.
func (h *Host) PollPending(token uint64) (PendingResult, bool) {
	js := fmt.Sprintf(`(function() {
		var key = '__pending_' + %d;
		var v = globalThis[key];
		if (!v || !v.settled) return '';
		delete globalThis[key];
		return JSON.stringify(v);
	})()`, token)

	out, err := h.rt.EvalString(js)
	if err != nil {
		return PendingResult{Err: &EngineError{Kind: ErrEngineInternal, Message: err.Error()}}, true
	}
	if out == "" {
		return PendingResult{}, false
	}

	var wire pendingWire
	if err := json.Unmarshal([]byte(out), &wire); err != nil {
		return PendingResult{Err: &EngineError{Kind: ErrEngineInternal, Message: err.Error()}}, true
	}
	if !wire.OK {
		msg := wire.Message
		if msg == "" {
			msg = "<No error message>"
		}
		return PendingResult{Err: &EngineError{Kind: ErrScriptExecution, Message: "Script execution failed: " + msg}}, true
	}

	body, decErr := base64.StdEncoding.DecodeString(wire.Value.BodyB64)
	if decErr != nil {
		return PendingResult{Err: &EngineError{Kind: ErrEngineInternal, Message: decErr.Error()}}, true
	}
	header := make(map[string][]string, len(wire.Value.Headers))
	for _, kv := range wire.Value.Headers {
		if len(kv) != 2 {
			continue
		}
		if !validHeaderToken(kv[0]) || !validHeaderValue(kv[1]) {
			return PendingResult{Err: &EngineError{Kind: ErrInvalidHeader, Message: fmt.Sprintf("invalid header %q", kv[0])}}, true
		}
		header[kv[0]] = append(header[kv[0]], kv[1])
	}
	return PendingResult{Response: &HTTPResponse{Status: wire.Value.Status, Header: header, Body: body}}, true
}

// Close releases the underlying engine. Safe to call once.
func (h *Host) Close() {
	if h.closeFn != nil {
		h.closeFn()
	}
}

// validHeaderToken reports whether s is a valid RFC 7230 header field name.
func validHeaderToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range []byte(s) {
		if !isTChar(c) {
			return false
		}
	}
	return true
}

func isTChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// validHeaderValue reports whether s is free of control characters other
// than horizontal tab, per RFC 7230's field-content grammar.
func validHeaderValue(s string) bool {
	for _, c := range []byte(s) {
		if c == '\t' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
