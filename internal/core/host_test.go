package core

import (
	"errors"
	"fmt"
	"testing"
)

// stubRuntime is a scripted JSRuntime used to test Host's JSON wire
// protocol and header validation without a real JS engine: each EvalString
// call returns whatever evalStringFn returns, or an error if it is unset.
type stubRuntime struct {
	evalErr       error
	evalStringFn  func(js string) (string, error)
	microtaskRuns int
}

func (s *stubRuntime) Eval(js string) error { return s.evalErr }
func (s *stubRuntime) EvalString(js string) (string, error) {
	if s.evalStringFn != nil {
		return s.evalStringFn(js)
	}
	return "", errors.New("no response scripted")
}
func (s *stubRuntime) EvalBool(js string) (bool, error)      { return false, nil }
func (s *stubRuntime) EvalInt(js string) (int, error)        { return 0, nil }
func (s *stubRuntime) RegisterFunc(name string, fn any) error { return nil }
func (s *stubRuntime) SetGlobal(name string, value any) error { return nil }
func (s *stubRuntime) RunMicrotasks()                          {}

var _ JSRuntime = (*stubRuntime)(nil)

func TestCompileAndEvaluateWrapsErrorAsScriptCompile(t *testing.T) {
	rt := &stubRuntime{evalErr: errors.New("SyntaxError: unexpected token")}
	h := NewHost(rt, nil, nil)
	err := h.CompileAndEvaluate("((", ModeScript)
	if err == nil {
		t.Fatal("expected an error")
	}
	ee, ok := err.(*EngineError)
	if !ok {
		t.Fatalf("error type = %T, want *EngineError", err)
	}
	if ee.Kind != ErrScriptCompile {
		t.Fatalf("Kind = %v, want ErrScriptCompile", ee.Kind)
	}
	if !ee.Fatal() {
		t.Fatal("ScriptCompile errors must be Fatal")
	}
}

func TestStartRequestClassifiesKnownErrors(t *testing.T) {
	cases := []struct {
		message  string
		wantKind ErrorKind
	}{
		{"the fetch event handler should not return a value", ErrHandlerMustReturnUndefined},
		{"FetchEvent.respondWith must be called with a Response object before returning", ErrRespondWithNotCalled},
		{"If an object is returned, it must be an instance of Response", ErrResponseTypeMismatch},
		{"\x60fetch\x60 event listener can only be registered once", ErrScriptExecution},
		{"something else entirely", ErrScriptExecution},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
				return fmt.Sprintf(`{"kind":"error","message":%q}`, tc.message), nil
			}}
			h := NewHost(rt, nil, nil)
			_, err := h.StartRequest(RequestHead{Method: "GET", URL: "http://x/"}, nil)
			if err == nil {
				t.Fatal("expected a non-nil EngineError")
			}
			if err.Kind != tc.wantKind {
				t.Fatalf("Kind = %v, want %v", err.Kind, tc.wantKind)
			}
			if err.Message != tc.message {
				t.Fatalf("Message = %q, want %q (verbatim passthrough)", err.Message, tc.message)
			}
		})
	}
}

func TestStartRequestPendingReturnsNoError(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
		return `{"kind":"pending","message":""}`, nil
	}}
	h := NewHost(rt, nil, nil)
	token, err := h.StartRequest(RequestHead{Method: "GET", URL: "http://x/"}, []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == 0 {
		t.Fatal("expected a non-zero token")
	}
}

func TestStartRequestAssignsIncreasingTokens(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
		return `{"kind":"pending","message":""}`, nil
	}}
	h := NewHost(rt, nil, nil)
	t1, _ := h.StartRequest(RequestHead{}, nil)
	t2, _ := h.StartRequest(RequestHead{}, nil)
	if t2 <= t1 {
		t.Fatalf("second token %d must be greater than first %d", t2, t1)
	}
}

func TestPollPendingNotYetSettled(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) { return "", nil }}
	h := NewHost(rt, nil, nil)
	result, settled := h.PollPending(1)
	if settled {
		t.Fatal("expected settled=false for an empty wire response")
	}
	if result.Response != nil || result.Err != nil {
		t.Fatal("expected a zero-value PendingResult while not settled")
	}
}

func TestPollPendingSettledSuccess(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
		return `{"settled":true,"ok":true,"value":{"status":201,"headers":[["content-type","text/plain"]],"bodyB64":"aGVsbG8="}}`, nil
	}}
	h := NewHost(rt, nil, nil)
	result, settled := h.PollPending(1)
	if !settled {
		t.Fatal("expected settled=true")
	}
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Response.Status != 201 {
		t.Fatalf("Status = %d, want 201", result.Response.Status)
	}
	if string(result.Response.Body) != "hello" {
		t.Fatalf("Body = %q, want %q", result.Response.Body, "hello")
	}
	if got := result.Response.Header["content-type"]; len(got) != 1 || got[0] != "text/plain" {
		t.Fatalf("Header[content-type] = %v, want [text/plain]", got)
	}
}

func TestPollPendingSettledFailure(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
		return `{"settled":true,"ok":false,"message":"boom"}`, nil
	}}
	h := NewHost(rt, nil, nil)
	result, settled := h.PollPending(1)
	if !settled {
		t.Fatal("expected settled=true")
	}
	if result.Err == nil {
		t.Fatal("expected a non-nil error")
	}
	if result.Err.Kind != ErrScriptExecution {
		t.Fatalf("Kind = %v, want ErrScriptExecution", result.Err.Kind)
	}
}

func TestPollPendingRejectsInvalidHeaderName(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
		return `{"settled":true,"ok":true,"value":{"status":200,"headers":[["bad header","v"]],"bodyB64":""}}`, nil
	}}
	h := NewHost(rt, nil, nil)
	result, settled := h.PollPending(1)
	if !settled {
		t.Fatal("expected settled=true")
	}
	if result.Err == nil || result.Err.Kind != ErrInvalidHeader {
		t.Fatalf("expected ErrInvalidHeader, got %+v", result.Err)
	}
}

func TestPollPendingRejectsControlCharInHeaderValue(t *testing.T) {
	rt := &stubRuntime{evalStringFn: func(js string) (string, error) {
		return `{"settled":true,"ok":true,"value":{"status":200,"headers":[["x-v","a\nb"]],"bodyB64":""}}`, nil
	}}
	h := NewHost(rt, nil, nil)
	result, _ := h.PollPending(1)
	if result.Err == nil || result.Err.Kind != ErrInvalidHeader {
		t.Fatalf("expected ErrInvalidHeader, got %+v", result.Err)
	}
}

func TestCloseCallsCloseFn(t *testing.T) {
	called := false
	h := NewHost(&stubRuntime{}, nil, func() { called = true })
	h.Close()
	if !called {
		t.Fatal("expected closeFn to be invoked")
	}
}

func TestEngineErrorNilIsSafe(t *testing.T) {
	var ee *EngineError
	if ee.Error() != "" {
		t.Fatalf("Error() on nil *EngineError = %q, want empty string", ee.Error())
	}
}
