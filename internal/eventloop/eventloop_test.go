package eventloop

import (
	"testing"
	"time"
)

// recordingRuntime is a minimal core.JSRuntime that just records which
// __fireTimer(id) calls Fire made.
type recordingRuntime struct {
	fired []string
}

func (r *recordingRuntime) Eval(js string) error {
	r.fired = append(r.fired, js)
	return nil
}
func (r *recordingRuntime) EvalString(js string) (string, error) { return "", nil }
func (r *recordingRuntime) EvalBool(js string) (bool, error)     { return false, nil }
func (r *recordingRuntime) EvalInt(js string) (int, error)       { return 0, nil }
func (r *recordingRuntime) RegisterFunc(name string, fn any) error { return nil }
func (r *recordingRuntime) SetGlobal(name string, value any) error { return nil }
func (r *recordingRuntime) RunMicrotasks()                          {}

func TestFireSkipsTimersNotYetDue(t *testing.T) {
	el := New()
	id := el.RegisterTimer(time.Hour, false)
	rt := &recordingRuntime{}
	pending := el.Fire(rt)
	if len(rt.fired) != 0 {
		t.Fatalf("fired %d timers, want 0 (not due yet)", len(rt.fired))
	}
	if !pending {
		t.Fatal("expected a future timer to still be reported pending")
	}
	_ = id
}

func TestFireInvokesDueOneShotTimerOnce(t *testing.T) {
	el := New()
	id := el.RegisterTimer(-time.Millisecond, false) // already past due
	rt := &recordingRuntime{}

	pending := el.Fire(rt)
	if len(rt.fired) != 1 {
		t.Fatalf("fired %d timers, want 1", len(rt.fired))
	}
	if pending {
		t.Fatal("a one-shot timer must not remain pending after firing")
	}

	// Firing again must not re-invoke the now-removed one-shot timer.
	el.Fire(rt)
	if len(rt.fired) != 1 {
		t.Fatalf("fired %d timers after a second Fire, want still 1", len(rt.fired))
	}
	_ = id
}

func TestFireReschedulesInterval(t *testing.T) {
	el := New()
	el.RegisterTimer(-time.Millisecond, true) // already due, recurring
	rt := &recordingRuntime{}

	pending := el.Fire(rt)
	if len(rt.fired) != 1 {
		t.Fatalf("fired %d timers, want 1", len(rt.fired))
	}
	if !pending {
		t.Fatal("an interval timer must remain pending after firing")
	}

	deadline, ok := el.NextDeadline()
	if !ok {
		t.Fatal("expected a next deadline for the rescheduled interval")
	}
	if !deadline.After(time.Now().Add(-time.Second)) {
		t.Fatalf("rescheduled deadline %v looks stale", deadline)
	}
}

func TestClearTimerPreventsFiring(t *testing.T) {
	el := New()
	id := el.RegisterTimer(-time.Millisecond, false)
	el.ClearTimer(id)

	rt := &recordingRuntime{}
	pending := el.Fire(rt)
	if len(rt.fired) != 0 {
		t.Fatalf("fired %d timers, want 0 (cleared before Fire)", len(rt.fired))
	}
	if pending {
		t.Fatal("expected no pending timers after clearing the only one")
	}
}

func TestClearTimerOnUnknownIDIsSafe(t *testing.T) {
	el := New()
	el.ClearTimer(9999) // never registered; must not panic
}

func TestNextDeadlineEmptyWhenNoTimers(t *testing.T) {
	el := New()
	if _, ok := el.NextDeadline(); ok {
		t.Fatal("expected no next deadline for an empty event loop")
	}
}

func TestResetClearsAllTimers(t *testing.T) {
	el := New()
	el.RegisterTimer(time.Hour, false)
	el.RegisterTimer(time.Hour, true)
	el.Reset()
	if _, ok := el.NextDeadline(); ok {
		t.Fatal("expected no timers after Reset")
	}
}
