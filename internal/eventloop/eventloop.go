// Package eventloop tracks setTimeout/setInterval deadlines for a single
// worker. The callbacks themselves live in JS (globalThis.__timerCallbacks);
// Go only tracks scheduling metadata and fires them by calling back into
// the engine through core.JSRuntime, so the same EventLoop works for both
// the QuickJS and V8 backends.
package eventloop

import (
	"fmt"
	"sync"
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
)

type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	cleared  bool
}

// EventLoop manages Go-backed timers for setTimeout/setInterval, giving
// workers real wall-clock delays without blocking the engine thread.
type EventLoop struct {
	mu     sync.Mutex
	timers map[int]*timerEntry
	nextID int
}

// New creates an empty EventLoop.
func New() *EventLoop {
	return &EventLoop{timers: make(map[int]*timerEntry)}
}

// RegisterTimer creates a timer entry and returns its ID. The JS-side
// callback is expected to already be stored at
// globalThis.__timerCallbacks[id] by the caller (internal/webapi/timers.go).
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.nextID++
	id := el.nextID
	entry := &timerEntry{deadline: time.Now().Add(delay), id: id}
	if isInterval {
		if delay < 10*time.Millisecond {
			delay = 10 * time.Millisecond
		}
		entry.interval = delay
	}
	el.timers[id] = entry
	return id
}

// ClearTimer cancels a timer by ID. Safe to call on an already-fired or
// unknown ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if t, ok := el.timers[id]; ok {
		t.cleared = true
		delete(el.timers, id)
	}
}

// Fire invokes every timer whose deadline has passed by calling
// globalThis.__fireTimer(id) on the runtime, and reports whether any timer
// remains outstanding afterwards. Implements core.TimerDriver.
func (el *EventLoop) Fire(rt core.JSRuntime) bool {
	now := time.Now()

	el.mu.Lock()
	var due []*timerEntry
	for _, t := range el.timers {
		if !t.cleared && !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	el.mu.Unlock()

	for _, t := range due {
		el.mu.Lock()
		cur, ok := el.timers[t.id]
		if !ok || cur.cleared {
			el.mu.Unlock()
			continue
		}
		if cur.interval > 0 {
			cur.deadline = now.Add(cur.interval)
		} else {
			delete(el.timers, t.id)
		}
		el.mu.Unlock()

		_ = rt.Eval(fmt.Sprintf("globalThis.__fireTimer(%d)", t.id))
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0
}

// NextDeadline returns the earliest outstanding timer deadline, if any.
// The worker loop does not consult it: it polls on a fixed-period ticker.
func (el *EventLoop) NextDeadline() (time.Time, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	var earliest time.Time
	found := false
	for _, t := range el.timers {
		if t.cleared {
			continue
		}
		if !found || t.deadline.Before(earliest) {
			earliest = t.deadline
			found = true
		}
	}
	return earliest, found
}

// Reset clears all timers. The dispatcher never recycles workers, so
// nothing outside this package's tests calls it.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
}
