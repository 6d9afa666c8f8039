package fetchedge

import (
	"time"
)

// Shutdown is the ShutdownCoordinator (component G): it signals every
// worker to exit and waits up to timeout (zero means unbounded) for each
// to finish draining its pending work. A second call is a no-op, matching
// spec.md §8's idempotence law.
func (d *Dispatcher) Shutdown(timeout time.Duration) {
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		workers := append([]*WorkerRecord(nil), d.workers...)
		d.mu.Unlock()

		for _, wr := range workers {
			select {
			case wr.inbox <- controlMessage{shutdown: true}:
			default:
				// Inbox saturated; the worker will still observe shutdown
				// once it drains enough of its backlog to read this slot,
				// since the channel is never closed from this side.
				go func(wr *WorkerRecord) { wr.inbox <- controlMessage{shutdown: true} }(wr)
			}
		}

		var deadline <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			deadline = t.C
		}

		for _, wr := range workers {
			select {
			case <-wr.done:
			case <-deadline:
				// Remaining workers are abandoned; their goroutines are
				// leaked until they finish draining on their own, matching
				// spec.md §4.G's "thread handles leaked" note.
				return
			}
		}
	})
}
