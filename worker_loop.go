package fetchedge

import (
	"fmt"
	"time"

	"github.com/fetchedge/fetchedge/internal/bundle"
	"github.com/fetchedge/fetchedge/internal/core"
)

// runWorkerLoop is component D: the per-worker goroutine that owns one
// EngineHost from spawn until Shutdown, multiplexing inbox messages, engine
// event-loop progress, and a periodic poll tick over a single select.
func runWorkerLoop(wr *WorkerRecord, code UserCode, cfg DispatcherConfig, sink func(core.LogEntry)) {
	defer close(wr.done)

	mode := cfg.mode()
	host, initErr := newEngineHost(cfg.Host, sink)

	var degraded *core.EngineError
	if initErr != nil {
		degraded = &core.EngineError{Kind: core.ErrEngineInternal, Message: initErr.Error()}
	} else {
		prepared, err := bundle.Prepare(code.Source, code.Mode)
		if err != nil {
			degraded = toEngineError(err)
		} else if err := host.CompileAndEvaluate(prepared, code.Mode); err != nil {
			degraded = toEngineError(err)
		} else {
			host.RunEventLoop()
		}
	}

	ticker := time.NewTicker(cfg.pollInterval())
	defer ticker.Stop()

	var pending []pendingResponse

	for {
		select {
		case msg, ok := <-wr.inbox:
			if !ok || msg.shutdown {
				goto drain
			}
			handleRequest(host, mode, degraded, msg.req, &pending)

		case <-ticker.C:
			if degraded == nil {
				host.RunEventLoop()
			}
			pending = sweepPending(host, mode, pending)
		}
	}

drain:
	// Shutdown path (spec.md §4.D/§4.G): run the event loop one final
	// time, then answer every outstanding entry so no one-shot is
	// dropped silently. Pending promises get a bounded number of extra
	// sweeps to settle before being abandoned with an error.
	if degraded == nil {
		host.RunEventLoop()
	}
	for attempt := 0; len(pending) > 0 && attempt < 50; attempt++ {
		if degraded == nil {
			host.RunEventLoop()
		}
		pending = sweepPending(host, mode, pending)
		if len(pending) > 0 {
			time.Sleep(time.Millisecond)
		}
	}
	for _, p := range pending {
		p.responseCh <- responseEnvelope{Err: &core.EngineError{
			Kind:    core.ErrEngineInternal,
			Message: "worker shut down before response settled",
		}}
	}

	// Drain any requests that arrived between the shutdown signal being
	// observed and the inbox being abandoned by the dispatcher.
	for {
		select {
		case msg, ok := <-wr.inbox:
			if !ok {
				if host != nil {
					host.Close()
				}
				return
			}
			if msg.shutdown {
				continue
			}
			msg.req.responseCh <- responseEnvelope{Err: fmt.Errorf("fetchedge: worker shutting down")}
		default:
			if host != nil {
				host.Close()
			}
			return
		}
	}
}

// handleRequest implements start_request (spec.md §4.D): invoke the
// listener and either answer immediately, or track the result as pending.
func handleRequest(host *core.Host, mode HandlerMode, degraded *core.EngineError, req *requestEnvelope, pending *[]pendingResponse) {
	if degraded != nil {
		req.responseCh <- responseEnvelope{Err: degraded}
		return
	}

	token, err := mode.StartRequest(host, req.head, req.body)
	if err != nil {
		req.responseCh <- responseEnvelope{Err: err}
		return
	}

	// The wiring always resolves through a promise chain (see core.Host),
	// so give it one immediate poll before parking it — the common
	// synchronous-response case resolves on this first check.
	if result, ok := mode.PollPending(host, token); ok {
		req.responseCh <- resultToEnvelope(result)
		return
	}

	*pending = append(*pending, pendingResponse{token: token, responseCh: req.responseCh, started: time.Now()})
}

// sweepPending checks every outstanding request in index order (spec.md
// §4.D: "no guarantee of external ordering vs request arrival") and
// answers any that have settled, returning the remainder.
func sweepPending(host *core.Host, mode HandlerMode, pending []pendingResponse) []pendingResponse {
	if len(pending) == 0 {
		return pending
	}
	remaining := pending[:0]
	for _, p := range pending {
		result, ok := mode.PollPending(host, p.token)
		if !ok {
			remaining = append(remaining, p)
			continue
		}
		p.responseCh <- resultToEnvelope(result)
	}
	return remaining
}

func resultToEnvelope(result core.PendingResult) responseEnvelope {
	if result.Err != nil {
		return responseEnvelope{Err: result.Err}
	}
	return responseEnvelope{Response: result.Response}
}

func toEngineError(err error) *core.EngineError {
	if ee, ok := err.(*core.EngineError); ok {
		return ee
	}
	return &core.EngineError{Kind: core.ErrScriptCompile, Message: err.Error()}
}
