// Package fetchedge implements the JavaScript worker pool and request
// dispatch subsystem: a multi-threaded HTTP front-end that routes requests
// into a pool of single-threaded JS engine workers, each running a script
// that registers one `fetch` event listener.
package fetchedge

import (
	"sync/atomic"
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
)

// UserCode is the immutable worker script: source text plus its evaluation
// mode. Cloned (by value, since it is plain data) into every worker.
type UserCode struct {
	Source string
	Mode   core.Mode
}

// requestEnvelope is the message a dispatcher sends into a worker's inbox
// to request handling of one HTTP request. The body is fully buffered
// before crossing the goroutine boundary: the worker's engine is
// single-threaded and cannot interleave a streaming body read with its
// event loop.
type requestEnvelope struct {
	remoteAddr string
	head       core.RequestHead
	body       []byte
	responseCh chan<- responseEnvelope
}

// responseEnvelope is the result delivered back through a request's
// one-shot channel: exactly one of Response or Err is set.
type responseEnvelope struct {
	Response *core.HTTPResponse
	Err      error
}

// controlMessage is a worker's inbox element: either a request to handle,
// or a shutdown signal. A nil request with shutdown=true is the Shutdown
// variant.
type controlMessage struct {
	shutdown bool
	req      *requestEnvelope
}

// WorkerRecord is the dispatcher-side handle to one spawned worker.
// inFlight is incremented before a request is sent and decremented once
// its response has been delivered or discarded; invariant: inFlight >= 0.
type WorkerRecord struct {
	inbox    chan controlMessage
	inFlight atomic.Int64
	done     chan struct{}
}

// pendingResponse is an in-flight request whose handler returned a promise
// not yet fulfilled, tracked by the worker loop between poll ticks.
type pendingResponse struct {
	token      uint64
	responseCh chan<- responseEnvelope
	started    time.Time
}
