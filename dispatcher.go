package fetchedge

import (
	"fmt"
	"sync"

	"github.com/fetchedge/fetchedge/internal/core"
)

// Dispatcher is the cross-thread worker pool (component E): it selects or
// spawns a worker for each request, forwards it, and awaits the response.
// Its mutex protects only the workers slice and the spawn decision; it is
// never held across the response wait.
type Dispatcher struct {
	mu      sync.Mutex
	workers []*WorkerRecord
	cfg     DispatcherConfig
	code    UserCode
	sink    func(core.LogEntry)

	shutdownOnce sync.Once
}

// NewDispatcher validates cfg and returns a Dispatcher ready to handle
// requests against code. max_workers=0 is rejected, matching the
// teacher-equivalent construction panic translated into a returned error.
func NewDispatcher(code UserCode, cfg DispatcherConfig, logSink func(core.LogEntry)) (*Dispatcher, error) {
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("fetchedge: max workers must be >= 1, got %d", cfg.MaxWorkers)
	}
	return &Dispatcher{cfg: cfg, code: code, sink: logSink}, nil
}

// Handle routes one request through the pool and returns its response.
// Errors here are dispatcher-level failures (e.g. a worker whose inbox is
// no longer accepting messages); the HTTP adapter turns them into a 500.
func (d *Dispatcher) Handle(remoteAddr string, head core.RequestHead, body []byte) (*core.HTTPResponse, error) {
	d.mu.Lock()
	wr, err := d.findOrSpawnLocked()
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	wr.inFlight.Add(1)
	d.mu.Unlock()

	defer wr.inFlight.Add(-1)

	respCh := make(chan responseEnvelope, 1)
	msg := controlMessage{req: &requestEnvelope{
		remoteAddr: remoteAddr,
		head:       head,
		body:       body,
		responseCh: respCh,
	}}

	select {
	case wr.inbox <- msg:
	default:
		return nil, fmt.Errorf("fetchedge: worker inbox saturated")
	}

	env := <-respCh
	if env.Err != nil {
		return nil, env.Err
	}
	return env.Response, nil
}

// findOrSpawnLocked implements the deterministic idle-reuse -> spawn ->
// least-loaded policy from spec.md §4.E. Caller must hold d.mu.
func (d *Dispatcher) findOrSpawnLocked() (*WorkerRecord, error) {
	for _, wr := range d.workers {
		if wr.inFlight.Load() <= 0 {
			return wr, nil
		}
	}

	if len(d.workers) < d.cfg.MaxWorkers {
		wr := d.spawnWorkerLocked()
		return wr, nil
	}

	var best *WorkerRecord
	var bestLoad int64
	for _, wr := range d.workers {
		load := wr.inFlight.Load()
		if best == nil || load < bestLoad {
			best, bestLoad = wr, load
		}
	}
	if best == nil {
		// Unreachable: a fresh dispatcher always spawns before reaching here.
		return nil, fmt.Errorf("fetchedge: no workers available")
	}
	return best, nil
}

func (d *Dispatcher) spawnWorkerLocked() *WorkerRecord {
	wr := &WorkerRecord{
		inbox: make(chan controlMessage, defaultInboxBuffer),
		done:  make(chan struct{}),
	}
	d.workers = append(d.workers, wr)
	go runWorkerLoop(wr, d.code, d.cfg, d.sink)
	return wr
}

// WorkerCount reports how many workers have been spawned so far (for tests
// and observability; not part of the dispatch contract).
func (d *Dispatcher) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}
