package fetchedge

import (
	"sync"
	"testing"
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
)

// blockingMode is a HandlerMode whose StartRequest blocks until the test
// releases it, letting tests drive find_or_spawn's load-balancing policy
// deterministically without a real JS engine.
type blockingMode struct {
	mu      sync.Mutex
	release map[uint64]chan struct{}
	next    uint64
	started chan uint64
}

func newBlockingMode() *blockingMode {
	return &blockingMode{release: make(map[uint64]chan struct{}), started: make(chan uint64, 64)}
}

func (m *blockingMode) StartRequest(host *core.Host, head core.RequestHead, body []byte) (uint64, *core.EngineError) {
	m.mu.Lock()
	m.next++
	token := m.next
	ch := make(chan struct{})
	m.release[token] = ch
	m.mu.Unlock()
	m.started <- token
	return token, nil
}

func (m *blockingMode) PollPending(host *core.Host, token uint64) (core.PendingResult, bool) {
	m.mu.Lock()
	ch := m.release[token]
	m.mu.Unlock()
	select {
	case <-ch:
		return core.PendingResult{Response: &core.HTTPResponse{Status: 200}}, true
	default:
		return core.PendingResult{}, false
	}
}

func (m *blockingMode) releaseToken(token uint64) {
	m.mu.Lock()
	ch := m.release[token]
	m.mu.Unlock()
	close(ch)
}

// testDispatcherConfig leaves FSRoot/limits unset; the blockingMode never
// touches the real host beyond passing it through, but runWorkerLoop still
// builds a real engine host per worker since engine construction isn't part
// of HandlerMode. These tests only assert on dispatcher-level bookkeeping,
// so a worker with no listener registered is fine: the empty UserCode
// compiles cleanly (the worker is not degraded), and StartRequest never
// reaches core.Host through blockingMode.
var testDispatcherConfig = DispatcherConfig{
	MaxWorkers:   3,
	PollInterval: time.Millisecond,
	Mode:         nil, // set per-test
}

func TestNewDispatcherRejectsZeroWorkers(t *testing.T) {
	_, err := NewDispatcher(UserCode{Source: "globalThis.addEventListener('fetch', e => e.respondWith(new Response('')))"}, DispatcherConfig{MaxWorkers: 0}, nil)
	if err == nil {
		t.Fatal("expected an error for MaxWorkers: 0")
	}
}

func TestNewDispatcherRejectsNegativeWorkers(t *testing.T) {
	_, err := NewDispatcher(UserCode{}, DispatcherConfig{MaxWorkers: -1}, nil)
	if err == nil {
		t.Fatal("expected an error for MaxWorkers: -1")
	}
}

func TestDispatcherSpawnsUpToMaxWorkersThenReuses(t *testing.T) {
	mode := newBlockingMode()
	cfg := testDispatcherConfig
	cfg.Mode = mode
	d, err := NewDispatcher(UserCode{}, cfg, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	defer d.Shutdown(time.Second)

	// Saturate all three workers with requests that won't settle until
	// released; each Handle call should spawn a new worker rather than
	// queueing behind a busy one, per find_or_spawn's rule of spawning
	// before reusing a busy worker while under the cap.
	done := make(chan struct{}, 3)
	tokens := make([]uint64, 0, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _ = d.Handle("127.0.0.1:1", core.RequestHead{Method: "GET", URL: "http://x/"}, nil)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case tok := <-mode.started:
			tokens = append(tokens, tok)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for workers to start requests")
		}
	}
	if got := d.WorkerCount(); got != 3 {
		t.Fatalf("WorkerCount() = %d, want 3 (one per in-flight request)", got)
	}

	// A fourth request must reuse one of the three existing workers
	// (least-loaded) rather than spawn a fourth, since MaxWorkers is 3.
	go func() {
		_, _ = d.Handle("127.0.0.1:1", core.RequestHead{Method: "GET", URL: "http://x/"}, nil)
		done <- struct{}{}
	}()
	time.Sleep(50 * time.Millisecond)
	if got := d.WorkerCount(); got != 3 {
		t.Fatalf("WorkerCount() = %d after 4th request, want 3 (MaxWorkers cap)", got)
	}

	for _, tok := range tokens {
		mode.releaseToken(tok)
	}
	fourth := <-mode.started
	mode.releaseToken(fourth)

	for i := 0; i < 4; i++ {
		<-done
	}
}

func TestDispatcherReusesIdleWorkerBeforeSpawning(t *testing.T) {
	mode := newBlockingMode()
	cfg := testDispatcherConfig
	cfg.Mode = mode
	d, err := NewDispatcher(UserCode{}, cfg, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	defer d.Shutdown(time.Second)

	// First request spawns worker 1 and is released immediately, so the
	// worker goes idle.
	respCh := make(chan struct{}, 1)
	go func() {
		_, _ = d.Handle("127.0.0.1:1", core.RequestHead{}, nil)
		respCh <- struct{}{}
	}()
	tok := <-mode.started
	mode.releaseToken(tok)
	<-respCh

	if got := d.WorkerCount(); got != 1 {
		t.Fatalf("WorkerCount() = %d, want 1", got)
	}

	// A second, sequential request must reuse the now-idle worker instead
	// of spawning a second one.
	go func() {
		_, _ = d.Handle("127.0.0.1:1", core.RequestHead{}, nil)
		respCh <- struct{}{}
	}()
	tok2 := <-mode.started
	mode.releaseToken(tok2)
	<-respCh

	if got := d.WorkerCount(); got != 1 {
		t.Fatalf("WorkerCount() = %d after reuse, want 1 (idle worker reused, not a 2nd spawn)", got)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mode := newBlockingMode()
	cfg := testDispatcherConfig
	cfg.Mode = mode
	d, err := NewDispatcher(UserCode{}, cfg, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = d.Handle("127.0.0.1:1", core.RequestHead{}, nil)
		done <- struct{}{}
	}()
	tok := <-mode.started
	mode.releaseToken(tok)
	<-done

	// Calling Shutdown multiple times, including concurrently, must not
	// panic or block forever (sync.Once guards the broadcast+wait).
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Shutdown(2 * time.Second)
		}()
	}
	waitCh := make(chan struct{})
	go func() { wg.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Shutdown calls did not all return")
	}
}

func TestShutdownTimeoutLeaksRatherThanBlocksForever(t *testing.T) {
	mode := newBlockingMode()
	cfg := testDispatcherConfig
	cfg.Mode = mode
	d, err := NewDispatcher(UserCode{}, cfg, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	// Start a request that never gets released, so its worker never
	// drains. Shutdown with a short timeout must still return.
	go func() {
		_, _ = d.Handle("127.0.0.1:1", core.RequestHead{}, nil)
	}()
	<-mode.started

	start := time.Now()
	d.Shutdown(100 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Shutdown blocked for %v, want bounded by its timeout", elapsed)
	}
}
