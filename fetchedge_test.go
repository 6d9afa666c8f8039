package fetchedge

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
)

func newTestServer(t *testing.T, source string, maxWorkers int) (*Server, *Dispatcher) {
	t.Helper()
	d, err := NewDispatcher(UserCode{Source: source, Mode: core.ModeScript}, DispatcherConfig{
		MaxWorkers:   maxWorkers,
		PollInterval: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Shutdown(5 * time.Second) })
	return &Server{Dispatcher: d}, d
}

func TestEchoRequest(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith(event.request.text().then((body) => new Response(body, {
				status: 200,
				headers: { 'x-echo': event.request.method },
			})));
		});
	`, 1)

	req := httptest.NewRequest("POST", "http://example.test/echo", strings.NewReader("hello worker"))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "hello worker" {
		t.Fatalf("body = %q, want %q", got, "hello worker")
	}
	if got := rr.Header().Get("x-echo"); got != "POST" {
		t.Fatalf("x-echo header = %q, want POST", got)
	}
}

func TestAsyncViaSetTimeout(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith(new Promise((resolve) => {
				setTimeout(() => resolve(new Response('delayed')), 20);
			}));
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/delayed", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != "delayed" {
		t.Fatalf("body = %q, want %q", got, "delayed")
	}
}

func TestRespondWithNotCalledYields500(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			// never calls event.respondWith
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "respondWith") {
		t.Fatalf("body = %q, want it to mention respondWith", rr.Body.String())
	}
}

func TestDuplicateFetchListenerYields500(t *testing.T) {
	// A second addEventListener('fetch', ...) call, even one made from
	// inside the first listener while handling a request, must surface
	// as a per-request error rather than only being caught at script
	// load time.
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			addEventListener('fetch', (event2) => { event2.respondWith(new Response('b')); });
			event.respondWith(new Response('a'));
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "only be registered once") {
		t.Fatalf("body = %q, want it to mention the duplicate-listener message", rr.Body.String())
	}
}

func TestUnsupportedEventNameYields500(t *testing.T) {
	// Registering a non-"fetch" event name, even from inside the fetch
	// handler, must surface as a per-request error.
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			addEventListener('install', () => {});
			event.respondWith(new Response('a'));
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Only the `fetch` event is supported") {
		t.Fatalf("body = %q, want it to mention the unsupported-event message", rr.Body.String())
	}
}

func TestConcurrencyScalesAcrossWorkers(t *testing.T) {
	src := `
		addEventListener('fetch', (event) => {
			event.respondWith(new Promise((resolve) => {
				setTimeout(() => resolve(new Response('done')), 20);
			}));
		});
	`

	runTwoConcurrent := func(t *testing.T, srv *Server) {
		t.Helper()
		results := make(chan int, 2)
		for i := 0; i < 2; i++ {
			go func() {
				req := httptest.NewRequest("GET", "http://example.test/", nil)
				rr := httptest.NewRecorder()
				srv.ServeHTTP(rr, req)
				results <- rr.Code
			}()
		}
		for i := 0; i < 2; i++ {
			if got := <-results; got != 200 {
				t.Fatalf("status = %d, want 200", got)
			}
		}
	}

	// With two workers available, two concurrent requests must each get
	// their own worker rather than queue behind one another (find_or_spawn
	// prefers spawning a new idle worker over reusing a busy one).
	t.Run("two workers available, both used", func(t *testing.T) {
		srv, d := newTestServer(t, src, 2)
		runTwoConcurrent(t, srv)
		if got := d.WorkerCount(); got != 2 {
			t.Fatalf("WorkerCount() = %d, want 2", got)
		}
	})

	// With max_js_threads=1, both requests must still complete correctly,
	// sharing the single worker: both arrive through its inbox channel and
	// are held as pending side by side until their timers fire.
	t.Run("single worker interleaves both", func(t *testing.T) {
		srv, d := newTestServer(t, src, 1)
		runTwoConcurrent(t, srv)
		if got := d.WorkerCount(); got != 1 {
			t.Fatalf("WorkerCount() = %d, want 1", got)
		}
	})
}

func TestZeroLengthBodyRoundTrips(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith(event.request.text().then((body) => new Response(body)));
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.Len(); got != 0 {
		t.Fatalf("body length = %d, want 0", got)
	}
}

func TestWrongReturnTypeYields500(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith('not a response');
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "instance of Response") {
		t.Fatalf("body = %q, want it to mention the Response-type mismatch", rr.Body.String())
	}
}

func TestScriptCompileErrorDegradesWorker(t *testing.T) {
	srv, _ := newTestServer(t, `this is not valid javascript (((`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}

	// A second request to the same (degraded) worker must also fail,
	// rather than panicking or hanging, since degraded mode is permanent
	// for that worker's lifetime.
	req2 := httptest.NewRequest("GET", "http://example.test/", nil)
	rr2 := httptest.NewRecorder()
	srv.ServeHTTP(rr2, req2)
	if rr2.Code != 500 {
		t.Fatalf("second request status = %d, want 500", rr2.Code)
	}
}

func TestServerReadsFullRequestBody(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith(event.request.text().then((body) => new Response(String(body.length))));
		});
	`, 1)

	payload := strings.Repeat("x", 10000)
	req := httptest.NewRequest("POST", "http://example.test/", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "10000" {
		t.Fatalf("reported body length = %q, want \"10000\"", got)
	}
}
