package fetchedge

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
)

func TestCryptoSubtleDigestSHA256(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith(
				crypto.subtle.digest('SHA-256', new TextEncoder().encode('abc')).then((buf) => {
					const bytes = new Uint8Array(buf);
					let hex = '';
					for (let i = 0; i < bytes.length; i++) hex += bytes[i].toString(16).padStart(2, '0');
					return new Response(hex);
				})
			);
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := rr.Body.String(); got != want {
		t.Fatalf("SHA-256(\"abc\") = %q, want %q", got, want)
	}
}

func TestCryptoSubtleHMACRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			event.respondWith((async () => {
				const key = await crypto.subtle.importKey(
					'raw', new TextEncoder().encode('secret'),
					{ name: 'HMAC', hash: 'SHA-256' }, false, ['sign', 'verify']);
				const data = new TextEncoder().encode('message');
				const sig = await crypto.subtle.sign('HMAC', key, data);
				const ok = await crypto.subtle.verify('HMAC', key, sig, data);
				const badOk = await crypto.subtle.verify('HMAC', key, sig, new TextEncoder().encode('tampered'));
				return new Response(JSON.stringify({ ok, badOk }));
			})()
			);
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != `{"ok":true,"badOk":false}` {
		t.Fatalf("body = %q, want %q", got, `{"ok":true,"badOk":false}`)
	}
}

func TestAssertModule(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			let caught = false;
			try {
				assert.strictEqual(1, 2);
			} catch (e) {
				caught = e instanceof assert.AssertionError;
			}
			assert.ok(caught, 'assert.strictEqual should have thrown on mismatch');
			assert.equal(1, '1');
			event.respondWith(new Response('ok'));
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("body = %q, want %q", got, "ok")
	}
}

func TestPathModule(t *testing.T) {
	srv, _ := newTestServer(t, `
		addEventListener('fetch', (event) => {
			const joined = path.join('a', 'b', '..', 'c');
			const base = path.basename('/foo/bar.txt');
			const ext = path.extname('/foo/bar.txt');
			const dir = path.dirname('/foo/bar.txt');
			event.respondWith(new Response(JSON.stringify({ joined, base, ext, dir })));
		});
	`, 1)

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	want := `{"joined":"a/c","base":"bar.txt","ext":".txt","dir":"/foo"}`
	if got := rr.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestFSModuleSandboxedRead(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("hello fs"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	d, err := NewDispatcher(UserCode{Source: `
		addEventListener('fetch', (event) => {
			event.respondWith(fs.readTextFile('greeting.txt').then((text) => new Response(text)));
		});
	`}, DispatcherConfig{
		MaxWorkers:   1,
		PollInterval: time.Millisecond,
		Host:         core.HostConfig{FSRoot: root},
	}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Shutdown(5 * time.Second) })
	srv := &Server{Dispatcher: d}

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "hello fs" {
		t.Fatalf("body = %q, want %q", got, "hello fs")
	}
}

func TestFSModuleRejectsSandboxEscape(t *testing.T) {
	// __fsReadTextFile's Go error return becomes a synchronous JS throw
	// (see qjsRuntime.RegisterFunc), raised while evaluating the
	// respondWith(...) argument itself - so it surfaces as the fetch
	// handler's own synchronous-contract error, not a rejected promise.
	root := t.TempDir()

	d, err := NewDispatcher(UserCode{Source: `
		addEventListener('fetch', (event) => {
			event.respondWith(fs.readTextFile('../../etc/passwd').then((text) => new Response(text)));
		});
	`}, DispatcherConfig{
		MaxWorkers:   1,
		PollInterval: time.Millisecond,
		Host:         core.HostConfig{FSRoot: root},
	}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Shutdown(5 * time.Second) })
	srv := &Server{Dispatcher: d}

	req := httptest.NewRequest("GET", "http://example.test/", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500 (body %q)", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "escapes sandbox root") {
		t.Fatalf("body = %q, want it to mention the sandbox-escape error", rr.Body.String())
	}
}
