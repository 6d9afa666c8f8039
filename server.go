package fetchedge

import (
	"fmt"
	"io"
	"net/http"

	"github.com/fetchedge/fetchedge/internal/core"
)

// Server is the HTTP adapter (component H): a thin net/http boundary that
// buffers each request's body, calls Dispatcher.Handle, and writes back
// the result. It carries no routing logic — every request, regardless of
// method or path, is forwarded to the worker pool.
type Server struct {
	Dispatcher *Dispatcher
}

var _ http.Handler = (*Server)(nil)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading request body: %s", err), http.StatusInternalServerError)
		return
	}

	head := core.RequestHead{
		Method:     r.Method,
		URL:        requestURL(r),
		Header:     map[string][]string(r.Header),
		RemoteAddr: r.RemoteAddr,
	}

	resp, err := s.Dispatcher.Handle(r.RemoteAddr, head, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// requestURL reconstructs an absolute URL for the script-visible Request,
// since net/http's server-side r.URL carries only the request target.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
