package fetchedge

import "github.com/fetchedge/fetchedge/internal/core"

// HandlerMode abstracts the script-visible request-handler contract so a
// second variant (e.g. a CDN-compatibility event shape) could be added
// without touching WorkerLoop or RequestDispatcher. Only DefaultMode — the
// `fetch` event contract specified by this package — is implemented here;
// see spec.md §6/§9.
type HandlerMode interface {
	// StartRequest builds the host event from head/body, invokes the
	// registered listener, and returns a token to poll for the eventual
	// response. A non-nil error means the listener's synchronous contract
	// was violated (no polling follows).
	StartRequest(host *core.Host, head core.RequestHead, body []byte) (token uint64, err *core.EngineError)

	// PollPending checks whether the request started under token has
	// settled; the bool return is false while still pending.
	PollPending(host *core.Host, token uint64) (core.PendingResult, bool)
}

// DefaultMode is the WinterCG-style `fetch` event contract: one
// addEventListener("fetch", ...) slot, a FetchEvent with respondWith, and
// a Response built from the eventual value. It delegates directly to
// core.Host, which already drives the JSON wire protocol installed by
// internal/webapi's SetupFetchEvent.
type DefaultMode struct{}

func (DefaultMode) StartRequest(host *core.Host, head core.RequestHead, body []byte) (uint64, *core.EngineError) {
	return host.StartRequest(head, body)
}

func (DefaultMode) PollPending(host *core.Host, token uint64) (core.PendingResult, bool) {
	return host.PollPending(token)
}

var _ HandlerMode = DefaultMode{}
