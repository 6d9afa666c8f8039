//go:build !v8

package fetchedge

import (
	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/quickjs"
)

// newEngineHost constructs the default (no build tag) EngineHost backend:
// modernc.org/quickjs, a pure-Go toolchain with no cgo dependency.
func newEngineHost(cfg core.HostConfig, sink func(core.LogEntry)) (*core.Host, error) {
	return quickjs.New(cfg, sink)
}

// BackendName identifies the active engine backend, surfaced by the CLI.
const BackendName = "quickjs"
