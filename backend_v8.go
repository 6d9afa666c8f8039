//go:build v8

package fetchedge

import (
	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/v8engine"
)

// newEngineHost constructs the `-tags v8` EngineHost backend: a real V8
// isolate via github.com/tommie/v8go.
func newEngineHost(cfg core.HostConfig, sink func(core.LogEntry)) (*core.Host, error) {
	return v8engine.New(cfg, sink)
}

// BackendName identifies the active engine backend, surfaced by the CLI.
const BackendName = "v8"
