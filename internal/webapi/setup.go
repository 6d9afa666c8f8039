package webapi

import (
	"fmt"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// SetupAll installs every standard module and Web API polyfill onto rt, in
// dependency order, and wires console output to sink. cfg.FSRoot controls
// whether the `fs` module is enabled.
func SetupAll(rt core.JSRuntime, el *eventloop.EventLoop, cfg core.HostConfig, sink func(core.LogEntry)) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"abort", func() error { return SetupAbort(rt, el) }},
		{"globals", func() error { return SetupGlobals(rt, el) }},
		{"webapi", func() error { return SetupWebAPIs(rt, el) }},
		{"urlsearchparams-ext", func() error { return SetupURLSearchParamsExt(rt, el) }},
		{"encoding", func() error { return SetupEncoding(rt, el) }},
		{"crypto", func() error { return SetupCrypto(rt, el) }},
		{"timers", func() error { return SetupTimers(rt, el) }},
		{"fetchevent", func() error { return SetupFetchEvent(rt, el) }},
		{"reporterror", func() error { return SetupReportError(rt, el) }},
		{"unhandledrejection", func() error { return SetupUnhandledRejection(rt, el) }},
		{"console", func() error { return SetupConsole(rt, el, sink) }},
		{"console-ext", func() error { return SetupConsoleExt(rt, el) }},
		{"assert", func() error { return SetupAssert(rt, el) }},
		{"path", func() error { return SetupPath(rt, el) }},
		{"fs", func() error { return SetupFS(rt, el, cfg.FSRoot) }},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("setting up %s: %w", step.name, err)
		}
	}
	return nil
}
