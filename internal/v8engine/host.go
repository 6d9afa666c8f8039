//go:build v8

package v8engine

import (
	v8 "github.com/tommie/v8go"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
	"github.com/fetchedge/fetchedge/internal/webapi"
)

// New constructs a worker's EngineHost on the V8 backend: a fresh isolate
// and context with every standard module and Web API polyfill installed,
// but UserCode not yet evaluated — the caller (the worker loop) drives
// CompileAndEvaluate itself so a script-init failure can be handled as
// degraded mode rather than a constructor error.
func New(cfg core.HostConfig, sink func(core.LogEntry)) (*core.Host, error) {
	iso := v8.NewIsolate()
	ctx := v8.NewContext(iso)

	rt := &v8Runtime{iso: iso, ctx: ctx}
	el := eventloop.New()

	if err := webapi.SetupAll(rt, el, cfg, sink); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, err
	}

	closeFn := func() {
		ctx.Close()
		iso.Dispose()
	}
	return core.NewHost(rt, el, closeFn), nil
}
