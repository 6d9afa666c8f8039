//go:build !v8

package quickjs

import (
	"fmt"

	"modernc.org/quickjs"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
	"github.com/fetchedge/fetchedge/internal/webapi"
)

// New constructs a worker's EngineHost on the QuickJS backend: a fresh VM
// with every standard module and Web API polyfill installed, but UserCode
// not yet evaluated — the caller (the worker loop) drives
// CompileAndEvaluate itself so a script-init failure can be handled as
// degraded mode rather than a constructor error.
func New(cfg core.HostConfig, sink func(core.LogEntry)) (*core.Host, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	rt := &qjsRuntime{vm: vm}
	el := eventloop.New()

	if err := webapi.SetupAll(rt, el, cfg, sink); err != nil {
		vm.Close()
		return nil, fmt.Errorf("installing standard modules: %w", err)
	}

	return core.NewHost(rt, el, vm.Close), nil
}
