// Package bundle wraps a user's ES module source into the IIFE form the
// engine backends evaluate as a plain script, using esbuild's Transform API.
package bundle

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/fetchedge/fetchedge/internal/core"
)

// WrapESModule transforms an ES module source into a script that assigns
// its default export to globalThis.__worker_module__, so the engine can
// register whatever `fetch` listener that export's top-level code installs
// the same way a classic script would. If the source has no exports
// (already a plain script), the IIFE wrapping is harmless.
func WrapESModule(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatIIFE,
		GlobalName: "globalThis.__worker_module__",
		Target:     api.ESNext,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", &core.EngineError{Kind: core.ErrScriptCompile, Message: fmt.Sprintf("%v", msgs)}
	}
	code := string(result.Code)
	code += "if(globalThis.__worker_module__&&globalThis.__worker_module__.default)globalThis.__worker_module__=globalThis.__worker_module__.default;\n"
	return code, nil
}

// Prepare returns source ready for CompileAndEvaluate: module sources are
// run through WrapESModule, script sources pass through unchanged.
func Prepare(source string, mode core.Mode) (string, error) {
	if mode == core.ModeModule {
		return WrapESModule(source)
	}
	return source, nil
}
