package webapi

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// pathJS implements the `path` standard module in terms of Go-backed
// posix-style helpers (join/resolve/normalize/dirname/basename/extname);
// the sandboxed `fs` module always speaks posix-style paths regardless of
// host OS, so path/filepath's platform-dependent separator handling is not
// used here, see DESIGN.md.
const pathJS = `
globalThis.path = {
	sep: '/',
	join: function() {
		var parts = Array.prototype.slice.call(arguments).map(String);
		return __pathJoin(JSON.stringify(parts));
	},
	resolve: function() {
		var parts = Array.prototype.slice.call(arguments).map(String);
		return __pathResolve(JSON.stringify(parts));
	},
	normalize: function(p) { return __pathNormalize(String(p)); },
	dirname: function(p) { return __pathDirname(String(p)); },
	basename: function(p, ext) {
		var b = __pathBasename(String(p));
		if (ext && b.endsWith(ext) && b !== ext) b = b.slice(0, b.length - ext.length);
		return b;
	},
	extname: function(p) { return __pathExtname(String(p)); },
	isAbsolute: function(p) { return String(p).startsWith('/'); },
};
`

// SetupPath registers the Go-backed path helpers and evaluates the `path`
// standard module, built on Go's posix-only path package (path.Join et al.)
// rather than path/filepath, which is platform-dependent.
func SetupPath(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	decodeParts := func(partsJSON string) ([]string, error) {
		var parts []string
		if err := json.Unmarshal([]byte(partsJSON), &parts); err != nil {
			return nil, fmt.Errorf("path: invalid arguments")
		}
		return parts, nil
	}

	if err := rt.RegisterFunc("__pathJoin", func(partsJSON string) (string, error) {
		parts, err := decodeParts(partsJSON)
		if err != nil {
			return "", err
		}
		return path.Join(parts...), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__pathResolve", func(partsJSON string) (string, error) {
		parts, err := decodeParts(partsJSON)
		if err != nil {
			return "", err
		}
		resolved := "/"
		for _, p := range parts {
			if path.IsAbs(p) {
				resolved = p
			} else {
				resolved = path.Join(resolved, p)
			}
		}
		return resolved, nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__pathNormalize", func(p string) string {
		return path.Clean(p)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__pathDirname", func(p string) string {
		return path.Dir(p)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__pathBasename", func(p string) string {
		return path.Base(p)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__pathExtname", func(p string) string {
		return path.Ext(p)
	}); err != nil {
		return err
	}

	return rt.Eval(pathJS)
}
