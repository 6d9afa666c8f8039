package webapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// fsJS implements the read-only `fs` standard module: readFile, readTextFile,
// stat, and readDir, all sandboxed server-side to one root directory.
const fsJS = `
globalThis.fs = {
	readFile: function(p) {
		return Promise.resolve(__b64ToBuffer(__fsReadFile(String(p))));
	},
	readTextFile: function(p) {
		return Promise.resolve(__fsReadTextFile(String(p)));
	},
	stat: function(p) {
		return Promise.resolve(JSON.parse(__fsStat(String(p))));
	},
	readDir: function(p) {
		return Promise.resolve(JSON.parse(__fsReadDir(String(p))));
	},
};
`

// sandboxResolve resolves p against root and rejects any path that would
// escape it (via ".." or an absolute override), matching the contract of
// original_source's FileSystem module (one fixed root, no traversal).
func sandboxResolve(root, p string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("fs: module disabled (no root directory configured)")
	}
	joined := filepath.Join(root, filepath.FromSlash(p))
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("fs: %w", err)
	}
	cleanJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("fs: %w", err)
	}
	if cleanJoined != cleanRoot && !strings.HasPrefix(cleanJoined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("fs: path escapes sandbox root: %s", p)
	}
	return cleanJoined, nil
}

type fsStatWire struct {
	Size  int64  `json:"size"`
	IsDir bool   `json:"isDirectory"`
	Mode  string `json:"mode"`
}

type fsDirEntryWire struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDirectory"`
}

// SetupFS registers the Go-backed sandboxed file helpers and evaluates the
// `fs` standard module. root == "" disables the module entirely (every call
// throws synchronously), matching a worker constructed without an FSRoot.
func SetupFS(rt core.JSRuntime, _ *eventloop.EventLoop, root string) error {
	if err := rt.RegisterFunc("__fsReadFile", func(p string) (string, error) {
		full, err := sandboxResolve(root, p)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return "", translateFSError(err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__fsReadTextFile", func(p string) (string, error) {
		full, err := sandboxResolve(root, p)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return "", translateFSError(err)
		}
		return string(data), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__fsStat", func(p string) (string, error) {
		full, err := sandboxResolve(root, p)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(full)
		if err != nil {
			return "", translateFSError(err)
		}
		wire := fsStatWire{Size: info.Size(), IsDir: info.IsDir(), Mode: info.Mode().String()}
		data, _ := json.Marshal(wire)
		return string(data), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__fsReadDir", func(p string) (string, error) {
		full, err := sandboxResolve(root, p)
		if err != nil {
			return "", err
		}
		entries, err := os.ReadDir(full)
		if err != nil {
			return "", translateFSError(err)
		}
		out := make([]fsDirEntryWire, 0, len(entries))
		for _, e := range entries {
			out = append(out, fsDirEntryWire{Name: e.Name(), IsDir: e.IsDir()})
		}
		data, _ := json.Marshal(out)
		return string(data), nil
	}); err != nil {
		return err
	}

	return rt.Eval(fsJS)
}

func translateFSError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fs: no such file or directory")
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("fs: permission denied")
	}
	return fmt.Errorf("fs: %w", err)
}
