package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output limits for the filesystem tools.
const (
	MaxFileChars     = 100_000
	MaxDirEntries    = 200
	MaxSearchResults = 50
)

// ErrOutsideWorkspace is returned by path resolution when restriction is on.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// skipDirs are never descended into by search_files nor shown by list_directory.
var skipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	"venv":         true,
	".venv":        true,
	"llm":          true,
}

// IsSkippedDir reports whether a directory name is excluded from listings and walks.
func IsSkippedDir(name string) bool {
	return skipDirs[name]
}

// fsBase holds the workspace root shared by the filesystem tools.
type fsBase struct {
	workspace string
	restrict  bool
}

func newFSBase(workspace string, restrict bool) fsBase {
	if workspace == "" {
		workspace, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}
	return fsBase{workspace: workspace, restrict: restrict}
}

// resolve maps a model-supplied path to an absolute path. Relative paths are
// taken from the workspace. With restriction on, paths that escape the
// workspace (directly or through a symlink) are refused.
func (b fsBase) resolve(p string) (string, error) {
	if p == "" {
		p = "."
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}

	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.workspace, p)
	}
	abs = filepath.Clean(abs)

	if !b.restrict {
		return abs, nil
	}
	if !withinDir(b.workspace, abs) {
		return "", ErrOutsideWorkspace
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		root := b.workspace
		if r, err := filepath.EvalSymlinks(root); err == nil {
			root = r
		}
		if !withinDir(root, real) {
			return "", ErrOutsideWorkspace
		}
	}
	return abs, nil
}

// deniedResult is the tool output for a path refused by resolve.
func deniedResult(p string) *Result {
	return ErrorResult(fmt.Sprintf("Error: Access denied: %s is outside the workspace", p)).
		WithError(ErrOutsideWorkspace)
}

func withinDir(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// stringArg reads a string argument, accepting non-string scalars the model
// sometimes sends (numbers, booleans).
func stringArg(args map[string]interface{}, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func pathParam(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
}
