package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListDirectoryTool lists a directory, one entry per line, directories suffixed "/".
type ListDirectoryTool struct {
	fsBase
}

func NewListDirectoryTool(workspace string, restrict bool) *ListDirectoryTool {
	return &ListDirectoryTool{fsBase: newFSBase(workspace, restrict)}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }
func (t *ListDirectoryTool) Description() string {
	return "List files and directories at the given path. Returns names with a trailing / for directories."
}
func (t *ListDirectoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": pathParam("Directory path to list. Defaults to current directory."),
		},
		"required": []string{"path"},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path := stringArg(args, "path", ".")
	abs, err := t.resolve(path)
	if err != nil {
		return deniedResult(path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult("Error: Directory not found: " + path)
		}
		return ErrorResult(fmt.Sprintf("Error listing %s: %v", path, err))
	}
	if !info.IsDir() {
		return ErrorResult("Error: Not a directory: " + path)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error listing %s: %v", path, err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// The cap applies to raw entries; skipped directories still count toward it.
	var lines []string
	for i, e := range entries {
		if i >= MaxDirEntries {
			break
		}
		if IsSkippedDir(e.Name()) {
			continue
		}
		name := e.Name()
		if isDirEntry(abs, e) {
			name += "/"
		}
		lines = append(lines, name)
	}
	if len(entries) > MaxDirEntries {
		lines = append(lines, fmt.Sprintf("... and %d more entries", len(entries)-MaxDirEntries))
	}
	if len(lines) == 0 {
		return NewResult("(empty directory)")
	}
	return NewResult(strings.Join(lines, "\n"))
}

// isDirEntry follows symlinks so linked directories are marked too.
func isDirEntry(parent string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, e.Name()))
	return err == nil && info.IsDir()
}
