package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// ReadFileTool returns a file's text, truncated past MaxFileChars.
type ReadFileTool struct {
	fsBase
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{fsBase: newFSBase(workspace, restrict)}
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the given path. Returns the file content as a string."
}
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": pathParam("Path to the file to read"),
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path := stringArg(args, "path", "")
	abs, err := t.resolve(path)
	if err != nil {
		return deniedResult(path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult("Error: File not found: " + path)
		}
		return ErrorResult(fmt.Sprintf("Error reading %s: %v", path, err))
	}
	if !info.Mode().IsRegular() {
		return ErrorResult("Error: Not a file: " + path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error reading %s: %v", path, err))
	}

	return NewResult(truncateChars(strings.ToValidUTF8(string(data), "�"), MaxFileChars))
}

// truncateChars cuts s to max characters (runes) and notes the original length.
func truncateChars(s string, max int) string {
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s
	}
	i, count := 0, 0
	for i = range s {
		if count == max {
			break
		}
		count++
	}
	return s[:i] + fmt.Sprintf("\n\n... [truncated, file is %d chars]", n)
}
