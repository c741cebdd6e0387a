package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"
)

// WriteFileTool creates or overwrites a file, creating parent directories.
// An optional ConfirmFunc gates every write.
type WriteFileTool struct {
	fsBase
	mu      sync.RWMutex
	confirm ConfirmFunc
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{fsBase: newFSBase(workspace, restrict)}
}

// SetConfirm installs the confirmation gate. nil means writes are auto-approved.
func (t *WriteFileTool) SetConfirm(fn ConfirmFunc) {
	t.mu.Lock()
	t.confirm = fn
	t.mu.Unlock()
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates the file if it does not exist. Overwrites existing content."
}
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": pathParam("Path to the file to write"),
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path := stringArg(args, "path", "")
	content := stringArg(args, "content", "")

	abs, err := t.resolve(path)
	if err != nil {
		return deniedResult(path)
	}

	t.mu.RLock()
	confirm := t.confirm
	t.mu.RUnlock()

	// Declining is an outcome, not a failure.
	if confirm != nil && !confirm(path, content) {
		return NewResult("Write cancelled by user.").WithError(ErrWriteCancelled)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("Error writing %s: %v", path, err))
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("Error writing %s: %v", path, err))
	}
	return UserResult(fmt.Sprintf("Successfully wrote %d characters to %s", utf8.RuneCountInString(content), path))
}
