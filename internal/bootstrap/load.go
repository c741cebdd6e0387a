package bootstrap

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ContextFileName is the project summary injected into system prompts and
// written by the chat /md command.
const ContextFileName = "CONTEXT.md"

// File is a workspace file considered for prompt injection.
type File struct {
	Name    string
	Content string
	Missing bool
}

// ContextFile is a file ready for system prompt injection.
type ContextFile struct {
	Path    string
	Content string
}

// LoadWorkspaceFiles reads the named files from workspace, in order. Files
// that do not exist are returned with Missing set; unreadable files are
// logged and reported missing.
func LoadWorkspaceFiles(workspace string, names ...string) []File {
	files := make([]File, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(workspace, name))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("bootstrap: failed to read context file", "file", name, "error", err)
			}
			files = append(files, File{Name: name, Missing: true})
			continue
		}
		files = append(files, File{Name: name, Content: strings.ToValidUTF8(string(data), "�")})
	}
	return files
}

// LoadContext returns the truncated CONTEXT.md of workspace, or "" when the
// file is absent or empty.
func LoadContext(workspace string, cfg TruncateConfig) string {
	ctxFiles := BuildContextFiles(LoadWorkspaceFiles(workspace, ContextFileName), cfg)
	if len(ctxFiles) == 0 {
		return ""
	}
	return ctxFiles[0].Content
}
