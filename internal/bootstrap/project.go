package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/localcoder/internal/tools"
)

// KeyFiles are read verbatim into the project summary, when present.
var KeyFiles = []string{
	"README.md", "go.mod", "Makefile", "requirements.txt", "package.json",
	"setup.py", "pyproject.toml", "Cargo.toml", "Dockerfile",
	"docker-compose.yml", "main.go", "main.py", "config.py", "CLAUDE.md",
}

// MaxKeyFileChars caps each key file in the project summary.
const MaxKeyFileChars = 3000

// GatherProjectContext collects a top-level directory listing and the
// contents of KeyFiles found in dir, as markdown sections. It reads the disk
// directly and needs no model.
func GatherProjectContext(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var listing []string
	for _, e := range entries {
		if tools.IsSkippedDir(e.Name()) {
			continue
		}
		suffix := ""
		if isDir(filepath.Join(dir, e.Name())) {
			suffix = "/"
		}
		listing = append(listing, "  "+e.Name()+suffix)
	}

	parts := []string{"## Directory listing\n" + strings.Join(listing, "\n")}
	for _, name := range KeyFiles {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		content := TruncateChars(strings.ToValidUTF8(string(data), "�"), MaxKeyFileChars, "\n... [truncated]")
		parts = append(parts, fmt.Sprintf("## Contents of %s\n```\n%s\n```", name, content))
	}
	return strings.Join(parts, "\n\n"), nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// WriteContextFile writes CONTEXT.md into dir and returns its path.
func WriteContextFile(dir, content string) (string, error) {
	p := filepath.Join(dir, ContextFileName)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ContextFileName, err)
	}
	return p, nil
}
