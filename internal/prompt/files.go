package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var fileRefRe = regexp.MustCompile(`@([^\s]+)`)

// File is a file injected into the user message.
type File struct {
	Path    string // as the user wrote it
	Content string
}

// ParseFileReferences reads every @path mentioned in text, relative to
// baseDir. Each path is read once, in order of first mention. Problems are
// returned as warnings; the prompt text itself is left unchanged.
func ParseFileReferences(text, baseDir string) (files []File, warnings []string) {
	seen := map[string]bool{}
	for _, m := range fileRefRe.FindAllStringSubmatch(text, -1) {
		p := m[1]
		if seen[p] {
			continue
		}
		seen[p] = true

		abs := resolve(baseDir, p)
		info, err := os.Stat(abs)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Warning: File not found: %s", p))
			continue
		}
		if !info.Mode().IsRegular() {
			warnings = append(warnings, fmt.Sprintf("Warning: Not a file: %s", p))
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Warning: Could not read %s: %v", p, err))
			continue
		}
		files = append(files, File{Path: p, Content: string(data)})
	}
	return files, warnings
}

// MergeFiles appends explicitly listed paths not already present. A file
// that cannot be read is included with an error note in place of content.
func MergeFiles(files []File, paths []string, baseDir string) []File {
	have := make(map[string]bool, len(files))
	for _, f := range files {
		have[f.Path] = true
	}
	for _, p := range paths {
		if p == "" || have[p] {
			continue
		}
		have[p] = true
		data, err := os.ReadFile(resolve(baseDir, p))
		if err != nil {
			files = append(files, File{Path: p, Content: fmt.Sprintf("[Error reading file: %v]", err)})
			continue
		}
		files = append(files, File{Path: p, Content: string(data)})
	}
	return files
}

// User renders the user message: the file blocks, if any, then the request.
func User(text string, files []File) string {
	if len(files) == 0 {
		return text
	}
	blocks := make([]string, len(files))
	for i, f := range files {
		blocks[i] = fmt.Sprintf("<file path='%s'>\n%s\n</file>", f.Path, f.Content)
	}
	return "The user has provided the following files for context:\n\n" +
		strings.Join(blocks, "\n\n") + "\n\n" + text
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
