package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SearchFilesTool greps a directory tree with a case-insensitive regex.
type SearchFilesTool struct {
	fsBase
}

func NewSearchFilesTool(workspace string, restrict bool) *SearchFilesTool {
	return &SearchFilesTool{fsBase: newFSBase(workspace, restrict)}
}

func (t *SearchFilesTool) Name() string { return "search_files" }
func (t *SearchFilesTool) Description() string {
	return "Search for a text pattern in files under a directory. Returns matching lines with file paths and line numbers."
}
func (t *SearchFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Text or regex pattern to search for",
			},
			"path": pathParam("Directory to search in. Defaults to current directory."),
			"file_glob": map[string]interface{}{
				"type":        "string",
				"description": "Optional glob to filter files, e.g. '*.py'",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern := stringArg(args, "pattern", "")
	path := stringArg(args, "path", ".")
	glob := stringArg(args, "file_glob", "")

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: Invalid regex pattern: %v", err))
	}
	root, err := t.resolve(path)
	if err != nil {
		return deniedResult(path)
	}

	var results []string
	capped := false
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && IsSkippedDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if glob != "" {
			if ok, _ := filepath.Match(glob, d.Name()); !ok {
				return nil
			}
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		display := filepath.Join(path, rel)
		if searchFile(p, display, re, &results) {
			capped = true
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return ErrorResult(fmt.Sprintf("Error: search cancelled: %v", walkErr)).WithError(walkErr)
	}

	if capped {
		return NewResult(strings.Join(results, "\n") + fmt.Sprintf("\n... [capped at %d results]", MaxSearchResults))
	}
	if len(results) == 0 {
		return NewResult("No matches found.")
	}
	return NewResult(strings.Join(results, "\n"))
}

// searchFile appends matching lines of one file to results and reports
// whether the result cap was reached. Unreadable and binary files are skipped.
func searchFile(path, display string, re *regexp.Regexp, results *[]string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.ToValidUTF8(sc.Text(), "�")
		if !re.MatchString(text) {
			continue
		}
		*results = append(*results, fmt.Sprintf("%s:%d: %s", display, line, strings.TrimRight(text, " \t\r\n")))
		if len(*results) >= MaxSearchResults {
			return true
		}
	}
	return false
}
