package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildContextFiles(t *testing.T) {
	files := []File{
		{Name: "missing.md", Missing: true},
		{Name: "blank.md", Content: "   \n"},
		{Name: "CONTEXT.md", Content: "# Project\nA tool."},
	}
	got := BuildContextFiles(files, DefaultTruncateConfig())
	if len(got) != 1 || got[0].Path != "CONTEXT.md" || got[0].Content != "# Project\nA tool." {
		t.Fatalf("unexpected context files %+v", got)
	}
}

func TestBuildContextFiles_TruncatesHeadAndTail(t *testing.T) {
	content := strings.Repeat("h", 700) + strings.Repeat("m", 200) + strings.Repeat("t", 100)
	got := BuildContextFiles([]File{{Name: "CONTEXT.md", Content: content}}, TruncateConfig{MaxCharsPerFile: 100, TotalMaxChars: 10_000})
	if len(got) != 1 {
		t.Fatal("expected one file")
	}
	c := got[0].Content
	if !strings.HasPrefix(c, strings.Repeat("h", 70)+"\n\n[...truncated") {
		t.Errorf("head not kept: %q", c[:80])
	}
	if !strings.HasSuffix(c, strings.Repeat("t", 20)) {
		t.Error("tail not kept")
	}
	if !strings.Contains(c, "kept 70+20 chars of 1000") {
		t.Errorf("marker missing: %q", c)
	}
}

func TestBuildContextFiles_SharedBudget(t *testing.T) {
	files := []File{
		{Name: "a.md", Content: strings.Repeat("a", 100)},
		{Name: "b.md", Content: strings.Repeat("é", 100)},
		{Name: "c.md", Content: "c"},
	}
	got := BuildContextFiles(files, TruncateConfig{MaxCharsPerFile: 1000, TotalMaxChars: 150})
	if len(got) != 1 {
		t.Fatalf("expected budget to stop after the first clamp, got %d files", len(got))
	}
	got = BuildContextFiles(files, TruncateConfig{MaxCharsPerFile: 1000, TotalMaxChars: 180})
	if len(got) != 2 {
		t.Fatalf("got %d files", len(got))
	}
	if !strings.HasSuffix(got[1].Content, "…") || len([]rune(got[1].Content)) != 80 {
		t.Errorf("second file should be clamped to the remaining 80 chars, got %d", len([]rune(got[1].Content)))
	}
}

func TestTruncateChars(t *testing.T) {
	if got := TruncateChars("hello", 10, "!"); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := TruncateChars("héllo", 2, "…"); got != "hé…" {
		t.Errorf("got %q", got)
	}
}

func TestLoadContext(t *testing.T) {
	dir := t.TempDir()
	if got := LoadContext(dir, DefaultTruncateConfig()); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	if err := os.WriteFile(filepath.Join(dir, ContextFileName), []byte("# Demo"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := LoadContext(dir, DefaultTruncateConfig()); got != "# Demo" {
		t.Errorf("got %q", got)
	}
}

func TestGatherProjectContext(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(name, content string) {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("README.md", "# Demo\nA demo project.")
	mustWrite("main.go", strings.Repeat("x", MaxKeyFileChars+10))
	mustWrite("internal/app.go", "package internal")
	mustWrite(".git/HEAD", "ref")
	mustWrite("node_modules/x.js", "")

	got, err := GatherProjectContext(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "## Directory listing\n  README.md\n  internal/\n  main.go") {
		t.Errorf("unexpected listing:\n%s", got)
	}
	if strings.Contains(got, ".git") || strings.Contains(got, "node_modules") {
		t.Error("skipped directories should not be listed")
	}
	if !strings.Contains(got, "## Contents of README.md\n```\n# Demo\nA demo project.\n```") {
		t.Error("README.md section missing")
	}
	if !strings.Contains(got, "\n... [truncated]\n```") {
		t.Error("main.go should be truncated")
	}
	if strings.Contains(got, "Contents of go.mod") {
		t.Error("absent key files should be skipped")
	}
}

func TestGatherProjectContext_MissingDir(t *testing.T) {
	if _, err := GatherProjectContext(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error")
	}
}

func TestWriteContextFile(t *testing.T) {
	dir := t.TempDir()
	p, err := WriteContextFile(dir, "# Ctx")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "# Ctx" {
		t.Errorf("got %q", data)
	}
}
