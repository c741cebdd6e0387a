package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
)

func TestFormatArgs(t *testing.T) {
	long := strings.Repeat("a", 80)
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"empty", nil, ""},
		{"sorted", map[string]interface{}{"pattern": "*.go", "path": "src"}, `path="src", pattern="*.go"`},
		{"scalars", map[string]interface{}{"n": float64(3), "ok": true, "x": nil}, `n="3", ok="true", x="null"`},
		{"json", map[string]interface{}{"list": []interface{}{"a", "b"}}, `list="[\"a\",\"b\"]"`},
		{"truncated", map[string]interface{}{"content": long}, `content="` + strings.Repeat("a", 57) + `..."`},
		{"exactly 60", map[string]interface{}{"content": long[:60]}, `content="` + long[:60] + `"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatArgs(tt.args); got != tt.want {
				t.Errorf("formatArgs = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRenderer_PlainOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	r := &renderer{out: &out, errOut: &errOut}

	r.onEvent(agent.Event{Type: agent.EventLLMCall, Iteration: 1})
	r.onEvent(agent.Event{Type: agent.EventToolCall, ToolName: "read_file", Args: map[string]interface{}{"path": "main.go"}})
	r.onEvent(agent.Event{Type: agent.EventToolResult, ToolName: "read_file", Preview: "package main\nfunc", Truncated: true})
	r.onEvent(agent.Event{Type: agent.EventInlineRecovered, Count: 2})
	r.onEvent(agent.Event{Type: agent.EventForced})
	r.onEvent(agent.Event{Type: agent.EventRunCompleted})
	r.answer("# Title")

	progress := errOut.String()
	for _, want := range []string{
		`read_file(path="main.go")`,
		"result: package main func...",
		"parsed 2 inline tool call(s)",
		"Reached tool call limit",
	} {
		if !strings.Contains(progress, want) {
			t.Errorf("stderr missing %q:\n%s", want, progress)
		}
	}
	if got := out.String(); !strings.Contains(got, "# Title") {
		t.Errorf("answer must be printed verbatim without a terminal, got %q", got)
	}
}
