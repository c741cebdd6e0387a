package agent

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

func toolMsg(id, content string) providers.Message {
	return providers.Message{Role: providers.RoleTool, Content: content, ToolCallID: id}
}

func TestPruneToolResults_Disabled(t *testing.T) {
	msgs := []providers.Message{UserMessage("q"), AssistantMessage(""), toolMsg("a", strings.Repeat("x", 50000)), AssistantMessage("")}
	got := pruneToolResults(msgs, 1000, config.PruningConfig{})
	if got[2].Content != msgs[2].Content {
		t.Error("pruning must be a no-op when disabled")
	}
}

func TestPruneToolResults_BelowSoftRatio(t *testing.T) {
	msgs := []providers.Message{UserMessage("q"), AssistantMessage(""), toolMsg("a", "small"), AssistantMessage("")}
	got := pruneToolResults(msgs, 8192, config.PruningConfig{Enabled: true})
	if got[2].Content != "small" {
		t.Errorf("got %q", got[2].Content)
	}
}

func TestPruneToolResults_SoftTrim(t *testing.T) {
	big := strings.Repeat("a", 2000) + strings.Repeat("m", 6000) + strings.Repeat("z", 2000)
	msgs := []providers.Message{
		UserMessage("q"),
		AssistantMessage(""),
		toolMsg("a", big),
		AssistantMessage(""),
		toolMsg("b", "recent"),
	}
	// 10k chars against a 16k-char window: above soft, below hard.
	got := pruneToolResults(msgs, 4000, config.PruningConfig{Enabled: true})

	if msgs[2].Content != big {
		t.Fatal("input slice must not be modified")
	}
	trimmed := got[2].Content
	if !strings.HasPrefix(trimmed, strings.Repeat("a", 1500)) || !strings.Contains(trimmed, strings.Repeat("z", 1500)) {
		t.Error("head and tail should be kept")
	}
	if strings.Count(trimmed, "m") > 10 {
		t.Error("middle should be cut")
	}
	if !strings.Contains(trimmed, "[Tool result trimmed") {
		t.Error("trim note missing")
	}
	if got[2].ToolCallID != "a" {
		t.Error("correlation id lost")
	}
	if got[4].Content != "recent" {
		t.Error("tool results after the last assistant message are kept")
	}
}

func TestPruneToolResults_HardClear(t *testing.T) {
	var msgs []providers.Message
	msgs = append(msgs, UserMessage("q"))
	for i := 0; i < 6; i++ {
		msgs = append(msgs, AssistantMessage(""), toolMsg("t", strings.Repeat("x", 3500)))
	}
	msgs = append(msgs, AssistantMessage(""))

	// 21k chars against a 4k-char window.
	got := pruneToolResults(msgs, 1000, config.PruningConfig{Enabled: true, MinPrunableToolChars: 1000})
	cleared := 0
	for _, m := range got {
		if m.Role == providers.RoleTool && m.Content == defaultHardClearPlaceholder {
			cleared++
		}
	}
	if cleared == 0 {
		t.Error("expected some tool results to be cleared")
	}

	off := false
	kept := pruneToolResults(msgs, 1000, config.PruningConfig{Enabled: true, MinPrunableToolChars: 1000, HardClear: &off})
	for _, m := range kept {
		if m.Content == defaultHardClearPlaceholder {
			t.Fatal("hard clear disabled but placeholder used")
		}
	}
}

func TestFindAssistantCutoff(t *testing.T) {
	msgs := []providers.Message{UserMessage("q"), AssistantMessage("a"), toolMsg("t", "r"), AssistantMessage("b")}
	tests := []struct {
		keep int
		want int
	}{
		{1, 3},
		{2, 1},
		{3, -1},
		{0, 4},
	}
	for _, tt := range tests {
		if got := findAssistantCutoff(msgs, tt.keep); got != tt.want {
			t.Errorf("keep=%d: got %d, want %d", tt.keep, got, tt.want)
		}
	}
}
