package agent

import (
	"fmt"
	"unicode/utf8"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

// Pruning defaults, sized for small local context windows.
const (
	defaultKeepLastAssistants   = 1
	defaultSoftTrimRatio        = 0.5
	defaultHardClearRatio       = 0.8
	defaultMinPrunableToolChars = 8000
	defaultSoftTrimMaxChars     = 4000
	defaultSoftTrimHeadChars    = 1500
	defaultSoftTrimTailChars    = 1500
	defaultHardClearPlaceholder = "[Old tool result content cleared]"
	charsPerTokenEstimate       = 4
)

type effectivePruningSettings struct {
	keepLastAssistants   int
	softTrimRatio        float64
	hardClearRatio       float64
	minPrunableToolChars int
	softTrimMaxChars     int
	softTrimHeadChars    int
	softTrimTailChars    int
	hardClearEnabled     bool
	hardClearPlaceholder string
}

func resolvePruningSettings(cfg config.PruningConfig) *effectivePruningSettings {
	s := &effectivePruningSettings{
		keepLastAssistants:   defaultKeepLastAssistants,
		softTrimRatio:        defaultSoftTrimRatio,
		hardClearRatio:       defaultHardClearRatio,
		minPrunableToolChars: defaultMinPrunableToolChars,
		softTrimMaxChars:     defaultSoftTrimMaxChars,
		softTrimHeadChars:    defaultSoftTrimHeadChars,
		softTrimTailChars:    defaultSoftTrimTailChars,
		hardClearEnabled:     true,
		hardClearPlaceholder: defaultHardClearPlaceholder,
	}
	if cfg.KeepLastAssistants > 0 {
		s.keepLastAssistants = cfg.KeepLastAssistants
	}
	if cfg.SoftTrimRatio > 0 && cfg.SoftTrimRatio <= 1 {
		s.softTrimRatio = cfg.SoftTrimRatio
	}
	if cfg.HardClearRatio > 0 && cfg.HardClearRatio <= 1 {
		s.hardClearRatio = cfg.HardClearRatio
	}
	if cfg.MinPrunableToolChars > 0 {
		s.minPrunableToolChars = cfg.MinPrunableToolChars
	}
	if cfg.SoftTrimMaxChars > 0 {
		s.softTrimMaxChars = cfg.SoftTrimMaxChars
	}
	if cfg.SoftTrimHeadChars > 0 {
		s.softTrimHeadChars = cfg.SoftTrimHeadChars
	}
	if cfg.SoftTrimTailChars > 0 {
		s.softTrimTailChars = cfg.SoftTrimTailChars
	}
	if cfg.HardClear != nil {
		s.hardClearEnabled = *cfg.HardClear
	}
	if cfg.Placeholder != "" {
		s.hardClearPlaceholder = cfg.Placeholder
	}
	return s
}

// pruneToolResults returns the view of msgs sent to the backend. Tool
// results older than the last keepLastAssistants assistant messages are
// soft-trimmed (head and tail kept) once the estimated size passes
// softTrimRatio of the window, then replaced by a placeholder while it stays
// above hardClearRatio. msgs is never modified; a copy is returned when
// anything changes.
func pruneToolResults(msgs []providers.Message, contextWindowTokens int, cfg config.PruningConfig) []providers.Message {
	if !cfg.Enabled || contextWindowTokens <= 0 || len(msgs) == 0 {
		return msgs
	}

	settings := resolvePruningSettings(cfg)
	charWindow := contextWindowTokens * charsPerTokenEstimate

	cutoffIndex := findAssistantCutoff(msgs, settings.keepLastAssistants)
	if cutoffIndex < 0 {
		return msgs
	}

	totalChars := 0
	for _, m := range msgs {
		totalChars += estimateMessageChars(m)
	}
	ratio := float64(totalChars) / float64(charWindow)
	if ratio < settings.softTrimRatio {
		return msgs
	}

	var prunable []int
	for i := 0; i < cutoffIndex; i++ {
		if msgs[i].Role == providers.RoleTool && msgs[i].Content != "" {
			prunable = append(prunable, i)
		}
	}
	if len(prunable) == 0 {
		return msgs
	}

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)

	for _, idx := range prunable {
		msg := out[idx]
		msgChars := estimateMessageChars(msg)
		if msgChars <= settings.softTrimMaxChars {
			continue
		}
		trimmed := fmt.Sprintf("%s\n...\n%s\n\n[Tool result trimmed: kept first %d chars and last %d chars of %d chars.]",
			takeHead(msg.Content, settings.softTrimHeadChars),
			takeTail(msg.Content, settings.softTrimTailChars),
			settings.softTrimHeadChars, settings.softTrimTailChars, msgChars)
		out[idx] = providers.Message{Role: msg.Role, Content: trimmed, ToolCallID: msg.ToolCallID}
		totalChars += utf8.RuneCountInString(trimmed) - msgChars
	}

	ratio = float64(totalChars) / float64(charWindow)
	if ratio < settings.hardClearRatio || !settings.hardClearEnabled {
		return out
	}

	prunableChars := 0
	for _, idx := range prunable {
		prunableChars += estimateMessageChars(out[idx])
	}
	if prunableChars < settings.minPrunableToolChars {
		return out
	}

	for _, idx := range prunable {
		if ratio < settings.hardClearRatio {
			break
		}
		msg := out[idx]
		before := estimateMessageChars(msg)
		out[idx] = providers.Message{Role: msg.Role, Content: settings.hardClearPlaceholder, ToolCallID: msg.ToolCallID}
		totalChars += utf8.RuneCountInString(settings.hardClearPlaceholder) - before
		ratio = float64(totalChars) / float64(charWindow)
	}
	return out
}

// findAssistantCutoff returns the index of the keepLast-th assistant message
// from the end, or -1 if there are fewer. Messages from there on are kept.
func findAssistantCutoff(msgs []providers.Message, keepLast int) int {
	if keepLast <= 0 {
		return len(msgs)
	}
	remaining := keepLast
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return -1
}

func estimateMessageChars(m providers.Message) int {
	return utf8.RuneCountInString(m.Content)
}

func takeHead(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func takeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
