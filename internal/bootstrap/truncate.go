package bootstrap

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Truncation limits, sized for the small context windows of local models.
const (
	DefaultMaxCharsPerFile = 12_000 // per-file max before truncation
	DefaultTotalMaxChars   = 16_000 // total budget across all files
	MinFileBudget          = 64     // skip files if remaining budget below this
	HeadRatio              = 0.7    // keep 70% from beginning
	TailRatio              = 0.2    // keep 20% from end
)

// TruncateConfig controls truncation behavior.
type TruncateConfig struct {
	MaxCharsPerFile int // per-file max (default 12000)
	TotalMaxChars   int // total budget (default 16000)
}

// DefaultTruncateConfig returns the default truncation config.
func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{
		MaxCharsPerFile: DefaultMaxCharsPerFile,
		TotalMaxChars:   DefaultTotalMaxChars,
	}
}

// BuildContextFiles converts workspace files into truncated context files
// ready for system prompt injection.
//
// Files are processed in order, each consuming from a shared total budget.
// Missing files are skipped. Large files are truncated with head/tail split.
// Lengths are counted in characters, not bytes.
func BuildContextFiles(files []File, cfg TruncateConfig) []ContextFile {
	if cfg.MaxCharsPerFile <= 0 {
		cfg.MaxCharsPerFile = DefaultMaxCharsPerFile
	}
	if cfg.TotalMaxChars <= 0 {
		cfg.TotalMaxChars = DefaultTotalMaxChars
	}

	remaining := cfg.TotalMaxChars
	var result []ContextFile

	for _, f := range files {
		if remaining < MinFileBudget {
			break
		}

		if f.Missing || strings.TrimSpace(f.Content) == "" {
			continue
		}

		content := trimContent(f.Content, f.Name, cfg.MaxCharsPerFile)
		content = clampToBudget(content, remaining)
		if content == "" {
			continue
		}

		result = append(result, ContextFile{
			Path:    f.Name,
			Content: content,
		})
		remaining -= utf8.RuneCountInString(content)
	}

	return result
}

// trimContent truncates file content with head/tail split if it exceeds maxChars.
func trimContent(content, fileName string, maxChars int) string {
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	headChars := int(float64(maxChars) * HeadRatio)
	tailChars := int(float64(maxChars) * TailRatio)

	head := string(runes[:headChars])
	tail := string(runes[len(runes)-tailChars:])

	marker := fmt.Sprintf(
		"\n\n[...truncated, read %s for full content...]\n...(%s: kept %d+%d chars of %d)...\n\n",
		fileName, fileName, headChars, tailChars, len(runes),
	)

	return head + marker + tail
}

// clampToBudget truncates content to fit within the given character budget.
func clampToBudget(content string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(content)
	if len(runes) <= budget {
		return content
	}
	if budget <= 3 {
		return string(runes[:budget])
	}
	return string(runes[:budget-1]) + "…"
}

// TruncateChars cuts s to max characters and appends marker when it was cut.
func TruncateChars(s string, max int, marker string) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + marker
}
