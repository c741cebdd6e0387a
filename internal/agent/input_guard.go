// Package agent runs the tool-calling loop between the model backend and the
// tool registry.
//
// InputGuard scans user messages for prompt injection before a run starts.
// What the user typed is checked against every pattern. Files attached with
// @path arrive as <file path='...'> blocks and are data, not instructions;
// they are only checked for text addressed to the assistant, since source
// code routinely quotes chat-template tokens and tags.
//
// The reaction is set by agent.injectionAction: off, log, warn (default) or
// block.
package agent

import (
	"fmt"
	"regexp"
)

type guardScope int

const (
	scopeRequest guardScope = 1 << iota // the text the user typed
	scopeFile                           // attached file contents
	scopeAll     = scopeRequest | scopeFile
)

type guardPattern struct {
	name    string
	scope   guardScope
	pattern *regexp.Regexp
}

// InputGuard scans user input for known prompt injection patterns.
type InputGuard struct {
	patterns []guardPattern
}

// NewInputGuard creates an InputGuard with the default patterns.
func NewInputGuard() *InputGuard {
	return &InputGuard{
		patterns: defaultGuardPatterns(),
	}
}

// attachmentRe matches the file blocks prompt.User appends to a message.
var attachmentRe = regexp.MustCompile(`(?s)<file path='([^']*)'>\n(.*?)\n</file>`)

type attachment struct {
	path    string
	content string
}

// splitAttachments separates the typed request from attached file blocks.
func splitAttachments(message string) (string, []attachment) {
	locs := attachmentRe.FindAllStringSubmatchIndex(message, -1)
	if len(locs) == 0 {
		return message, nil
	}
	files := make([]attachment, 0, len(locs))
	request := make([]byte, 0, len(message))
	last := 0
	for _, loc := range locs {
		request = append(request, message[last:loc[0]]...)
		files = append(files, attachment{
			path:    message[loc[2]:loc[3]],
			content: message[loc[4]:loc[5]],
		})
		last = loc[1]
	}
	request = append(request, message[last:]...)
	return string(request), files
}

// Scan returns the names of the patterns message matches, nil when clean.
// A match inside an attached file is reported as "<pattern> (file <path>)".
func (g *InputGuard) Scan(message string) []string {
	if message == "" {
		return nil
	}
	request, files := splitAttachments(message)

	var matches []string
	for _, gp := range g.patterns {
		if gp.scope&scopeRequest != 0 && gp.pattern.MatchString(request) {
			matches = append(matches, gp.name)
		}
	}
	for _, f := range files {
		for _, gp := range g.patterns {
			if gp.scope&scopeFile != 0 && gp.pattern.MatchString(f.content) {
				matches = append(matches, fmt.Sprintf("%s (file %s)", gp.name, f.path))
			}
		}
	}
	return matches
}

func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			scope:   scopeAll,
			pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?|guidelines?)`),
		},
		{
			name:    "role_override",
			scope:   scopeAll,
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are|act as if you are|imagine you are)\s+`),
		},
		{
			name:    "system_tags",
			scope:   scopeRequest,
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			scope:   scopeRequest,
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "chat_template_tokens",
			scope:   scopeRequest,
			pattern: regexp.MustCompile(`<\|im_end\|>|<\|endoftext\|>|</?tool_call>|<\|start_header_id\|>`),
		},
		{
			name:    "null_bytes",
			scope:   scopeAll,
			pattern: regexp.MustCompile(`\x00`),
		},
		{
			name:    "delimiter_escape",
			scope:   scopeRequest,
			pattern: regexp.MustCompile(`(?i)(end of system|begin user input|</?(instructions?|rules|prompt|context)>)`),
		},
		// The inline tool-call shape the loop recovers from model replies.
		{
			name:    "write_call_smuggling",
			scope:   scopeAll,
			pattern: regexp.MustCompile(`(?s)"name"\s*:\s*"write_file"\s*,\s*"arguments"`),
		},
		{
			name:    "secret_exfiltration",
			scope:   scopeAll,
			pattern: regexp.MustCompile(`(?i)\b(send|post|upload|exfiltrate|leak|email)\b[^\n]{0,60}(\bapi[_ ]?keys?|\bsecrets?|\bcredentials|\bpasswords?|\.env\b|id_rsa|\.ssh)`),
		},
		{
			name:    "sensitive_path_write",
			scope:   scopeAll,
			pattern: regexp.MustCompile(`(?i)\b(write|overwrite|append|modify|replace)\b[^\n]{0,40}(~/\.ssh|authorized_keys|/etc/(passwd|shadow|sudoers)|\.bashrc|\.zshrc|\.git/hooks)`),
		},
	}
}

// PatternNames returns the names of all configured patterns.
func (g *InputGuard) PatternNames() []string {
	names := make([]string, len(g.patterns))
	for i, gp := range g.patterns {
		names[i] = gp.name
	}
	return names
}
