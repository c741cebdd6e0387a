package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

// inlineCallRe finds fenced blocks (optionally tagged json) holding one JSON
// object. The match is non-greedy, so an object whose arguments contain a
// closing brace followed by a fence can be cut short.
var inlineCallRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// RecoverInlineToolCalls extracts tool calls a model wrote as fenced JSON
// ({"name": ..., "arguments": ...}) instead of structured calls. Ids are
// call_<n> where n is the block's position among all fenced matches, so
// skipped blocks still consume an index.
func RecoverInlineToolCalls(content string) []providers.ToolCall {
	if content == "" {
		return nil
	}
	var calls []providers.ToolCall
	for i, m := range inlineCallRe.FindAllStringSubmatch(content, -1) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(m[1]), &obj); err != nil {
			continue
		}
		rawName := bytes.TrimSpace(obj["name"])
		if len(rawName) == 0 || rawName[0] != '"' {
			continue
		}
		var name string
		if err := json.Unmarshal(rawName, &name); err != nil {
			continue
		}
		rawArgs, ok := obj["arguments"]
		if !ok {
			continue
		}
		calls = append(calls, providers.ToolCall{
			ID:   fmt.Sprintf("call_%d", i),
			Type: "function",
			Function: providers.FunctionCall{
				Name:      name,
				Arguments: inlineArguments(rawArgs),
			},
		})
	}
	return calls
}

// inlineArguments keeps a string payload verbatim and encodes anything else
// as a JSON string.
func inlineArguments(raw json.RawMessage) providers.Arguments {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		return providers.Arguments(raw)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return providers.StringArguments(string(raw))
	}
	return providers.StringArguments(buf.String())
}
