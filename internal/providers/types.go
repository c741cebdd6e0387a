package providers

import (
	"bytes"
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Option keys for ChatRequest.Options.
const (
	OptMaxTokens   = "max_tokens"
	OptTemperature = "temperature"
)

// Provider is the model backend. One Chat call returns exactly one candidate
// message; implementations are synchronous and never stream.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	DefaultModel() string
	Name() string
}

// ChatRequest is the input to Provider.Chat.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition // nil = no tools offered
	Model    string
	Options  map[string]interface{}
}

// ChatResponse is the single candidate returned by the backend.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is one transcript entry in OpenAI chat format.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its argument payload.
type FunctionCall struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Arguments is a tool call's argument payload exactly as the backend sent it.
// OpenAI servers send a JSON-encoded string; some local servers send an
// inline object. Both forms are kept verbatim and always re-encoded as a JSON
// string on the wire.
type Arguments json.RawMessage

// StringArguments wraps raw argument text (possibly invalid JSON).
func StringArguments(s string) Arguments {
	b, _ := json.Marshal(s)
	return Arguments(b)
}

// ObjectArguments encodes v as an inline JSON object payload.
func ObjectArguments(v map[string]interface{}) Arguments {
	if v == nil {
		return Arguments(`{}`)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Arguments(`{}`)
	}
	return Arguments(b)
}

// IsString reports whether the payload is a JSON string.
func (a Arguments) IsString() bool {
	raw := bytes.TrimSpace(a)
	return len(raw) > 0 && raw[0] == '"'
}

// Text returns the payload as argument text: the decoded string for the
// string form, the compact object for the inline form.
func (a Arguments) Text() string {
	raw := bytes.TrimSpace(a)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func (a Arguments) MarshalJSON() ([]byte, error) {
	raw := bytes.TrimSpace(a)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []byte(`"{}"`), nil
	}
	if raw[0] == '"' {
		return raw, nil
	}
	return json.Marshal(string(raw))
}

func (a *Arguments) UnmarshalJSON(b []byte) error {
	*a = append((*a)[:0], b...)
	return nil
}

// ToolDefinition is one entry of the tool catalog sent to the backend.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema describes a callable tool.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}
