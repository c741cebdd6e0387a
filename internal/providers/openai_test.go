package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAIProvider_Chat_TextReply(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("llamacpp", "", srv.URL+"/v1/", "local")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Options:  map[string]interface{}{OptMaxTokens: 512},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected hello, got %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 4 {
		t.Errorf("expected usage total 4, got %+v", resp.Usage)
	}

	if got["stream"] != false {
		t.Errorf("expected stream=false, got %v", got["stream"])
	}
	if got["max_tokens"] != float64(512) {
		t.Errorf("expected max_tokens=512, got %v", got["max_tokens"])
	}
	if _, ok := got["tools"]; ok {
		t.Error("tools must be omitted when none are offered")
	}
	if got["model"] != "local" {
		t.Errorf("expected default model, got %v", got["model"])
	}
}

func TestOpenAIProvider_Chat_ToolCallsBothArgumentForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"a","type":"function","function":{"name":"read_file","arguments":"{\"path\":\"x.go\"}"}},
			{"id":"b","type":"function","function":{"name":"list_directory","arguments":{"path":"."}}}
		]},"finish_reason":"tool_calls"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("llamacpp", "", srv.URL, "local")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools:    []ToolDefinition{{Type: "function", Function: ToolFunctionSchema{Name: "read_file"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "" {
		t.Errorf("null content should decode to empty, got %q", resp.Content)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if !resp.ToolCalls[0].Function.Arguments.IsString() {
		t.Error("first call should keep string-form arguments")
	}
	if resp.ToolCalls[1].Function.Arguments.IsString() {
		t.Error("second call should keep object-form arguments")
	}
	if resp.ToolCalls[1].Function.Arguments.Text() != `{"path":"."}` {
		t.Errorf("unexpected object text %q", resp.ToolCalls[1].Function.Arguments.Text())
	}
}

func TestArguments_MarshalAlwaysString(t *testing.T) {
	tests := []struct {
		name string
		args Arguments
		want string
	}{
		{"object", Arguments(`{"path":"."}`), `"{\"path\":\".\"}"`},
		{"string", StringArguments(`{"path":"."}`), `"{\"path\":\".\"}"`},
		{"nil", nil, `"{}"`},
		{"null", Arguments(`null`), `"{}"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(FunctionCall{Name: "f", Arguments: tt.args})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var decoded map[string]json.RawMessage
			json.Unmarshal(b, &decoded)
			if string(decoded["arguments"]) != tt.want {
				t.Errorf("got %s, want %s", decoded["arguments"], tt.want)
			}
		})
	}
}

func TestOpenAIProvider_Chat_RetriesOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"Loading model"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ready"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("llamacpp", "", srv.URL, "").
		WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ready" {
		t.Errorf("expected ready, got %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAIProvider_Chat_NoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`context length exceeded`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("llamacpp", "", srv.URL, "").
		WithRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Status)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestOpenAIProvider_Chat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("llamacpp", "", srv.URL, "")
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	max := 1 * time.Second

	d0 := backoffWithJitter(base, max, 0)
	if d0 < 75*time.Millisecond || d0 > 125*time.Millisecond {
		t.Errorf("attempt 0: expected ~100ms, got %v", d0)
	}

	d2 := backoffWithJitter(base, max, 2)
	if d2 < 300*time.Millisecond || d2 > 500*time.Millisecond {
		t.Errorf("attempt 2: expected ~400ms, got %v", d2)
	}

	capped := backoffWithJitter(base, 200*time.Millisecond, 10)
	if capped < 150*time.Millisecond || capped > 250*time.Millisecond {
		t.Errorf("expected capped at ~200ms, got %v", capped)
	}
}

func TestRetryDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryDo(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second}, nil,
		func() (int, error) {
			calls++
			return 0, errors.New("fail")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}
