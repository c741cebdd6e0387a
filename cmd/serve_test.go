package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/sessions"
)

// newTestHandlers wires serve handlers to a fake OpenAI-compatible server
// that answers every request with reply.
func newTestHandlers(t *testing.T, reply string) (*serveHandlers, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, _ := json.Marshal(map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{
				"message":       map[string]interface{}{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Model.ServerURL = srv.URL + "/v1"
	cfg.Model.Path = filepath.Join(dir, "model.gguf")
	cfg.Agent.Workspace = dir
	cfg.MCP.Enabled = false
	cfg.Sessions.Storage = filepath.Join(dir, "sessions.db")
	cfgPath := filepath.Join(dir, "config.json")

	a, err := newApp(context.Background(), cfg, cfgPath, appOptions{Serve: true, AutoApprove: true})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	store, err := sessions.Open(cfg.Sessions.Storage, cfg.Sessions.MaxMessages)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &serveHandlers{app: a, store: store}, &calls
}

func callRequest(args map[string]interface{}) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcpgo.TextContent:
		return c.Text
	case *mcpgo.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func TestServe_Ask(t *testing.T) {
	h, calls := newTestHandlers(t, "It prints hello.")
	res, err := h.ask(context.Background(), callRequest(map[string]interface{}{
		"prompt":             "What does main.go do?",
		"disable_filesystem": true,
	}))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if got := resultText(t, res); got != "It prints hello." {
		t.Errorf("reply = %q", got)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("expected 1 model call, got %d", *calls)
	}
}

func TestServe_AskMissingPrompt(t *testing.T) {
	h, _ := newTestHandlers(t, "unused")
	res, err := h.ask(context.Background(), callRequest(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !res.IsError {
		t.Error("missing prompt must be a tool error")
	}
}

func TestServe_ChatSessions(t *testing.T) {
	h, _ := newTestHandlers(t, "Hi there.")
	ctx := context.Background()

	var first chatReply
	res, _ := h.chat(ctx, callRequest(map[string]interface{}{"message": "hello"}))
	if err := json.Unmarshal([]byte(resultText(t, res)), &first); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if first.SessionID == "" || first.Turn != 1 || first.Reply != "Hi there." {
		t.Fatalf("unexpected first reply %+v", first)
	}

	var second chatReply
	res, _ = h.chat(ctx, callRequest(map[string]interface{}{"message": "again", "session_id": first.SessionID}))
	if err := json.Unmarshal([]byte(resultText(t, res)), &second); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if second.SessionID != first.SessionID || second.Turn != 2 {
		t.Errorf("expected same session at turn 2, got %+v", second)
	}

	var fresh chatReply
	res, _ = h.chat(ctx, callRequest(map[string]interface{}{"message": "hi", "session_id": "unknown-id"}))
	if err := json.Unmarshal([]byte(resultText(t, res)), &fresh); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if fresh.SessionID == "unknown-id" || fresh.SessionID == first.SessionID || fresh.Turn != 1 {
		t.Errorf("unknown session id must start a new session, got %+v", fresh)
	}
}

func TestServe_GetModel(t *testing.T) {
	h, _ := newTestHandlers(t, "unused")
	res, _ := h.getModel(context.Background(), callRequest(nil))

	var st config.ModelStatus
	if err := json.Unmarshal([]byte(resultText(t, res)), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.NCtx != 8192 || st.GPULayers != -1 {
		t.Errorf("unexpected status %+v", st)
	}
	if st.FileExists {
		t.Error("model file does not exist yet")
	}
}

func TestServe_SetModel(t *testing.T) {
	h, _ := newTestHandlers(t, "unused")
	ctx := context.Background()
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	gguf := filepath.Join(dir, "tiny.gguf")
	if err := os.WriteFile(gguf, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		success bool
		errPart string
	}{
		{"missing", filepath.Join(dir, "nope.gguf"), false, "File not found"},
		{"wrong extension", txt, false, ".gguf"},
		{"valid", gguf, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := h.setModel(ctx, callRequest(map[string]interface{}{"model_path": tt.path}))
			var reply setModelReply
			if err := json.Unmarshal([]byte(resultText(t, res)), &reply); err != nil {
				t.Fatalf("decode reply: %v", err)
			}
			if reply.Success != tt.success {
				t.Fatalf("success = %v, reply %+v", reply.Success, reply)
			}
			if !strings.Contains(reply.Error, tt.errPart) {
				t.Errorf("error %q does not contain %q", reply.Error, tt.errPart)
			}
		})
	}

	if got := h.app.config().Model.Path; got != gguf {
		t.Errorf("active model = %q, want %q", got, gguf)
	}
	saved, err := config.Load(h.app.cfgPath)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if saved.Model.Path != gguf {
		t.Errorf("saved model = %q, want %q", saved.Model.Path, gguf)
	}
}

func TestReplyOrPlaceholder(t *testing.T) {
	if got := replyOrPlaceholder(""); got != noResponse {
		t.Errorf("got %q", got)
	}
	if got := replyOrPlaceholder("ok"); got != "ok" {
		t.Errorf("got %q", got)
	}
}
