package mcp

import (
	"context"
	"errors"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/tools"
)

func newTestServer() *server.MCPServer {
	s := server.NewMCPServer("test-filesystem", "0.0.1", server.WithToolCapabilities(false))
	s.AddTool(mcpgo.NewTool("read_file",
		mcpgo.WithDescription("remote read"),
		mcpgo.WithString("path", mcpgo.Required()),
	), func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return mcpgo.NewToolResultText("remote:" + req.GetString("path", "")), nil
	})
	s.AddTool(mcpgo.NewTool("directory_tree",
		mcpgo.WithDescription("tree"),
		mcpgo.WithString("path", mcpgo.Required()),
	), func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return mcpgo.NewToolResultText("tree of " + req.GetString("path", "")), nil
	})
	return s
}

func inProcessDial(s *server.MCPServer) DialFunc {
	return func(ctx context.Context) (*mcpclient.Client, error) {
		c, err := mcpclient.NewInProcessClient(s)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func TestManager_RegisterBuiltinsWin(t *testing.T) {
	cfg := config.Default().MCP
	m := NewManager(cfg, t.TempDir(), "test").WithDial(inProcessDial(newTestServer()))
	defer m.Close()

	reg := tools.NewRegistry()
	builtin := tools.NewReadFileTool(t.TempDir(), true)
	reg.Register(builtin)

	added, err := m.RegisterTools(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Fatalf("expected 1 remote tool added, got %d", added)
	}
	if got, _ := reg.Get("read_file"); got != builtin {
		t.Error("built-in read_file must win the collision")
	}

	r := reg.Execute(context.Background(), "directory_tree", map[string]interface{}{"path": "."})
	if r.ForLLM != "tree of ." {
		t.Errorf("got %q", r.ForLLM)
	}
}

func TestManager_PrefixAvoidsCollision(t *testing.T) {
	cfg := config.Default().MCP
	cfg.Prefix = "fs"
	m := NewManager(cfg, t.TempDir(), "test").WithDial(inProcessDial(newTestServer()))
	defer m.Close()

	reg := tools.NewRegistry()
	reg.Register(tools.NewReadFileTool(t.TempDir(), true))

	added, err := m.RegisterTools(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Fatalf("expected 2 prefixed tools, got %d", added)
	}
	r := reg.Execute(context.Background(), "fs__read_file", map[string]interface{}{"path": "x"})
	if r.ForLLM != "remote:x" {
		t.Errorf("got %q", r.ForLLM)
	}
}

func TestManager_Disabled(t *testing.T) {
	cfg := config.Default().MCP
	cfg.Enabled = false
	dialed := false
	m := NewManager(cfg, t.TempDir(), "test").WithDial(func(ctx context.Context) (*mcpclient.Client, error) {
		dialed = true
		return nil, errors.New("unreachable")
	})
	if err := m.Connect(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
	if dialed {
		t.Error("disabled manager must not dial")
	}
}

func TestManager_ConnectFailureIsRemembered(t *testing.T) {
	calls := 0
	m := NewManager(config.Default().MCP, t.TempDir(), "test").WithDial(func(ctx context.Context) (*mcpclient.Client, error) {
		calls++
		return nil, errors.New("npx not found")
	})
	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := m.Tools(context.Background()); err == nil {
		t.Fatal("expected error from Tools")
	}
	if calls != 1 {
		t.Errorf("dial attempted %d times, want 1", calls)
	}
	if m.Connected() {
		t.Error("should not report connected")
	}
}

func TestManager_CancelledConnectIsRetried(t *testing.T) {
	calls := 0
	dial := inProcessDial(newTestServer())
	m := NewManager(config.Default().MCP, t.TempDir(), "test").WithDial(func(ctx context.Context) (*mcpclient.Client, error) {
		calls++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return dial(ctx)
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Connect(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.Connected() {
		t.Fatal("should not be connected after a cancelled attempt")
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("retry after cancel: %v", err)
	}
	if !m.Connected() {
		t.Error("expected connected after retry")
	}
	if calls != 2 {
		t.Errorf("dial attempted %d times, want 2", calls)
	}
	m.Close()
}

func TestManager_CloseDisconnectsBridges(t *testing.T) {
	m := NewManager(config.Default().MCP, t.TempDir(), "test").WithDial(inProcessDial(newTestServer()))
	bridged, err := m.Tools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	if m.Connected() {
		t.Error("still connected after Close")
	}
	r := bridged[0].Execute(context.Background(), map[string]interface{}{"path": "."})
	if r.ForLLM != "Error: MCP client is not connected" {
		t.Errorf("got %q", r.ForLLM)
	}
}
