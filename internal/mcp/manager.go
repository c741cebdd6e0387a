package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/tools"
)

// ServerName identifies the filesystem MCP server in logs and bridge tools.
const ServerName = "filesystem"

// ErrDisabled is returned by Connect when MCP is turned off in config.
var ErrDisabled = errors.New("mcp disabled")

// DialFunc starts an MCP client. It must return a client ready for Initialize.
type DialFunc func(ctx context.Context) (*mcpclient.Client, error)

// Manager owns the connection to the filesystem MCP server. It connects on
// first use, remembers a failed attempt, and releases the subprocess on Close.
type Manager struct {
	cfg       config.MCPConfig
	workspace string
	version   string
	dial      DialFunc

	mu         sync.Mutex
	client     *mcpclient.Client
	tools      []*BridgeTool
	connected  atomic.Bool
	attempted  bool
	connectErr error
}

// NewManager builds a manager for the server described by cfg, confined to
// workspace (appended as the final server argument).
func NewManager(cfg config.MCPConfig, workspace, version string) *Manager {
	m := &Manager{cfg: cfg, workspace: workspace, version: version}
	m.dial = m.dialStdio
	return m
}

// WithDial replaces how the client is started.
func (m *Manager) WithDial(dial DialFunc) *Manager {
	m.dial = dial
	return m
}

func (m *Manager) dialStdio(ctx context.Context) (*mcpclient.Client, error) {
	args := append(append([]string{}, m.cfg.Args...), m.workspace)
	env := os.Environ()
	for k, v := range m.cfg.Env {
		env = append(env, k+"="+v)
	}
	return mcpclient.NewStdioMCPClient(m.cfg.Command, env, args...)
}

// Connected reports whether the server is up.
func (m *Manager) Connected() bool { return m.connected.Load() }

// Connect starts the server, initializes the session and discovers tools.
// The first completed attempt is remembered and later calls return its
// outcome. An attempt cut short by the caller's context is not remembered,
// so the next call tries again.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempted {
		return m.connectErr
	}
	if !m.cfg.Enabled {
		m.attempted = true
		m.connectErr = ErrDisabled
		return m.connectErr
	}
	err := m.connectLocked(ctx)
	if err != nil && ctx.Err() != nil {
		slog.Debug("mcp: connect interrupted", "server", ServerName, "error", err)
		return fmt.Errorf("%w: %w", err, ctx.Err())
	}
	m.attempted = true
	m.connectErr = err
	if err != nil {
		slog.Warn("mcp: connect failed", "server", ServerName, "error", err)
	}
	return err
}

func (m *Manager) connectLocked(ctx context.Context) error {
	timeout := time.Duration(m.timeoutSec()) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("start %s server: %w", ServerName, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "localcoder",
		Version: m.version,
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return fmt.Errorf("initialize %s server: %w", ServerName, err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		client.Close()
		return fmt.Errorf("list %s tools: %w", ServerName, err)
	}

	m.client = client
	m.connected.Store(true)
	m.tools = make([]*BridgeTool, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		m.tools = append(m.tools, NewBridgeTool(ServerName, t, client, m.cfg.Prefix, m.timeoutSec(), &m.connected))
	}
	sort.Slice(m.tools, func(i, j int) bool { return m.tools[i].Name() < m.tools[j].Name() })

	names := make([]string, len(m.tools))
	for i, t := range m.tools {
		names[i] = t.Name()
	}
	slog.Info("mcp: connected", "server", ServerName, "tools", names)
	return nil
}

func (m *Manager) timeoutSec() int {
	if m.cfg.TimeoutSec > 0 {
		return m.cfg.TimeoutSec
	}
	return defaultCallTimeoutSec
}

// Tools connects if needed and returns the discovered bridge tools.
func (m *Manager) Tools(ctx context.Context) ([]*BridgeTool, error) {
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*BridgeTool(nil), m.tools...), nil
}

// RegisterTools adds the remote tools to reg and returns how many were added.
// Without a prefix, names already registered (the built-ins) win and the
// remote tool is skipped.
func (m *Manager) RegisterTools(ctx context.Context, reg *tools.Registry) (int, error) {
	bridged, err := m.Tools(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, bt := range bridged {
		if !reg.RegisterIfAbsent(bt) {
			slog.Warn("mcp: skipping tool (name collision with built-in)", "tool", bt.Name())
			continue
		}
		added++
	}
	return added, nil
}

// Close shuts the server down. The manager cannot reconnect afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempted = true
	if m.connectErr == nil {
		m.connectErr = errors.New("mcp manager closed")
	}
	m.connected.Store(false)
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	slog.Debug("mcp: closed", "server", ServerName)
	return err
}
