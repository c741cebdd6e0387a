package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/mcp"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
	"github.com/nextlevelbuilder/localcoder/internal/tools"
	"github.com/nextlevelbuilder/localcoder/internal/tracing"
)

// appOptions are the per-command switches that shape an app.
type appOptions struct {
	NoMCP         bool
	NoTools       bool
	AutoApprove   bool // write_file runs without asking
	MaxIterations int  // 0: agent.maxIterations from config
	Serve         bool // MCP server mode: scrubbed output, no prompts
	OnEvent       func(agent.Event)
	Confirm       tools.ConfirmFunc // used when writes need confirmation
	Status        func(string)      // one-line progress notes, nil to drop them
}

// app holds everything a command needs to run the loop. It is built once
// per process and torn down with Close.
type app struct {
	opts      appOptions
	cfgPath   string
	workspace string

	mu       sync.RWMutex
	cfg      *config.Config
	provider *sharedProvider
	loop     *agent.Loop

	registry *tools.Registry
	custom   *tools.CustomToolLoader
	mcp      *mcp.Manager
	mcpMu    sync.Mutex
	mcpDone  bool // registration finished; an interrupted connect retries
	guard    *agent.InputGuard

	shutdownTracing tracing.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config, cfgPath string, opts appOptions) (*app, error) {
	provider, err := newProvider(cfg.Model)
	if err != nil {
		return nil, err
	}

	shutdown, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		shutdown = func(context.Context) error { return nil }
	}

	a := &app{
		opts:            opts,
		cfgPath:         cfgPath,
		workspace:       cfg.WorkspacePath(),
		cfg:             cfg,
		provider:        &sharedProvider{Provider: provider},
		guard:           agent.NewInputGuard(),
		shutdownTracing: shutdown,
	}
	a.registry = a.buildRegistry(cfg)
	a.mcp = mcp.NewManager(cfg.MCP, a.workspace, Version)
	a.loop = a.buildLoop(cfg, a.provider)
	return a, nil
}

// newProvider returns an HTTP client for model.serverURL, or a provider
// that manages its own llama-server when no URL is configured.
func newProvider(mc config.ModelConfig) (providers.Provider, error) {
	if mc.ServerURL != "" {
		return providers.NewOpenAIProvider(mc.Name, mc.APIKey, mc.ServerURL, mc.Name), nil
	}
	extra, err := shellwords.Parse(mc.ServerArgs)
	if err != nil {
		return nil, fmt.Errorf("parse model.serverArgs: %w", err)
	}
	server := providers.NewLlamaServer(providers.LlamaServerConfig{
		Binary:       mc.ServerBinary,
		ModelPath:    config.ExpandHome(mc.Path),
		ContextSize:  mc.ContextSize,
		GPULayers:    mc.GPULayers,
		Port:         mc.ServerPort,
		ExtraArgs:    extra,
		StartTimeout: time.Duration(mc.StartTimeoutSec) * time.Second,
	})
	return providers.NewManagedProvider(mc.Name, mc.Name, server), nil
}

func (a *app) buildRegistry(cfg *config.Config) *tools.Registry {
	reg := tools.NewRegistry()
	reg.SetScrubbing(a.opts.Serve || cfg.Tools.ScrubCredentials)

	if cfg.Tools.Builtin {
		restrict := cfg.Agent.RestrictToWorkspace
		writer := tools.NewWriteFileTool(a.workspace, restrict)
		if !a.opts.AutoApprove && !a.opts.Serve && cfg.Tools.ConfirmWrites {
			writer.SetConfirm(a.opts.Confirm)
		}
		reg.Register(tools.NewReadFileTool(a.workspace, restrict))
		reg.Register(tools.NewListDirectoryTool(a.workspace, restrict))
		reg.Register(tools.NewSearchFilesTool(a.workspace, restrict))
		reg.Register(writer)
	}

	a.custom = tools.NewCustomToolLoader(a.workspace)
	a.custom.Load(reg, cfg.Tools.Custom)
	return reg
}

func (a *app) buildLoop(cfg *config.Config, provider providers.Provider) *agent.Loop {
	maxIter := cfg.Agent.MaxIterations
	if a.opts.MaxIterations > 0 {
		maxIter = a.opts.MaxIterations
	}
	return agent.NewLoop(agent.LoopConfig{
		ID:              "localcoder",
		Provider:        provider,
		Model:           cfg.Model.Name,
		MaxIterations:   maxIter,
		Temperature:     cfg.Model.Temperature,
		OnEvent:         a.opts.OnEvent,
		InputGuard:      a.guard,
		InjectionAction: cfg.Agent.InjectionAction,
		ContextWindow:   cfg.Model.ContextSize,
		Pruning:         cfg.Agent.Pruning,
	})
}

// config returns the active configuration.
func (a *app) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// connectMCP registers the remote filesystem tools the first time tools are
// needed. Failure leaves the built-in tools in place. A connect cut short by
// ctx (Ctrl+C during the first turn) is retried on the next run.
func (a *app) connectMCP(ctx context.Context) {
	if a.opts.NoMCP || a.opts.NoTools {
		return
	}
	a.mcpMu.Lock()
	defer a.mcpMu.Unlock()
	if a.mcpDone {
		return
	}
	if !a.config().MCP.Enabled {
		a.mcpDone = true
		return
	}
	a.status("Connecting to MCP filesystem server...")
	n, err := a.mcp.RegisterTools(ctx, a.registry)
	switch {
	case err != nil && ctx.Err() != nil:
		a.status("MCP connection interrupted, will retry on the next request")
		return
	case errors.Is(err, mcp.ErrDisabled):
	case err != nil:
		a.status("MCP unavailable, continuing with built-in tools")
		slog.Warn("mcp: tools unavailable", "error", err)
	default:
		a.status(fmt.Sprintf("MCP connected (%d tools available)", n))
	}
	a.mcpDone = true
}

// toolNames returns the catalog offered on a run with tools, connecting
// the MCP server if needed. It is empty when tools are off.
func (a *app) toolNames(ctx context.Context, useTools bool) []string {
	if !useTools || a.opts.NoTools {
		return nil
	}
	a.connectMCP(ctx)
	return a.registry.List()
}

// run executes one loop invocation. Without tools no catalog is sent and
// any tool call the model still makes reports that no executor is connected.
func (a *app) run(ctx context.Context, transcript *agent.Transcript, maxTokens int, useTools bool) (*agent.RunResult, error) {
	req := agent.RunRequest{Transcript: transcript, MaxTokens: maxTokens}
	if useTools && !a.opts.NoTools {
		a.connectMCP(ctx)
		req.Tools = a.registry.ProviderDefs()
		req.Executor = a.registry
	}

	a.mu.RLock()
	loop, provider := a.loop, a.provider
	provider.acquire()
	a.mu.RUnlock()
	defer provider.release()
	return loop.Run(ctx, req)
}

// reload applies a changed config from the next run on. A model change
// replaces the provider; the old one (and its managed server) is closed once
// the runs still using it finish. The workspace and the built-in tools stay
// as they were at startup.
func (a *app) reload(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cfg.Model != a.cfg.Model {
		provider, err := newProvider(cfg.Model)
		if err != nil {
			slog.Warn("config reload: keeping previous model", "error", err)
			cfg.Model = a.cfg.Model
		} else {
			if err := a.provider.retire(); err != nil {
				slog.Warn("config reload: closing previous model", "error", err)
			}
			a.provider = &sharedProvider{Provider: provider}
			slog.Info("config reload: model changed", "path", cfg.Model.Path)
		}
	}
	a.custom.Reload(a.registry, cfg.Tools.Custom)
	a.cfg = cfg
	a.loop = a.buildLoop(cfg, a.provider)
}

// setModel validates path, stores it in the config file and switches the
// running app to it. It returns the absolute path.
func (a *app) setModel(path string) (string, error) {
	abs, err := config.ValidateModelPath(path)
	if err != nil {
		return "", err
	}
	next := *a.config()
	next.Model.Path = abs
	if err := config.Save(a.cfgPath, &next); err != nil {
		return "", err
	}
	a.reload(&next)
	return abs, nil
}

func (a *app) status(msg string) {
	if a.opts.Status != nil {
		a.opts.Status(msg)
	}
}

// Close stops the managed server and the MCP server and flushes traces.
func (a *app) Close() error {
	var errs []error
	if err := a.mcp.Close(); err != nil {
		errs = append(errs, err)
	}
	a.mu.Lock()
	if err := a.provider.retire(); err != nil {
		errs = append(errs, err)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sharedProvider counts the runs using a provider so that a replaced
// provider is closed only after its last run returns.
type sharedProvider struct {
	providers.Provider

	mu      sync.Mutex
	users   int
	retired bool
}

func (p *sharedProvider) acquire() {
	p.mu.Lock()
	p.users++
	p.mu.Unlock()
}

func (p *sharedProvider) release() {
	p.mu.Lock()
	p.users--
	closeNow := p.retired && p.users == 0
	p.mu.Unlock()
	if closeNow {
		if err := p.close(); err != nil {
			slog.Warn("provider: close failed", "provider", p.Name(), "error", err)
		}
	}
}

// retire marks the provider as replaced and closes it when no run holds it.
// The error is only reported when the close happens here.
func (p *sharedProvider) retire() error {
	p.mu.Lock()
	if p.retired {
		p.mu.Unlock()
		return nil
	}
	p.retired = true
	closeNow := p.users == 0
	p.mu.Unlock()
	if !closeNow {
		slog.Debug("provider: close deferred until runs finish", "provider", p.Name())
		return nil
	}
	return p.close()
}

func (p *sharedProvider) close() error {
	if c, ok := p.Provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
