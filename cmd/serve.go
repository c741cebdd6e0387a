package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/prompt"
	"github.com/nextlevelbuilder/localcoder/internal/providers"
	"github.com/nextlevelbuilder/localcoder/internal/sessions"
)

// serverName is the MCP server name clients see.
const serverName = "local-coder"

const noResponse = "(no response)"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as an MCP server over stdio (ask, chat, edit, get_model, set_model)",
		Long: `Expose localcoder to another agent as MCP tools over stdin/stdout.
Writes made by the edit tool are approved automatically and tool output is
scrubbed of credentials. Logs go to stderr.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runServe())
		},
	}
}

func runServe() int {
	cfg, cfgPath := loadConfig()
	ctx := context.Background()

	a, err := newApp(ctx, cfg, cfgPath, appOptions{Serve: true, AutoApprove: true, OnEvent: logEvent})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	defer a.Close()

	store, err := sessions.Open(config.ExpandHome(cfg.Sessions.Storage), cfg.Sessions.MaxMessages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening sessions: %s\n", err)
		return 1
	}
	defer store.Close()

	if watcher, err := config.NewWatcher(cfgPath, cfg); err == nil {
		watcher.OnChange(a.reload)
		if err := watcher.Start(); err != nil {
			slog.Debug("config: watch failed", "error", err)
		}
		defer watcher.Stop()
	}

	h := &serveHandlers{app: a, store: store}
	slog.Info("serve: listening on stdio", "server", serverName, "version", Version)
	if err := server.ServeStdio(h.newServer()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	return 0
}

// logEvent reports loop progress to the debug log; stdout belongs to the
// protocol.
func logEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventToolCall:
		slog.Debug("serve: tool call", "run_id", ev.RunID, "tool", ev.ToolName, "args", formatArgs(ev.Args))
	case agent.EventToolResult:
		slog.Debug("serve: tool result", "run_id", ev.RunID, "tool", ev.ToolName, "is_error", ev.IsError)
	case agent.EventForced:
		slog.Debug("serve: forcing conclusion", "run_id", ev.RunID)
	}
}

// serveHandlers implements the MCP tools on top of one app.
type serveHandlers struct {
	app   *app
	store *sessions.Store
}

func (h *serveHandlers) newServer() *server.MCPServer {
	s := server.NewMCPServer(serverName, Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcpgo.NewTool("ask",
		mcpgo.WithDescription("Send a one-off coding question to the local model and get an answer. "+
			"Reference files with @path in the prompt or list them in files."),
		mcpgo.WithString("prompt", mcpgo.Required(), mcpgo.Description("The question or task; @path mentions inject files")),
		mcpgo.WithArray("files", mcpgo.WithStringItems(), mcpgo.Description("File paths to include as context")),
		mcpgo.WithNumber("max_tokens", mcpgo.DefaultNumber(512), mcpgo.Description("Maximum tokens to generate")),
		mcpgo.WithBoolean("disable_filesystem", mcpgo.DefaultBool(false), mcpgo.Description("Answer without filesystem tools")),
	), h.ask)

	s.AddTool(mcpgo.NewTool("chat",
		mcpgo.WithDescription("Send a message in a multi-turn chat session. Returns JSON {reply, session_id, turn}; "+
			"pass session_id back to continue the conversation."),
		mcpgo.WithString("message", mcpgo.Required(), mcpgo.Description("The user's message")),
		mcpgo.WithString("session_id", mcpgo.Description("Omit to start a new session")),
		mcpgo.WithNumber("max_tokens", mcpgo.DefaultNumber(512), mcpgo.Description("Maximum tokens to generate")),
		mcpgo.WithBoolean("disable_filesystem", mcpgo.DefaultBool(false), mcpgo.Description("Answer without filesystem tools")),
	), h.chat)

	s.AddTool(mcpgo.NewTool("edit",
		mcpgo.WithDescription("Request code changes. The local model reads files with tools, writes the changes "+
			"and returns a summary. Filesystem tools are always enabled."),
		mcpgo.WithString("prompt", mcpgo.Required(), mcpgo.Description("The change to make; @path mentions inject files")),
		mcpgo.WithArray("files", mcpgo.WithStringItems(), mcpgo.Description("File paths to pre-load as context")),
		mcpgo.WithNumber("max_tokens", mcpgo.DefaultNumber(2048), mcpgo.Description("Maximum tokens to generate")),
	), h.edit)

	s.AddTool(mcpgo.NewTool("get_model",
		mcpgo.WithDescription("Return the model configuration: path, context size, GPU layers and file status."),
	), h.getModel)

	s.AddTool(mcpgo.NewTool("set_model",
		mcpgo.WithDescription("Switch the GGUF model used from the next call on."),
		mcpgo.WithString("model_path", mcpgo.Required(), mcpgo.Description("Path to a .gguf model file")),
	), h.setModel)

	return s
}

func (h *serveHandlers) ask(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text, err := req.RequireString("prompt")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	useTools := !req.GetBool("disable_filesystem", false)
	reply, err := h.oneShot(ctx, prompt.ModeAsk, text, req.GetStringSlice("files", nil), req.GetInt("max_tokens", 512), useTools)
	if err != nil {
		return mcpgo.NewToolResultError(formatAgentError(err)), nil
	}
	return mcpgo.NewToolResultText(reply), nil
}

func (h *serveHandlers) edit(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text, err := req.RequireString("prompt")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	reply, err := h.oneShot(ctx, prompt.ModeEdit, text, req.GetStringSlice("files", nil), req.GetInt("max_tokens", 2048), true)
	if err != nil {
		return mcpgo.NewToolResultError(formatAgentError(err)), nil
	}
	return mcpgo.NewToolResultText(reply), nil
}

// oneShot runs a fresh transcript for ask and edit.
func (h *serveHandlers) oneShot(ctx context.Context, mode prompt.Mode, text string, paths []string, maxTokens int, useTools bool) (string, error) {
	ws := h.app.workspace
	files, warnings := prompt.ParseFileReferences(text, ws)
	for _, w := range warnings {
		slog.Debug("serve: file reference skipped", "warning", w)
	}
	files = prompt.MergeFiles(files, paths, ws)

	system := h.app.systemPrompt(ctx, mode, useTools)
	transcript := agent.NewTranscript(agent.SystemMessage(system), agent.UserMessage(prompt.User(text, files)))
	result, err := h.app.run(ctx, transcript, maxTokens, useTools)
	if err != nil {
		return "", err
	}
	return replyOrPlaceholder(result.Content), nil
}

type chatReply struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`
}

func (h *serveHandlers) chat(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	useTools := !req.GetBool("disable_filesystem", false)

	id := req.GetString("session_id", "")
	var history []providers.Message
	known := false
	if id != "" {
		if known, err = h.store.Exists(ctx, id); err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
	}
	if known {
		sess, err := h.store.Load(ctx, id)
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		history = sess.Messages
	} else {
		id = sessions.NewID()
	}

	ws := h.app.workspace
	files, _ := prompt.ParseFileReferences(message, ws)
	system := h.app.systemPrompt(ctx, prompt.ModeAsk, useTools)
	transcript := agent.NewHistory(nil, history...).Transcript(system, prompt.User(message, files))

	result, err := h.app.run(ctx, transcript, req.GetInt("max_tokens", 512), useTools)
	if err != nil {
		return mcpgo.NewToolResultError(formatAgentError(err)), nil
	}
	reply := replyOrPlaceholder(result.Content)

	turn, err := h.store.AppendTurn(ctx, id, message, reply)
	if err != nil {
		slog.Warn("sessions: save failed", "session", id, "error", err)
	}
	return jsonResult(chatReply{Reply: reply, SessionID: id, Turn: turn})
}

func (h *serveHandlers) getModel(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return jsonResult(h.app.config().Model.Status())
}

type setModelReply struct {
	Success   bool   `json:"success"`
	ModelPath string `json:"model_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *serveHandlers) setModel(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	path, err := req.RequireString("model_path")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	abs, err := h.app.setModel(path)
	switch {
	case errors.Is(err, config.ErrModelNotFound):
		return jsonResult(setModelReply{Error: "File not found: " + path})
	case errors.Is(err, config.ErrNotGGUF):
		return jsonResult(setModelReply{Error: "Path must point to a .gguf file"})
	case err != nil:
		return jsonResult(setModelReply{Error: "Failed to save config: " + err.Error()})
	}
	return jsonResult(setModelReply{Success: true, ModelPath: abs})
}

func replyOrPlaceholder(s string) string {
	if s == "" {
		return noResponse
	}
	return s
}

func jsonResult(v interface{}) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(data)), nil
}
