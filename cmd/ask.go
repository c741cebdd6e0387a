package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/bootstrap"
	"github.com/nextlevelbuilder/localcoder/internal/prompt"
)

// runFlags are shared by ask, chat and edit.
type runFlags struct {
	maxTokens     int
	noMCP         bool
	noTools       bool
	yes           bool
	maxIterations int
}

func (f *runFlags) register(cmd *cobra.Command, defaultTokens string, withNoTools bool) {
	cmd.Flags().IntVarP(&f.maxTokens, "max-tokens", "n", 0, "max tokens per model reply (default: "+defaultTokens+")")
	cmd.Flags().BoolVar(&f.noMCP, "no-mcp", false, "do not start the MCP filesystem server")
	if withNoTools {
		cmd.Flags().BoolVar(&f.noTools, "no-tools", false, "offer the model no tools at all")
	}
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "write files without asking")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "tool-calling rounds before a forced answer (default: agent.maxIterations)")
}

func (f runFlags) appOptions(r *renderer) appOptions {
	return appOptions{
		NoMCP:         f.noMCP,
		NoTools:       f.noTools,
		AutoApprove:   f.yes,
		MaxIterations: f.maxIterations,
		OnEvent:       r.onEvent,
		Confirm:       confirmWrite(r),
		Status:        r.note,
	}
}

func askCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask a coding question, referencing files with @path",
		Long: `Ask a one-off coding question. Files mentioned as @path are read and
included in the request; the model can also inspect the project with tools.

Examples:
  localcoder ask "explain @internal/agent/loop.go"
  localcoder ask --no-tools "what is a goroutine leak?"`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runOneShot(strings.Join(args, " "), f, prompt.ModeAsk))
		},
	}
	f.register(cmd, "agent.maxTokens, 512", true)
	return cmd
}

// runOneShot answers a single request and returns the process exit code.
func runOneShot(text string, f runFlags, mode prompt.Mode) int {
	cfg, cfgPath := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newRenderer()
	a, err := newApp(ctx, cfg, cfgPath, f.appOptions(r))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	defer a.Close()

	maxTokens := f.maxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.Agent.MaxTokens
		if mode == prompt.ModeEdit {
			maxTokens = cfg.Agent.EditMaxTokens
		}
	}

	files, warnings := prompt.ParseFileReferences(text, a.workspace)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}
	if mode == prompt.ModeEdit {
		r.note("Generating changes...")
	}

	system := a.systemPrompt(ctx, mode, true)
	transcript := agent.NewTranscript(agent.SystemMessage(system), agent.UserMessage(prompt.User(text, files)))
	result, err := a.run(ctx, transcript, maxTokens, true)
	if err != nil {
		r.fail(err)
		return 1
	}
	r.answer(result.Content)
	return 0
}

// systemPrompt renders the system prompt for mode with the workspace's
// CONTEXT.md and the tools the run will offer.
func (a *app) systemPrompt(ctx context.Context, mode prompt.Mode, useTools bool) string {
	return prompt.System(prompt.SystemOptions{
		Mode:      mode,
		Workspace: a.workspace,
		Tools:     a.toolNames(ctx, useTools),
		Context:   bootstrap.LoadContext(a.workspace, bootstrap.DefaultTruncateConfig()),
	})
}
