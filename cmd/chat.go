package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/bootstrap"
	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/prompt"
	"github.com/nextlevelbuilder/localcoder/internal/sessions"
)

// contextFileTokens is the minimum reply budget for /md.
const contextFileTokens = 2048

const chatHelp = `Commands:
  /exit     quit (also "exit", "quit", Ctrl+D)
  /new      start a new session
  /clear    clear the history of this session
  /model    show or switch the model
  /md       generate CONTEXT.md for this project
  /tokens   estimate the tokens used by the history
  /help     show this help
Ctrl+C cancels the running answer.`

func chatCmd() *cobra.Command {
	var (
		f          runFlags
		sessionKey string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat with the model. Only your messages and its final answers are kept
as history (the last agent.historyTurns turns), stored in the sessions
database so a session can be resumed with --session.

Examples:
  localcoder chat
  localcoder chat -s 3f2a      # resume a session by id prefix`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runChat(f, sessionKey))
		},
	}
	f.register(cmd, "agent.maxTokens, 512", true)
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session id or unique prefix to resume (default: new session)")
	return cmd
}

// chatSession is the state of one REPL.
type chatSession struct {
	app     *app
	r       *renderer
	store   *sessions.Store
	id      string
	history *agent.History
	counter agent.TokenCounter
	flags   runFlags
	in      *bufio.Scanner
}

func runChat(f runFlags, sessionKey string) int {
	cfg, cfgPath := loadConfig()
	ctx := context.Background()

	r := newRenderer()
	a, err := newApp(ctx, cfg, cfgPath, f.appOptions(r))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	defer a.Close()

	store, err := sessions.Open(config.ExpandHome(cfg.Sessions.Storage), 2*historyTurns(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening sessions: %s\n", err)
		return 1
	}
	defer store.Close()

	cs := &chatSession{
		app:     a,
		r:       r,
		store:   store,
		counter: agent.NewTiktokenCounter(),
		flags:   f,
		in:      bufio.NewScanner(os.Stdin),
	}
	cs.in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if err := cs.open(ctx, sessionKey); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}

	watcher, err := config.NewWatcher(cfgPath, cfg)
	if err == nil {
		watcher.OnChange(a.reload)
		if err := watcher.Start(); err != nil {
			slog.Debug("config: watch failed", "error", err)
		}
		defer watcher.Stop()
	}

	r.title(fmt.Sprintf("\nlocalcoder chat (model: %s)", filepath.Base(cfg.Model.Path)))
	fmt.Fprintf(os.Stderr, "Session: %s\n", cs.id)
	if n := cs.history.Turns(); n > 0 {
		fmt.Fprintf(os.Stderr, "Resumed with %d previous turn(s)\n", n)
	}
	fmt.Fprintln(os.Stderr, "Type /help for commands, /exit to quit.")

	cs.loop(ctx)
	return 0
}

func historyTurns(cfg *config.Config) int {
	if cfg.Agent.HistoryTurns > 0 {
		return cfg.Agent.HistoryTurns
	}
	return sessions.DefaultMaxMessages / 2
}

// historyPolicy keeps the last historyTurns turns and, when a token budget
// is set, drops older turns until the history fits it.
func historyPolicy(cfg *config.Config) agent.TrimPolicy {
	keep := agent.KeepLastTurns(historyTurns(cfg))
	if cfg.Agent.HistoryTokenBudget <= 0 {
		return keep
	}
	return agent.Chain(keep, agent.TokenBudget(cfg.Agent.HistoryTokenBudget, agent.NewTiktokenCounter()))
}

// open resumes the session matching key, or starts a new one.
func (cs *chatSession) open(ctx context.Context, key string) error {
	policy := historyPolicy(cs.app.config())
	if key == "" {
		cs.id = sessions.NewID()
		cs.history = agent.NewHistory(policy)
		return nil
	}

	id, err := cs.store.ResolveID(ctx, key)
	if errors.Is(err, sessions.ErrNotFound) {
		cs.id = key
		cs.history = agent.NewHistory(policy)
		return nil
	}
	if err != nil {
		return err
	}
	sess, err := cs.store.Load(ctx, id)
	if err != nil {
		return err
	}
	cs.id = sess.ID
	cs.history = agent.NewHistory(policy, sess.Messages...)
	return nil
}

func (cs *chatSession) loop(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var (
		mu         sync.Mutex
		cancelTurn context.CancelFunc
	)
	go func() {
		for sig := range sigCh {
			mu.Lock()
			cancel := cancelTurn
			mu.Unlock()
			switch {
			case cancel != nil:
				cancel()
			case sig == syscall.SIGTERM:
				fmt.Fprintln(os.Stderr, "\nGoodbye!")
				cs.app.Close()
				os.Exit(0)
			default:
				fmt.Fprint(os.Stderr, "\n(use /exit or Ctrl+D to quit)\nYou: ")
			}
		}
	}()

	for {
		fmt.Fprint(os.Stderr, "\nYou: ")
		line, ok := cs.readLine()
		if !ok {
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "/exit", "exit", "quit":
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		case "/help":
			fmt.Fprintln(os.Stderr, chatHelp)
			continue
		case "/new":
			cs.id = sessions.NewID()
			cs.history.Clear()
			fmt.Fprintf(os.Stderr, "New session: %s\n", cs.id)
			continue
		case "/clear":
			cs.history.Clear()
			if err := cs.store.Reset(ctx, cs.id); err != nil && !errors.Is(err, sessions.ErrNotFound) {
				slog.Warn("sessions: reset failed", "session", cs.id, "error", err)
			}
			fmt.Fprintln(os.Stderr, "History cleared.")
			continue
		case "/tokens":
			cs.printTokens()
			continue
		}

		turnCtx, cancel := context.WithCancel(ctx)
		mu.Lock()
		cancelTurn = cancel
		mu.Unlock()

		switch strings.ToLower(input) {
		case "/model":
			cs.switchModel()
		case "/md":
			cs.writeContextFile(turnCtx)
		default:
			cs.turn(turnCtx, input)
		}

		mu.Lock()
		cancelTurn = nil
		mu.Unlock()
		cancel()
	}
}

func (cs *chatSession) readLine() (string, bool) {
	if !cs.in.Scan() {
		return "", false
	}
	return cs.in.Text(), true
}

func (cs *chatSession) maxTokens() int {
	if cs.flags.maxTokens > 0 {
		return cs.flags.maxTokens
	}
	return cs.app.config().Agent.MaxTokens
}

// turn answers one user message and records it in the history.
func (cs *chatSession) turn(ctx context.Context, input string) {
	files, warnings := prompt.ParseFileReferences(input, cs.app.workspace)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	system := cs.app.systemPrompt(ctx, prompt.ModeAsk, true)
	transcript := cs.history.Transcript(system, prompt.User(input, files))

	fmt.Fprintln(os.Stderr, titleStyle.Render("\nAssistant:"))
	result, err := cs.app.run(ctx, transcript, cs.maxTokens(), true)
	if err != nil {
		cs.r.fail(err)
		return
	}
	cs.r.answer(result.Content)

	cs.history.AddTurn(input, result.Content)
	if _, err := cs.store.AppendTurn(context.Background(), cs.id, input, result.Content); err != nil {
		slog.Warn("sessions: save failed", "session", cs.id, "error", err)
	}
}

func (cs *chatSession) printTokens() {
	msgs := cs.history.Messages()
	used := agent.CountMessages(cs.counter, msgs)
	window := cs.app.config().Model.ContextSize
	fmt.Fprintf(os.Stderr, "History: %d turn(s), %d message(s), ~%d tokens", cs.history.Turns(), len(msgs), used)
	if window > 0 {
		fmt.Fprintf(os.Stderr, " of %d context (%.0f%%)", window, 100*float64(used)/float64(window))
	}
	fmt.Fprintln(os.Stderr)
}

const otherModelPath = "\x00other"

// switchModel shows the current model and offers the *.gguf files in the
// current directory, or any path, as a replacement.
func (cs *chatSession) switchModel() {
	current := cs.app.config().Model.Path
	fmt.Fprintf(os.Stderr, "\nCurrent model: %s\n  Path: %s\n", filepath.Base(current), current)

	var others []config.ModelFile
	found, _ := config.FindModels(".")
	currentAbs, _ := filepath.Abs(config.ExpandHome(current))
	for _, m := range found {
		if m.Path != currentAbs {
			others = append(others, m)
		}
	}

	var choice string
	if cs.r.tty {
		opts := make([]SelectOption[string], 0, len(others)+2)
		for _, m := range others {
			opts = append(opts, SelectOption[string]{Label: fmt.Sprintf("%s (%.2f GB)", m.Name, m.SizeGB()), Value: m.Path})
		}
		opts = append(opts,
			SelectOption[string]{Label: "Enter a path...", Value: otherModelPath},
			SelectOption[string]{Label: "Keep current model", Value: ""},
		)
		sel, err := promptSelect("Switch model", opts, len(opts)-1)
		if err != nil {
			return
		}
		choice = sel
		if choice == otherModelPath {
			if choice, err = promptString("Path to a .gguf file", "", ""); err != nil {
				return
			}
		}
	} else {
		if len(others) > 0 {
			fmt.Fprintln(os.Stderr, "\nAvailable GGUF models in current directory:")
			for i, m := range others {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, m.Name)
			}
		}
		fmt.Fprintln(os.Stderr, "\nEnter a number or a path to a .gguf file to switch models, or press Enter to keep the current model:")
		fmt.Fprint(os.Stderr, "> ")
		line, _ := cs.readLine()
		choice = strings.TrimSpace(line)
		if n, err := strconv.Atoi(choice); err == nil && len(others) > 0 {
			if n < 1 || n > len(others) {
				fmt.Fprintln(os.Stderr, "Invalid selection.")
				return
			}
			choice = others[n-1].Path
		}
	}

	choice = strings.TrimSpace(choice)
	if choice == "" {
		fmt.Fprintln(os.Stderr, "Keeping current model.")
		return
	}
	abs, err := cs.app.setModel(choice)
	switch {
	case errors.Is(err, config.ErrModelNotFound):
		fmt.Fprintf(os.Stderr, "Error: File not found: %s\n", choice)
	case errors.Is(err, config.ErrNotGGUF):
		fmt.Fprintf(os.Stderr, "Error: Not a .gguf file: %s\n", choice)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	default:
		fmt.Fprintf(os.Stderr, "Switched to: %s\n", filepath.Base(abs))
	}
}

// writeContextFile generates CONTEXT.md from the project's key files with a
// tool-less run, shows it and writes it after confirmation.
func (cs *chatSession) writeContextFile(ctx context.Context) {
	r := cs.r
	r.note("\nGenerating CONTEXT.md by exploring the project...")

	data, err := bootstrap.GatherProjectContext(cs.app.workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading project: %s\n", err)
		return
	}

	transcript := agent.NewTranscript(
		agent.SystemMessage(prompt.ContextWriterSystem),
		agent.UserMessage(prompt.ContextWriterUser(data)),
	)
	result, err := cs.app.run(ctx, transcript, max(cs.maxTokens(), contextFileTokens), false)
	if err != nil {
		r.fail(err)
		return
	}
	if strings.TrimSpace(result.Content) == "" {
		fmt.Fprintln(os.Stderr, "Failed to generate CONTEXT.md content.")
		return
	}
	r.answer(result.Content)

	if !cs.confirm("Write CONTEXT.md?") {
		fmt.Fprintln(os.Stderr, "Write cancelled.")
		return
	}
	if _, err := bootstrap.WriteContextFile(cs.app.workspace, result.Content); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CONTEXT.md: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, "CONTEXT.md has been created. It will be auto-injected into future prompts.")
}

func (cs *chatSession) confirm(question string) bool {
	if cs.r.tty {
		ok, err := promptConfirm(question, true)
		return err == nil && ok
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, _ := cs.readLine()
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
