package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
)

const (
	argValueWidth = 60
	markdownWidth = 100
)

var (
	dimStyle   = lipgloss.NewStyle().Faint(true)
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// renderer prints loop progress on stderr and answers on stdout. On a
// terminal it shows a spinner while the model is thinking and renders
// answers as markdown; otherwise it prints plain text.
type renderer struct {
	out    io.Writer
	errOut io.Writer
	tty    bool

	mu         sync.Mutex
	stopSpin   context.CancelFunc
	spinDone   chan struct{}
	mdRenderer *glamour.TermRenderer
}

func newRenderer() *renderer {
	return &renderer{
		out:    os.Stdout,
		errOut: os.Stderr,
		tty:    isTerminal(os.Stdout) && isTerminal(os.Stderr),
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// onEvent is the loop's OnEvent callback.
func (r *renderer) onEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventLLMCall:
		r.startSpinner(fmt.Sprintf("Thinking... (step %d)", ev.Iteration))
	case agent.EventInlineRecovered:
		r.note(fmt.Sprintf("  (parsed %d inline tool call(s) from content)", ev.Count))
	case agent.EventToolCall:
		r.stopSpinner()
		fmt.Fprintln(r.errOut, "  "+toolStyle.Render("tool: ")+dimStyle.Render(fmt.Sprintf("%s(%s)", ev.ToolName, formatArgs(ev.Args))))
	case agent.EventToolResult:
		line := "  result: " + strings.ReplaceAll(ev.Preview, "\n", " ")
		if ev.Truncated {
			line += "..."
		}
		if ev.IsError {
			fmt.Fprintln(r.errOut, errStyle.Render(line))
		} else {
			r.note(line)
		}
	case agent.EventNudge:
		r.note("Empty response from model, nudging...")
	case agent.EventForced:
		r.note("Reached tool call limit, generating final answer...")
		r.startSpinner("Concluding...")
	case agent.EventRunCompleted:
		r.stopSpinner()
	}
}

// note prints a dim status line on stderr.
func (r *renderer) note(msg string) {
	r.stopSpinner()
	fmt.Fprintln(r.errOut, dimStyle.Render(msg))
}

func (r *renderer) startSpinner(title string) {
	if !r.tty {
		return
	}
	r.stopSpinner()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.mu.Lock()
	r.stopSpin, r.spinDone = cancel, done
	r.mu.Unlock()

	go func() {
		defer close(done)
		_ = spinner.New().Type(spinner.Dots).Title(" " + title).Context(ctx).Run()
	}()
}

// stopSpinner stops the spinner, if any, and waits until it has cleared
// its line.
func (r *renderer) stopSpinner() {
	r.mu.Lock()
	cancel, done := r.stopSpin, r.spinDone
	r.stopSpin, r.spinDone = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// answer prints a final answer, as markdown on a terminal.
func (r *renderer) answer(content string) {
	r.stopSpinner()
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.markdown(content))
	fmt.Fprintln(r.out)
}

func (r *renderer) markdown(content string) string {
	if !r.tty || strings.TrimSpace(content) == "" {
		return content
	}
	r.mu.Lock()
	if r.mdRenderer == nil {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(markdownWidth),
		)
		if err == nil {
			r.mdRenderer = md
		}
	}
	md := r.mdRenderer
	r.mu.Unlock()
	if md == nil {
		return content
	}
	rendered, err := md.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// fail prints a classified error on stderr.
func (r *renderer) fail(err error) {
	r.stopSpinner()
	fmt.Fprintln(r.errOut, errStyle.Render(formatAgentError(err)))
}

// title prints a bold header line on stderr.
func (r *renderer) title(s string) {
	fmt.Fprintln(r.errOut, titleStyle.Render(s))
}

// formatArgs renders tool arguments as k="v" pairs sorted by key, cutting
// values wider than 60 columns to 57 plus "...".
func formatArgs(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s := argString(args[k])
		if runewidth.StringWidth(s) > argValueWidth {
			s = runewidth.Truncate(s, argValueWidth, "...")
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, s))
	}
	return strings.Join(parts, ", ")
}

func argString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case map[string]interface{}, []interface{}:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
