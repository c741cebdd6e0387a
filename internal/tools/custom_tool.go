package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/nextlevelbuilder/localcoder/internal/config"
)

const defaultCustomToolTimeout = 60 * time.Second

// defaultDenyPatterns refuse rendered commands that are destructive outside
// the workspace, whatever the template author intended.
var defaultDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+(/|~|\$HOME)(\s|$)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+.*\bof=/dev/`),
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`),
	regexp.MustCompile(`\bchmod\s+(-R\s+)?777\s+/(\s|$)`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
}

// CustomTool runs a configured command. Arguments fill {{.key}} placeholders
// after the template is split into argv, so each value stays a single
// argument and no shell is involved.
type CustomTool struct {
	def       config.CustomToolConfig
	workspace string
	params    map[string]interface{}
}

func NewCustomTool(def config.CustomToolConfig, workspace string) *CustomTool {
	params := def.Parameters
	if params == nil {
		params = map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}
	return &CustomTool{def: def, workspace: workspace, params: params}
}

func (t *CustomTool) Name() string                       { return t.def.Name }
func (t *CustomTool) Description() string                { return t.def.Description }
func (t *CustomTool) Parameters() map[string]interface{} { return t.params }

func (t *CustomTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	argv, err := renderArgv(t.def.Command, args)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: invalid command template for %s: %v", t.def.Name, err))
	}
	if len(argv) == 0 {
		return ErrorResult(fmt.Sprintf("Error: empty command for %s", t.def.Name))
	}

	line := strings.Join(argv, " ")
	for _, pattern := range defaultDenyPatterns {
		if pattern.MatchString(line) {
			return ErrorResult(fmt.Sprintf("Error: command denied by safety policy: matches pattern %s", pattern.String()))
		}
	}

	timeout := time.Duration(t.def.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultCustomToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.workspace
	if t.def.WorkingDir != "" {
		cmd.Dir = config.ExpandHome(t.def.WorkingDir)
	}
	if len(t.def.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range t.def.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	var result string
	if stdout.Len() > 0 {
		result = stdout.String()
	}
	if stderr.Len() > 0 {
		if result != "" {
			result += "\n"
		}
		result += "STDERR:\n" + stderr.String()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrorResult(fmt.Sprintf("Error: command timed out after %s", timeout)).WithError(ctx.Err())
		}
		if result == "" {
			result = err.Error()
		}
		return ErrorResult(result).WithError(err)
	}

	if result == "" {
		result = "(command completed with no output)"
	}
	return NewResult(result)
}

// renderArgv splits tmpl into words and replaces {{.key}} placeholders in
// each word with the argument's value. Placeholders without a matching
// argument are replaced with the empty string.
func renderArgv(tmpl string, args map[string]interface{}) ([]string, error) {
	words, err := shellwords.Parse(tmpl)
	if err != nil {
		return nil, err
	}
	for i, w := range words {
		words[i] = placeholderRe.ReplaceAllStringFunc(w, func(m string) string {
			key := placeholderRe.FindStringSubmatch(m)[1]
			v, ok := args[key]
			if !ok || v == nil {
				return ""
			}
			return fmt.Sprint(v)
		})
	}
	return words, nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*\.(\w+)\s*\}\}`)
