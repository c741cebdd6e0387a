package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/localcoder/internal/agent"
	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/sessions"
)

const doctorTimeout = 10 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

// checkLine is one "name: status" row of the report.
type checkLine struct {
	name   string
	status string
}

func (c checkLine) print() {
	fmt.Printf("    %-12s %s\n", c.name+":", c.status)
}

func runDoctor() {
	fmt.Println("localcoder doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	// The checks are independent; run them together and print in order.
	checks := []func(context.Context) checkLine{
		func(context.Context) checkLine { return checkModelFile(cfg) },
		func(ctx context.Context) checkLine { return checkBackend(ctx, cfg) },
		func(context.Context) checkLine { return checkBinary("npx") },
		func(context.Context) checkLine { return checkBinary("git") },
		func(ctx context.Context) checkLine { return checkSessions(ctx, cfg) },
	}
	results := make([]checkLine, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx)
			return nil
		})
	}
	g.Wait()

	fmt.Println()
	fmt.Println("  Model:")
	results[0].print()
	results[1].print()

	fmt.Println()
	fmt.Println("  External Tools:")
	results[2].print()
	results[3].print()

	fmt.Println()
	fmt.Println("  Agent:")
	ws := cfg.WorkspacePath()
	wsStatus := ws
	if _, err := os.Stat(ws); err != nil {
		wsStatus += " (NOT FOUND)"
	}
	checkLine{"Workspace", wsStatus}.print()
	checkLine{"Tools", toolsSummary(cfg)}.print()
	checkLine{"MCP", mcpSummary(cfg)}.print()
	guard := agent.NewInputGuard()
	checkLine{"Input guard", fmt.Sprintf("%d patterns, action %s", len(guard.PatternNames()), cfg.Agent.InjectionAction)}.print()
	results[4].print()

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkModelFile(cfg *config.Config) checkLine {
	abs, err := config.ValidateModelPath(cfg.Model.Path)
	if err != nil {
		return checkLine{"File", err.Error()}
	}
	st := cfg.Model.Status()
	return checkLine{"File", fmt.Sprintf("%s (%.2f GB)", abs, st.SizeGB)}
}

// checkBackend probes the configured server's /health, or looks for the
// llama-server binary when localcoder manages the server itself.
func checkBackend(ctx context.Context, cfg *config.Config) checkLine {
	if cfg.Model.ServerURL == "" {
		c := checkBinary(cfg.Model.ServerBinary)
		c.name = "Server"
		c.status += " (managed, port " + fmt.Sprint(cfg.Model.ServerPort) + ")"
		return c
	}

	url := strings.TrimSuffix(strings.TrimRight(cfg.Model.ServerURL, "/"), "/v1") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return checkLine{"Server", err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return checkLine{"Server", fmt.Sprintf("%s UNREACHABLE (%s)", cfg.Model.ServerURL, err)}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return checkLine{"Server", fmt.Sprintf("%s NOT READY (HTTP %d)", cfg.Model.ServerURL, resp.StatusCode)}
	}
	return checkLine{"Server", cfg.Model.ServerURL + " (OK)"}
}

func checkBinary(name string) checkLine {
	path, err := exec.LookPath(name)
	if err != nil {
		return checkLine{name, "NOT FOUND"}
	}
	return checkLine{name, path}
}

func checkSessions(ctx context.Context, cfg *config.Config) checkLine {
	path := config.ExpandHome(cfg.Sessions.Storage)
	store, err := sessions.Open(path, cfg.Sessions.MaxMessages)
	if err != nil {
		return checkLine{"Sessions", err.Error()}
	}
	defer store.Close()
	infos, err := store.List(ctx, 0)
	if err != nil {
		return checkLine{"Sessions", err.Error()}
	}
	return checkLine{"Sessions", fmt.Sprintf("%s (%d sessions)", path, len(infos))}
}

func toolsSummary(cfg *config.Config) string {
	parts := []string{}
	if cfg.Tools.Builtin {
		parts = append(parts, "built-in")
	}
	if n := len(cfg.Tools.Custom); n > 0 {
		parts = append(parts, fmt.Sprintf("%d custom", n))
	}
	if len(parts) == 0 {
		return "none"
	}
	s := strings.Join(parts, ", ")
	if cfg.Tools.ConfirmWrites {
		s += ", writes confirmed"
	}
	return s
}

func mcpSummary(cfg *config.Config) string {
	if !cfg.MCP.Enabled {
		return "disabled"
	}
	return strings.Join(append([]string{cfg.MCP.Command}, cfg.MCP.Args...), " ")
}
