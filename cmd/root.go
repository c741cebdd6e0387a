package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "0.1.0-dev"

const envLogLevel = "LOCALCODER_LOG_LEVEL"

var (
	cfgFile string
	verbose bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "localcoder",
		Short: "Local coding assistant backed by a GGUF model",
		Long: `localcoder answers coding questions and edits files with a local model
served by llama.cpp. The model inspects the project through filesystem tools
(built-in and from an MCP filesystem server) before answering.

Examples:
  localcoder ask "what does @main.go do?"
  localcoder chat
  localcoder edit "add a --json flag to @cmd/list.go"
  localcoder models --set ./qwen2.5-coder-7b-instruct-q4_k_m.gguf`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $LOCALCODER_CONFIG or ~/.local-coder/config.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(askCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(editCmd())
	root.AddCommand(modelsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(configCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config, the environment,
// or the default location, in that order.
func resolveConfigPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	if v := os.Getenv(config.EnvConfig); v != "" {
		return config.ExpandHome(v)
	}
	return config.DefaultPath()
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose || strings.EqualFold(os.Getenv(envLogLevel), "debug") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig loads the resolved config or exits.
func loadConfig() (*config.Config, string) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg, cfgPath
}
