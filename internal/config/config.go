package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// DefaultModelPath is the model file used until one is configured.
const DefaultModelPath = "./Qwen_Qwen2.5-Coder-7B-Instruct-GGUF_qwen2.5-coder-7b-instruct-q4_k_m.gguf"

// Environment overrides.
const (
	EnvConfig    = "LOCALCODER_CONFIG"
	EnvModel     = "LOCALCODER_MODEL"
	EnvServerURL = "LOCALCODER_SERVER_URL"
)

// Injection actions for the input guard.
const (
	InjectionOff   = "off"
	InjectionLog   = "log"
	InjectionWarn  = "warn"
	InjectionBlock = "block"
)

// Config is the root configuration, stored as JSON5 at ~/.local-coder/config.json.
type Config struct {
	Model     ModelConfig     `json:"model"`
	Agent     AgentConfig     `json:"agent"`
	MCP       MCPConfig       `json:"mcp"`
	Tools     ToolsConfig     `json:"tools"`
	Sessions  SessionsConfig  `json:"sessions"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ModelConfig describes the GGUF model and how to reach the server hosting it.
// An empty ServerURL means localcoder starts llama-server itself.
type ModelConfig struct {
	Path            string  `json:"path"`
	ContextSize     int     `json:"contextSize"`
	GPULayers       int     `json:"gpuLayers"`
	ServerURL       string  `json:"serverURL,omitempty"`
	ServerBinary    string  `json:"serverBinary"`
	ServerPort      int     `json:"serverPort"`
	ServerArgs      string  `json:"serverArgs,omitempty"` // extra llama-server flags, shell-quoted
	StartTimeoutSec int     `json:"startTimeoutSec"`
	Name            string  `json:"name"`
	APIKey          string  `json:"apiKey,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type AgentConfig struct {
	MaxIterations       int           `json:"maxIterations"`
	MaxTokens           int           `json:"maxTokens"`
	EditMaxTokens       int           `json:"editMaxTokens"`
	HistoryTurns        int           `json:"historyTurns"`
	HistoryTokenBudget  int           `json:"historyTokenBudget"` // 0 disables the token cap
	Workspace           string        `json:"workspace"`
	RestrictToWorkspace bool          `json:"restrictToWorkspace"`
	InjectionAction     string        `json:"injectionAction"` // off, log, warn, block
	Pruning             PruningConfig `json:"pruning"`
}

// PruningConfig shrinks old tool results in the messages sent to the model
// once a run's transcript nears the context window. The transcript itself
// is never modified. Zero values take the loop defaults.
type PruningConfig struct {
	Enabled              bool    `json:"enabled"`
	KeepLastAssistants   int     `json:"keepLastAssistants,omitempty"`
	SoftTrimRatio        float64 `json:"softTrimRatio,omitempty"`
	HardClearRatio       float64 `json:"hardClearRatio,omitempty"`
	MinPrunableToolChars int     `json:"minPrunableToolChars,omitempty"`
	SoftTrimMaxChars     int     `json:"softTrimMaxChars,omitempty"`
	SoftTrimHeadChars    int     `json:"softTrimHeadChars,omitempty"`
	SoftTrimTailChars    int     `json:"softTrimTailChars,omitempty"`
	HardClear            *bool   `json:"hardClear,omitempty"`
	Placeholder          string  `json:"placeholder,omitempty"`
}

// MCPConfig configures the stdio MCP server providing remote filesystem tools.
// The workspace path is appended to Args at launch.
type MCPConfig struct {
	Enabled    bool              `json:"enabled"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env,omitempty"`
	TimeoutSec int               `json:"timeoutSec"`
	Prefix     string            `json:"prefix,omitempty"`
}

type ToolsConfig struct {
	Builtin          bool               `json:"builtin"`
	ConfirmWrites    bool               `json:"confirmWrites"`
	ScrubCredentials bool               `json:"scrubCredentials"` // serve always scrubs
	Custom           []CustomToolConfig `json:"custom,omitempty"`
}

// CustomToolConfig defines a command-backed tool. Command is a template with
// {{.key}} placeholders filled from the call arguments.
type CustomToolConfig struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Command     string                 `json:"command"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	TimeoutSec  int                    `json:"timeoutSec,omitempty"`
	WorkingDir  string                 `json:"workingDir,omitempty"`
	Env         map[string]string      `json:"env,omitempty"`
}

type SessionsConfig struct {
	Storage     string `json:"storage"`
	MaxMessages int    `json:"maxMessages"` // per-session cap for serve
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol"` // grpc or http
	Insecure    bool              `json:"insecure"`
	ServiceName string            `json:"serviceName"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path:            DefaultModelPath,
			ContextSize:     8192,
			GPULayers:       -1,
			ServerBinary:    "llama-server",
			ServerPort:      8088,
			StartTimeoutSec: 120,
			Name:            "local",
			Temperature:     0.2,
		},
		Agent: AgentConfig{
			MaxIterations:       10,
			MaxTokens:           512,
			EditMaxTokens:       2048,
			HistoryTurns:        10,
			Workspace:           ".",
			RestrictToWorkspace: true,
			InjectionAction:     InjectionWarn,
		},
		MCP: MCPConfig{
			Enabled:    true,
			Command:    "npx",
			Args:       []string{"-y", "@modelcontextprotocol/server-filesystem"},
			TimeoutSec: 30,
		},
		Tools: ToolsConfig{
			Builtin:       true,
			ConfirmWrites: true,
		},
		Sessions: SessionsConfig{
			Storage:     "~/.local-coder/sessions.db",
			MaxMessages: 20,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "localcoder",
		},
	}
}

// DefaultPath returns ~/.local-coder/config.json.
func DefaultPath() string {
	return ExpandHome("~/.local-coder/config.json")
}

// Load reads the config at path over the defaults. A missing file yields the
// defaults; keys absent from the file keep their default values. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvModel); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Model.ServerURL = v
	}
}

// Validate checks values the loader cannot default.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("agent.maxIterations must be >= 0, got %d", c.Agent.MaxIterations))
	}
	switch c.Agent.InjectionAction {
	case "", InjectionOff, InjectionLog, InjectionWarn, InjectionBlock:
	default:
		errs = append(errs, fmt.Errorf("agent.injectionAction %q is not one of off, log, warn, block", c.Agent.InjectionAction))
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("telemetry.protocol %q is not grpc or http", c.Telemetry.Protocol))
		}
	}
	seen := make(map[string]bool)
	for i, t := range c.Tools.Custom {
		if t.Name == "" || t.Command == "" {
			errs = append(errs, fmt.Errorf("tools.custom[%d]: name and command are required", i))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("tools.custom[%d]: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true
	}
	return errors.Join(errs...)
}

// Hash returns a short digest of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// WorkspacePath returns the absolute workspace directory.
func (c *Config) WorkspacePath() string {
	ws := ExpandHome(c.Agent.Workspace)
	if ws == "" {
		ws = "."
	}
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
