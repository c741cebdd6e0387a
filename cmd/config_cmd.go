package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, _ := loadConfig()

			// Redact secrets before display
			redacted := redactConfig(cfg)
			data, _ := json.MarshalIndent(redacted, "", "  ")
			fmt.Println(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid config: %s\n", err)
				os.Exit(1)
			}
			if _, err := config.ValidateModelPath(cfg.Model.Path); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
			}
			fmt.Printf("Config at %s is valid.\n", cfgPath)
		},
	}
}

const (
	featureBuiltin = "builtin"
	featureConfirm = "confirm"
	featureMCP     = "mcp"
)

func configInitCmd() *cobra.Command {
	var (
		yes   bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file, interactively unless --yes",
		Run: func(cmd *cobra.Command, args []string) {
			runConfigInit(yes, force)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "write the defaults without asking")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runConfigInit(yes, force bool) {
	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", cfgPath)
		os.Exit(1)
	}

	cfg := config.Default()
	if !yes {
		if err := configWizard(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", cfgPath)
}

// configWizard fills cfg from huh prompts.
func configWizard(cfg *config.Config) error {
	var modelDefault string
	if found, _ := config.FindModels("."); len(found) > 0 {
		modelDefault = found[0].Path
	}
	modelPath, err := promptString("Model file (.gguf)", "Path to the GGUF model llama-server should load", modelDefault)
	if err != nil {
		return err
	}
	if modelPath != "" {
		abs, err := config.ValidateModelPath(modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
			abs = modelPath
		}
		cfg.Model.Path = abs
	}

	backend, err := promptSelect("Model server", []SelectOption[string]{
		{Label: "Start llama-server for me", Value: "managed"},
		{Label: "Use a server that is already running", Value: "url"},
	}, 0)
	if err != nil {
		return err
	}
	if backend == "url" {
		url, err := promptString("Server URL", "OpenAI-compatible API root", "http://127.0.0.1:8080/v1")
		if err != nil {
			return err
		}
		cfg.Model.ServerURL = strings.TrimRight(url, "/")
		key, err := promptPassword("API key", "Leave empty if the server does not need one")
		if err != nil {
			return err
		}
		cfg.Model.APIKey = key
	}

	features, err := promptMultiSelect("Tools", "Space to toggle, enter to confirm", []SelectOption[string]{
		{Label: "Built-in filesystem tools", Value: featureBuiltin},
		{Label: "Ask before writing files", Value: featureConfirm},
		{Label: "MCP filesystem server (needs npx)", Value: featureMCP},
	}, []string{featureBuiltin, featureConfirm, featureMCP})
	if err != nil {
		return err
	}
	enabled := make(map[string]bool, len(features))
	for _, f := range features {
		enabled[f] = true
	}
	cfg.Tools.Builtin = enabled[featureBuiltin]
	cfg.Tools.ConfirmWrites = enabled[featureConfirm]
	cfg.MCP.Enabled = enabled[featureMCP]

	restrict, err := promptConfirm("Keep file access inside the workspace?", true)
	if err != nil {
		return err
	}
	cfg.Agent.RestrictToWorkspace = restrict
	return nil
}

// redactConfig returns a JSON-safe copy with secrets masked.
func redactConfig(cfg *config.Config) interface{} {
	data, _ := json.Marshal(cfg)
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	redactMap(raw)
	return raw
}

func redactMap(m map[string]interface{}) {
	secretKeys := map[string]bool{
		"apiKey": true, "token": true, "secret": true,
		"password": true, "authorization": true, "Authorization": true,
	}
	for k, v := range m {
		if secretKeys[k] {
			if s, ok := v.(string); ok && len(s) > 8 {
				m[k] = s[:4] + "****" + s[len(s)-4:]
			} else if s, ok := v.(string); ok && s != "" {
				m[k] = "****"
			}
		} else if sub, ok := v.(map[string]interface{}); ok {
			redactMap(sub)
		}
	}
}
