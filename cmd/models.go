package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/config"
)

func modelsCmd() *cobra.Command {
	var setPath string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show the current model or set a new one",
		Long: `Without flags, show the configured model and whether its file exists.
With --set, validate a .gguf file and store its absolute path in the config.

Examples:
  localcoder models
  localcoder models --set ~/models/qwen2.5-coder-7b-instruct-q4_k_m.gguf
  localcoder models list ~/models`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if setPath != "" {
				runModelsSet(setPath)
				return
			}
			runModelsShow()
		},
	}
	cmd.Flags().StringVarP(&setPath, "set", "s", "", "path to a GGUF model file to use")
	cmd.AddCommand(modelsListCmd())
	return cmd
}

func runModelsShow() {
	cfg, _ := loadConfig()
	st := cfg.Model.Status()

	fmt.Println("Current Model Configuration:")
	fmt.Printf("  Model path: %s\n", st.Path)
	fmt.Printf("  Context size: %d\n", st.NCtx)
	fmt.Printf("  GPU layers: %d\n", st.GPULayers)
	if cfg.Model.ServerURL != "" {
		fmt.Printf("  Server URL: %s\n", cfg.Model.ServerURL)
	} else {
		fmt.Printf("  Server: managed (%s on port %d)\n", cfg.Model.ServerBinary, cfg.Model.ServerPort)
	}
	if st.FileExists {
		fmt.Printf("  File size: %.2f GB\n", st.SizeGB)
		fmt.Println("  Status: ✓ Available")
	} else {
		fmt.Println("  Status: ✗ Not found")
	}
}

func runModelsSet(path string) {
	abs, err := config.ValidateModelPath(path)
	switch {
	case errors.Is(err, config.ErrModelNotFound):
		fmt.Fprintf(os.Stderr, "Error: Model file not found: %s\n", path)
		os.Exit(1)
	case errors.Is(err, config.ErrNotGGUF):
		fmt.Fprintln(os.Stderr, "Error: Model file must be a .gguf file")
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cfg, cfgPath := loadConfig()
	cfg.Model.Path = abs
	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to update model configuration: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Model updated successfully!")
	fmt.Printf("  New model: %s\n", abs)
	fmt.Println("\nNote: Restart the application for the change to take effect.")
}

func modelsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List GGUF model files in a directory (default: current directory)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			models, err := config.FindModels(dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				if models == nil {
					models = []config.ModelFile{}
				}
				data, _ := json.MarshalIndent(models, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(models) == 0 {
				fmt.Printf("No .gguf files found in %s\n", dir)
				return
			}

			cfg, _ := loadConfig()
			current, _ := config.ValidateModelPath(cfg.Model.Path)
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tSIZE\tACTIVE\n")
			for _, m := range models {
				active := ""
				if m.Path == current {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%.2f GB\t%s\n", m.Name, m.SizeGB(), active)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
