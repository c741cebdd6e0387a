package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/prompt"
)

func editCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "edit <prompt>",
		Short: "Request code changes, referencing files with @path",
		Long: `Ask the model to change files. It reads what it needs with tools and
writes complete file contents with write_file. Every write is shown and
must be confirmed unless --yes is given or tools.confirmWrites is false.

Examples:
  localcoder edit "add input validation to @handlers/user.go"
  localcoder edit -y "rename Foo to Bar in @pkg/foo.go"`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runOneShot(strings.Join(args, " "), f, prompt.ModeEdit))
		},
	}
	f.register(cmd, "agent.editMaxTokens, 2048", false)
	return cmd
}
