package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/internal/kernel"
	"github.com/loomkit/loom/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var k *kernel.Kernel

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Run and review AI coding agents against isolated git worktrees",
	Long: `loom manages one or more interactive coding agents (Claude Code, Codex,
Gemini) each working in its own git worktree, so several agents can run
against the same repository at once without stepping on each other.

Each workspace is a branch + worktree + PTY session. Changes stay local
to the worktree until you review and merge them back.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		var err error
		k, err = kernel.New(logging.NewConsole("loom"))
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if k == nil {
			return nil
		}
		return k.Close()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loom %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
