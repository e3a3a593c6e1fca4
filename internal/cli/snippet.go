package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/internal/snippet"
)

var (
	snippetDescription string
	snippetCategory    string
	snippetRunVerify   bool
)

func init() {
	snippetSaveCmd.Flags().StringVar(&snippetDescription, "description", "", "Description shown in the palette")
	snippetSaveCmd.Flags().StringVar(&snippetCategory, "category", "custom", "setup|build|test|lint|deploy|custom")
	snippetRunCmd.Flags().BoolVar(&snippetRunVerify, "verify", false, "re-verify the command body immediately before spawning, aborting on drift (run_snippet_v2)")

	snippetCmd.AddCommand(snippetListCmd, snippetSaveCmd, snippetDeleteCmd, snippetRunCmd)
	rootCmd.AddCommand(snippetCmd)
}

var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Manage and run named command snippets",
}

var snippetListCmd = &cobra.Command{
	Use:   "list [repo-path]",
	Short: "List snippets (repo-scoped overlaid on global)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := ""
		if len(args) > 0 {
			repoPath = args[0]
		}
		snippets, err := k.ListSnippets(repoPath)
		if err != nil {
			return err
		}
		for _, s := range snippets {
			fmt.Printf("%-10s %-20s %s\n", s.Category, s.Name, s.Command)
		}
		return nil
	},
}

var snippetSaveCmd = &cobra.Command{
	Use:   "save <name> <command> [repo-path]",
	Short: "Create or update a snippet",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := ""
		if len(args) > 2 {
			repoPath = args[2]
		}
		return k.SaveSnippet(repoPath, snippet.Snippet{
			Name:        args[0],
			Command:     args[1],
			Description: snippetDescription,
			Category:    snippet.Category(snippetCategory),
		})
	},
}

var snippetDeleteCmd = &cobra.Command{
	Use:   "delete <name> [repo-path]",
	Short: "Delete a snippet",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := ""
		if len(args) > 1 {
			repoPath = args[1]
		}
		return k.DeleteSnippet(repoPath, args[0])
	},
}

var snippetRunCmd = &cobra.Command{
	Use:   "run <workspace-id> <name>",
	Short: "Run a trust-gated snippet in a workspace's worktree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		var result *snippet.RunResult
		if snippetRunVerify {
			result, err = k.RunSnippetV2(id, args[1])
		} else {
			result, err = k.RunSnippet(id, args[1])
		}
		if err != nil {
			return err
		}
		fmt.Printf("exit code: %d (subscribe to snippet-output-%s for live output)\n", result.ExitCode, result.ID)
		return nil
	},
}
