package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	repoCmd.AddCommand(repoAddCmd, repoRemoveCmd, repoListCmd)
	rootCmd.AddCommand(repoCmd)
}

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the set of registered repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add <path> [alias]",
	Short: "Register a git repository",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		alias := ""
		if len(args) > 1 {
			alias = args[1]
		}
		return k.AddRepository(args[0], alias)
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Unregister a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return k.RemoveRepository(args[0])
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, r := range k.ListRepositories() {
			fmt.Printf("%s\t%s\n", r.Alias, r.Path)
		}
		return nil
	},
}
