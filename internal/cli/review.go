package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/internal/gitreview"
)

var mergeStrategy string

func init() {
	mergeCmd.Flags().StringVar(&mergeStrategy, "strategy", "merge", "merge|squash|rebase")
	rootCmd.AddCommand(statusCmd, diffCmd, mergeCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <workspace-id>",
	Short: "Show the review summary for a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		st, err := k.GetWorktreeStatus(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s ahead %d behind %d, %d file(s), +%d -%d\n",
			st.BaseBranch, st.Ahead, st.Behind, st.FilesChanged, st.TotalAdditions, st.TotalDeletions)
		for _, f := range st.Files {
			fmt.Printf("  %s  %s  +%d -%d\n", f.Status, f.Path, f.Additions, f.Deletions)
		}
		if st.HasConflicts {
			fmt.Printf("conflicts: %v\n", st.ConflictFiles)
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <workspace-id> [path...]",
	Short: "Show the parsed diff for a workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		diffs, err := k.GetDiff(id, args[1:])
		if err != nil {
			return err
		}
		for _, d := range diffs {
			fmt.Printf("--- %s (%s) +%d -%d\n", d.Path, d.Status, d.Additions, d.Deletions)
			for _, h := range d.Hunks {
				fmt.Println(h.Header)
				for _, l := range h.Lines {
					prefix := " "
					switch l.Kind {
					case "add":
						prefix = "+"
					case "delete":
						prefix = "-"
					}
					fmt.Printf("%s%s\n", prefix, l.Content)
				}
			}
		}
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <workspace-id> <message>",
	Short: "Merge a workspace's branch back onto its base",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		result, err := k.MergeWorkspace(id, gitreview.MergeStrategy(mergeStrategy), args[1])
		if err != nil {
			return err
		}
		if !result.Success {
			fmt.Printf("merge failed: %s\nconflicts: %v\n", result.Message, result.Conflicts)
			return fmt.Errorf("merge failed")
		}
		fmt.Printf("merged %s\n", result.MergeSHA)
		return nil
	},
}
