package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	wsAlias string
	wsAgent string
	wsModel string
)

func init() {
	workspaceCreateCmd.Flags().StringVar(&wsAlias, "alias", "", "Repo alias to show in workspace listings")
	workspaceCreateCmd.Flags().StringVar(&wsAgent, "agent", "", "Agent to run (default: repo/global default)")
	workspaceCreateCmd.Flags().StringVar(&wsModel, "model", "", "Model override for the agent")
	switchModelCmd.Flags().StringVar(&wsModel, "model", "", "New model to switch to")

	workspaceCmd.AddCommand(
		workspaceCreateCmd,
		workspaceListCmd,
		workspaceStopCmd,
		workspaceRemoveCmd,
		workspaceDiscardCmd,
		switchModelCmd,
	)
	rootCmd.AddCommand(workspaceCmd)
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Create, list, and tear down agent workspaces",
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create [repo-path]",
	Short: "Create a worktree and start (or queue) an agent session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoArg := ""
		if len(args) > 0 {
			repoArg = args[0]
		}
		repoPath, err := resolveRepo(repoArg)
		if err != nil {
			return err
		}
		trustRequired := k.Bus.Subscribe("trust-required")
		defer k.Bus.Unsubscribe("trust-required", trustRequired)
		info, err := k.CreateWorkspace(repoPath, wsAlias, wsAgent, wsModel)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", info.ID, info.Branch, info.State)
		select {
		case <-trustRequired:
			fmt.Println("trust required: the agent was not started; run `loom trust grant` and create the workspace again")
		default:
		}
		return nil
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list [repo-path]",
	Short: "List workspaces, optionally filtered to one repo",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := ""
		if len(args) > 0 {
			repoPath = args[0]
		}
		for _, ws := range k.ListWorkspaces(repoPath) {
			symbol, color := workspaceStateDisplay(ws.State)
			fmt.Printf("%s%s%s %s  %-8s  %s  %s\n", color, symbol, ansiReset, ws.ID[:8], ws.State, ws.Agent, ws.Branch)
		}
		return nil
	},
}

var workspaceStopCmd = &cobra.Command{
	Use:   "stop <workspace-id>",
	Short: "Stop a workspace's agent session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		return k.StopWorkspace(id)
	},
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "remove <workspace-id>",
	Short: "Remove a workspace's worktree (refuses while running)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		return k.RemoveWorkspace(id)
	},
}

var workspaceDiscardCmd = &cobra.Command{
	Use:   "discard <workspace-id>",
	Short: "Force-discard a workspace, dropping uncommitted changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		return k.DiscardWorkspace(id)
	},
}

var switchModelCmd = &cobra.Command{
	Use:   "switch-model <workspace-id>",
	Short: "Restart a workspace's agent session on a different model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		return k.SwitchAgentModel(id, wsModel)
	},
}
