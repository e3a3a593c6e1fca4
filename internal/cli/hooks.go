package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/internal/hooks"
	"github.com/loomkit/loom/internal/hookrunner"
	"github.com/loomkit/loom/internal/logging"
)

func init() {
	hooksCmd.AddCommand(hooksValidateCmd, hooksRunCmd)
	rootCmd.AddCommand(hooksCmd)
}

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Validate and run a workspace's .loom/hooks.yaml pipeline",
}

var hooksValidateCmd = &cobra.Command{
	Use:   "validate <path-to-hooks.yaml>",
	Short: "Parse and validate a hooks.yaml file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := hooks.Load(args[0])
		if err != nil {
			return err
		}
		if errs := hooks.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				fmt.Println("error:", e)
			}
			return fmt.Errorf("%d validation error(s)", len(errs))
		}
		fmt.Println("ok")
		return nil
	},
}

var hooksRunCmd = &cobra.Command{
	Use:   "run <workspace-id>",
	Short: "Run a workspace's .loom/hooks.yaml pipeline once against its worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		ws, err := k.Workspace.Get(id)
		if err != nil {
			return err
		}
		hooksPath := filepath.Join(ws.WorktreePath, ".loom", "hooks.yaml")
		cfg, err := hooks.Load(hooksPath)
		if err != nil {
			return err
		}
		hookNames := make([]string, len(cfg.Hooks))
		for i, h := range cfg.Hooks {
			hookNames[i] = h.Name
		}
		hookrunner.ResetStaleStatuses(ws.WorktreePath, hookNames)

		runner := hookrunner.New(logging.New("hookrunner", nil))
		if err := runner.RunOnce(cfg, ws.WorktreePath); err != nil {
			return err
		}
		for _, name := range hookNames {
			status, err := hookrunner.ReadStatus(ws.WorktreePath, name)
			if err != nil {
				return err
			}
			symbol, color := hookStateDisplay(status.State)
			fmt.Printf("%s%s%s %s\n", color, symbol, ansiReset, name)
		}
		return nil
	},
}
