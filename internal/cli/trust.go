package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	trustCmd.AddCommand(trustCheckCmd, trustGrantCmd, trustRevokeCmd)
	rootCmd.AddCommand(trustCmd)
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Check and grant trust for a repo's setup script and snippets",
}

var trustCheckCmd = &cobra.Command{
	Use:   "check [repo-path]",
	Short: "Report whether a repo is trusted at its current config/snippets hashes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, err := resolveRepo(argOrEmpty(args))
		if err != nil {
			return err
		}
		status, err := k.CheckTrust(repoPath)
		if err != nil {
			return err
		}
		if status.IsTrusted() {
			fmt.Println("trusted")
			return nil
		}
		if status.Trusted {
			fmt.Printf("changed since last grant: %v\n", status.ChangedFiles)
			return nil
		}
		fmt.Println("untrusted")
		return nil
	},
}

var trustGrantCmd = &cobra.Command{
	Use:   "grant [repo-path]",
	Short: "Mark a repo trusted at its current config/snippets hashes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, err := resolveRepo(argOrEmpty(args))
		if err != nil {
			return err
		}
		return k.GrantTrust(repoPath)
	},
}

var trustRevokeCmd = &cobra.Command{
	Use:   "revoke [repo-path]",
	Short: "Mark a repo untrusted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, err := resolveRepo(argOrEmpty(args))
		if err != nil {
			return err
		}
		return k.RevokeTrust(repoPath)
	},
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
