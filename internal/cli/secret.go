package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	secretCmd.AddCommand(secretGetCmd, secretSetCmd, secretDeleteCmd, secretListCmd)
	rootCmd.AddCommand(secretCmd)
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage OS-keychain-backed secrets injected into agent sessions",
}

var secretGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a cached secret's value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ok := k.GetSecret(args[0])
		if !ok {
			return fmt.Errorf("no secret named %q", args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a secret in the OS keychain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return k.SetSecret(args[0], args[1])
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret from the OS keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return k.DeleteSecret(args[0])
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known secret keys (not their values)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := k.ListSecretKeys()
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	},
}
