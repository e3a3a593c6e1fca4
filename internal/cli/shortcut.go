package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	shortcutCmd.AddCommand(shortcutListCmd, shortcutSetCmd)
	rootCmd.AddCommand(shortcutCmd)
}

var shortcutCmd = &cobra.Command{
	Use:   "shortcut",
	Short: "View and edit keyboard shortcut bindings",
}

var shortcutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current action -> key combo bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := k.ListShortcuts()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-18s %s\n", name, m[name])
		}
		return nil
	},
}

var shortcutSetCmd = &cobra.Command{
	Use:   "set <action> <key-combo>",
	Short: "Rebind an action to a new key combo and persist the whole map",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := k.ListShortcuts()
		if err != nil {
			return err
		}
		action, combo := args[0], strings.ToLower(args[1])
		m[action] = combo
		return k.SaveShortcuts(m)
	},
}
