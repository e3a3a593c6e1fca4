package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd, attachCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <workspace-id> <text>",
	Short: "Send a line of input to a workspace's agent session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}
		return k.SendToAgent(id, args[1])
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <workspace-id>",
	Short: "Stream a workspace's agent output to stdout until it exits or Ctrl-C",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := findWorkspace(args[0])
		if err != nil {
			return err
		}

		output := k.Bus.Subscribe("pty-output-" + id)
		exit := k.Bus.Subscribe("pty-exit-" + id)
		defer k.Bus.Unsubscribe("pty-output-"+id, output)
		defer k.Bus.Unsubscribe("pty-exit-"+id, exit)

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		w := bufio.NewWriter(os.Stdout)
		defer w.Flush()
		for {
			select {
			case chunk, ok := <-output:
				if !ok {
					return nil
				}
				if s, ok := chunk.(string); ok {
					fmt.Fprint(w, s)
					w.Flush()
				}
			case <-exit:
				return nil
			case <-interrupt:
				return nil
			}
		}
	},
}
