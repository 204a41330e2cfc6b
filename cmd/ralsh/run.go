package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"obc-hal-go/internal/shell"
)

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run a script file, or stdin when no file is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return session(cmd.Context(), cmd.OutOrStdout(), func(sh *shell.Shell) error {
			return sh.Run(cmd.Context(), in, strict)
		})
	},
}
