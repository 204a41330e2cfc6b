package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tty "github.com/mattn/go-tty"
	"github.com/spf13/cobra"

	"obc-hal-go/internal/shell"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive console on the controlling terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := tty.Open()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		defer t.Close()
		out := t.Output()

		return session(cmd.Context(), out, func(sh *shell.Shell) error {
			fmt.Fprintln(out, "ralsh: type commands, 'quit' to leave")
			for {
				fmt.Fprint(out, "> ")
				line, err := t.ReadString()
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				line = strings.TrimSpace(line)
				if line == "quit" || line == "exit" {
					return nil
				}
				if !sh.Exec(cmd.Context(), line) && strict {
					return shell.ErrScript
				}
				if cmd.Context().Err() != nil {
					return nil
				}
			}
		})
	},
}
