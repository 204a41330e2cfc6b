package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"obc-hal-go/internal/shell"
)

// Canned scripts exercising one primitive each.
var demos = map[string]string{
	"queue": `
echo queue: two slots of 8 bytes
queue q 2 8
send q first
send q second
send q third 0
count q
recv q
recv q
recv q 50
delete q
`,
	"sem": `
echo counting semaphore, max 3
sem s 3 0
give s
give s
count s
take s
take s
take s 50
delete s
`,
	"timer": `
echo periodic timer at 50ms for half a second
timer t periodic
start t 50
sleep 500
stop t
fired t
timer once once
start once 20
sleep 100
fired once
delete t
delete once
`,
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for n := range demos {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

var demoCmd = &cobra.Command{
	Use:       "demo <" + strings.Join(demoNames(), "|") + ">",
	Short:     "Run a built-in demonstration script",
	Args:      cobra.ExactArgs(1),
	ValidArgs: demoNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, ok := demos[args[0]]
		if !ok {
			return fmt.Errorf("unknown demo %q, want one of %s", args[0], strings.Join(demoNames(), ", "))
		}
		out := cmd.OutOrStdout()
		return session(cmd.Context(), out, func(sh *shell.Shell) error {
			for _, l := range strings.Split(strings.TrimSpace(script), "\n") {
				fmt.Fprintf(out, "> %s\n", l)
				if !sh.Exec(cmd.Context(), l) && strict {
					return shell.ErrScript
				}
			}
			return nil
		})
	},
}
