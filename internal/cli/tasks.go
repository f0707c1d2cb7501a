package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTasksCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := app.Registry.Tasks.Keys()
			width := 0
			for _, n := range names {
				if len(n) > width {
					width = len(n)
				}
			}
			for _, n := range names {
				t, err := app.Registry.Task(n)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Stdout, "  %-*s  %s\n", width, n, t.Help())
			}
			return nil
		},
	}
}
