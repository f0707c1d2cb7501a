package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/rileyhilliard/herd/internal/lock"
	"github.com/rileyhilliard/herd/internal/ui"
	"github.com/spf13/cobra"
)

type unlockFlags struct {
	SelectionFlags
	remote bool
	yes    bool
}

// confirmFunc asks the user a yes/no question. Replaced in tests.
var confirmFunc = confirmWithHuh

func newUnlockCmd(app *App, g *globalFlags) *cobra.Command {
	f := &unlockFlags{}
	cmd := &cobra.Command{
		Use:   "unlock <task>",
		Short: "Force-release a task's run locks",
		Long: `Remove the control-node lock of a task left behind by a crashed or
killed run. With --remote, also remove the per-server locks on the selected
servers.

Examples:
  herd unlock deploy
  herd unlock deploy --remote -r web --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return unlockCommand(cmd, app, g, f, args[0])
		},
	}
	AddSelectionFlags(cmd, &f.SelectionFlags)
	cmd.Flags().BoolVar(&f.remote, "remote", false, "also release per-server locks on the selected servers")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "don't ask for confirmation")
	return cmd
}

type unlockResult int

const (
	unlockResultSuccess unlockResult = iota
	unlockResultNotLocked
	unlockResultFailed
)

func unlockCommand(cmd *cobra.Command, app *App, g *globalFlags, f *unlockFlags, name string) error {
	s, err := openSession(cmd.Context(), app, g, cmd)
	if err != nil {
		return err
	}
	coord, err := lock.NewCoordinator(s.settings.Lock, name, "")
	if err != nil {
		return err
	}

	var targets []*config.Server
	if f.remote {
		if targets, err = s.targets(&f.SelectionFlags); err != nil {
			return err
		}
	}

	local := coord.LocalHolder()
	if local == nil && !f.remote {
		fmt.Fprintf(app.Stdout, "%s %s: no local lock held\n", ui.SymbolPending, name)
		return nil
	}

	if !f.yes {
		if !app.Interactive() {
			return errors.New(errors.ErrLock,
				"Refusing to remove locks without confirmation",
				"Re-run with --yes when not on a terminal")
		}
		question := fmt.Sprintf("Release locks of '%s'", name)
		if local != nil {
			question += " (local lock held by " + local.String() + ")"
		}
		if f.remote {
			question += fmt.Sprintf(" on %d server(s)", len(targets))
		}
		ok, err := confirmFunc(question + "?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(app.Stdout, "Cancelled.")
			return nil
		}
	}

	failed := 0
	if local != nil {
		if err := coord.ForceReleaseLocal(); err != nil {
			fmt.Fprintf(app.Stdout, "%s local: %v\n", ui.SymbolFail, err)
			failed++
		} else {
			fmt.Fprintf(app.Stdout, "%s local: lock released (was held by %s)\n", ui.SymbolSuccess, local)
		}
	}

	var released, notLocked int
	for _, srv := range targets {
		switch unlockServer(cmd, app, coord, srv, s.settings.Timeout) {
		case unlockResultSuccess:
			released++
		case unlockResultNotLocked:
			notLocked++
		case unlockResultFailed:
			failed++
		}
	}

	if len(targets) > 1 {
		fmt.Fprintln(app.Stdout)
		if released > 0 {
			fmt.Fprintf(app.Stdout, "Released locks on %d server(s)\n", released)
		}
		if notLocked > 0 {
			fmt.Fprintf(app.Stdout, "%d server(s) had no lock\n", notLocked)
		}
	}

	if failed > 0 {
		return errors.New(errors.ErrLock,
			"Some locks could not be released",
			"Check the SSH connection and try again.")
	}
	return nil
}

// unlockServer releases the per-server lock on one server.
func unlockServer(cmd *cobra.Command, app *App, coord *lock.Coordinator, srv *config.Server, timeout time.Duration) unlockResult {
	conn, err := app.Dialer.Dial(cmd.Context(), srv, host.DialOptions{Timeout: timeout})
	if err != nil {
		fmt.Fprintf(app.Stdout, "%s %s: could not connect: %v\n", ui.SymbolFail, srv.Name, firstLine(err.Error()))
		return unlockResultFailed
	}
	defer conn.Close()

	holder := coord.RemoteHolder(conn.Client, srv.Name)
	if holder == nil {
		fmt.Fprintf(app.Stdout, "%s %s: no lock held\n", ui.SymbolPending, srv.Name)
		return unlockResultNotLocked
	}
	if err := coord.ForceReleaseRemote(conn.Client, srv.Name); err != nil {
		fmt.Fprintf(app.Stdout, "%s %s: failed to release lock: %v\n", ui.SymbolFail, srv.Name, firstLine(err.Error()))
		return unlockResultFailed
	}
	fmt.Fprintf(app.Stdout, "%s %s: lock released (was held by %s)\n", ui.SymbolSuccess, srv.Name, holder)
	return unlockResultSuccess
}

func confirmWithHuh(question string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Release").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't get your confirmation",
			"Try again or pass --yes")
	}
	return ok, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
