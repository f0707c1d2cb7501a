package cli

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/herd/internal/channels"
	"github.com/rileyhilliard/herd/internal/dispatch"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"
	"github.com/rileyhilliard/herd/internal/lock"
	"github.com/rileyhilliard/herd/internal/logger"
	"github.com/rileyhilliard/herd/internal/task"
	"github.com/spf13/cobra"
)

// runFlags are the flags local to herd run.
type runFlags struct {
	SelectionFlags
	parallel    bool
	maxParallel int
	timeout     time.Duration
	lockScope   string
	options     []string
	sudo        string
	failFast    bool
}

func newRunCmd(app *App, g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <task> [args...]",
		Short: "Run a task against the selected servers",
		Long: `Run a registered task against every server the selection flags resolve to.

Without selection flags the task runs on every server in the inventory.
Task arguments that look like flags go after --.

Examples:
  herd run command -r web -- uptime
  herd run command -s 'web[01-12]' -x web07 -p -m 4 -- systemctl restart app
  herd run copy -r db -o mode=0600 ./my.cnf /etc/mysql/my.cnf
  herd run rsync -r web --lock both ./public /srv/www`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, app, g, f, args[0], args[1:])
		},
	}

	AddSelectionFlags(cmd, &f.SelectionFlags)
	fl := cmd.Flags()
	fl.BoolVarP(&f.parallel, "parallel", "p", false, "run servers concurrently")
	fl.IntVarP(&f.maxParallel, "max-parallel", "m", 100, "maximum servers in flight with --parallel")
	fl.DurationVarP(&f.timeout, "timeout", "t", 0, "per-server budget for connect, lock and task (e.g. 30s, 5m)")
	fl.StringVar(&f.lockScope, "lock", "local", "lock scope: none, local, remote, both")
	fl.StringArrayVarP(&f.options, "option", "o", nil, "task option key=value (repeatable)")
	fl.StringVarP(&f.sudo, "sudo", "u", "", "run task commands as this user via sudo")
	fl.BoolVar(&f.failFast, "fail-fast", false, "stop dispatching after the first failed server")

	return cmd
}

func runTask(cmd *cobra.Command, app *App, g *globalFlags, f *runFlags, name string, args []string) error {
	ctx := cmd.Context()

	t, err := app.Registry.Task(name)
	if err != nil {
		return err
	}
	opts, err := task.ParseOptions(f.options)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, app, g, cmd)
	if err != nil {
		return err
	}
	targets, err := s.targets(&f.SelectionFlags)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(s.settings.LogLevel)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid log level", "Use debug, info, warn or error")
	}
	b, err := openBroadcaster(app, level, s.settings.Channels)
	if err != nil {
		return err
	}
	defer b.Close()

	runID := uuid.New().String()
	locks, err := lock.NewCoordinator(s.settings.Lock, name, runID)
	if err != nil {
		return err
	}
	locks.SetLogger(b)

	orch := dispatch.NewOrchestrator(app.Dialer, locks, b, dispatch.Config{
		Parallel:    s.settings.Parallel,
		MaxParallel: s.settings.MaxParallel,
		Timeout:     s.settings.Timeout,
		FailFast:    s.settings.FailFast,
	})

	result, err := orch.Run(ctx, t, &task.Context{
		RunID:    runID,
		Task:     name,
		Args:     args,
		Options:  opts,
		SudoUser: s.settings.SudoUser,
		Timeout:  s.settings.Timeout,
		Log:      b,
	}, targets)
	if err != nil {
		return err
	}

	dispatch.RenderSummary(app.Stdout, result)
	if !result.Success() {
		return errors.NewExitError(1)
	}
	return nil
}

// openBroadcaster opens every channel URI. A ?level= query overrides the
// run level for that channel. Channels opened before a failure are closed.
func openBroadcaster(app *App, level logger.Level, uris []string) (*events.Broadcaster, error) {
	b := events.NewBroadcaster(level)
	b.SetFallback(app.Stderr)
	for _, raw := range uris {
		ch, err := app.Registry.OpenChannel(raw)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		u, _ := url.Parse(raw)
		chLevel, ok, err := channels.LevelOverride(u)
		if err != nil {
			_ = ch.Close()
			_ = b.Close()
			return nil, err
		}
		if !ok {
			chLevel = level
		}
		b.AddWithLevel(ch, chLevel)
	}
	return b, nil
}
