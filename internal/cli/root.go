package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/rileyhilliard/herd/internal/registry"
	"github.com/spf13/cobra"
)

// App carries the collaborators commands need, so tests can swap the
// dialer and capture output.
type App struct {
	Registry *registry.Registry
	Dialer   host.Dialer
	Stdout   io.Writer
	Stderr   io.Writer

	// Interactive reports whether confirmations may prompt.
	Interactive func() bool
}

// NewApp returns an App wired with the default registry and SSH.
func NewApp() *App {
	return &App{
		Registry:    DefaultRegistry(os.Stdout, os.Stderr),
		Dialer:      host.SSHDialer{},
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: stdinIsTerminal,
	}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config   string
	envFile  string
	logLevel string
	channels []string
}

// NewRootCmd builds the command tree for app.
func NewRootCmd(app *App) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "herd",
		Short: "Run tasks across a fleet of servers over SSH",
		Long: `herd runs named tasks against servers selected by name, role, range
and exclusion patterns, serially or in parallel, with run locks that keep
overlapping invocations apart.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "inventory location: path, file://, consul://, sshconfig: (default herd.yaml)")
	pf.StringVar(&g.envFile, "env-file", "", "dotenv file loaded before reading HERD_* variables (default .env when present)")
	pf.StringVarP(&g.logLevel, "log-level", "l", "", "minimum log level: debug, info, warn, error")
	pf.StringArrayVar(&g.channels, "log", nil, "log channel URI, repeatable (console:, file:///path, sqlite:///path, mysql://..., ws://...)")

	root.AddCommand(
		newRunCmd(app, g),
		newServersCmd(app, g),
		newTasksCmd(app),
		newUnlockCmd(app, g),
		newVersionCmd(app),
	)
	return root
}

// Execute runs the CLI and exits with the run's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewApp(), os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes args against app and returns the process exit status.
func run(ctx context.Context, app *App, args []string) int {
	root := NewRootCmd(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if code, ok := errors.GetExitCode(err); ok {
		return code
	}
	msg := err.Error()
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(app.Stderr, msg)
	return 1
}
