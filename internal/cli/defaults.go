package cli

import (
	"io"
	"os"

	"github.com/rileyhilliard/herd/internal/channels"
	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/registry"
	"github.com/rileyhilliard/herd/internal/tasks"
	"golang.org/x/term"
)

// DefaultRegistry returns a registry populated with the built-in tasks,
// log channels and config loaders. The console channel writes to stdout,
// or stderr for console:stderr.
func DefaultRegistry(stdout, stderr io.Writer) *registry.Registry {
	r := registry.New()

	for name, f := range tasks.Builtins() {
		r.Tasks.Register(name, registry.TaskFactory(f))
	}

	r.Channels.Register("console", channels.ConsoleOn(stdout, stderr))
	r.Channels.Register("file", channels.OpenFile)
	r.Channels.Register("sqlite", channels.OpenSQLite)
	r.Channels.Register("mysql", channels.OpenMySQL)
	r.Channels.Register("ws", channels.OpenWebSocket)
	r.Channels.Register("wss", channels.OpenWebSocket)

	r.Loaders.Register("file", func() config.Loader { return config.FileLoader{} })
	r.Loaders.Register("consul", func() config.Loader { return config.ConsulLoader{} })
	r.Loaders.Register("sshconfig", func() config.Loader { return config.SSHConfigLoader{} })

	return r
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
