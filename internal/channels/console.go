package channels

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/rileyhilliard/herd/internal/events"
	"github.com/rileyhilliard/herd/internal/logger"
	"github.com/rileyhilliard/herd/internal/ui"
)

// Console prints the run as it happens.
type Console struct {
	events.Base
	w  io.Writer
	st ui.Styles
}

// NewConsole creates a console channel writing to w. Colour follows w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, st: ui.NewStyles(ui.NewRenderer(w))}
}

// OpenConsole handles console: (stdout) and console:stderr.
func OpenConsole(u *url.URL) (events.Channel, error) {
	return ConsoleOn(os.Stdout, os.Stderr)(u)
}

// ConsoleOn returns a console opener bound to the given streams.
func ConsoleOn(stdout, stderr io.Writer) func(*url.URL) (events.Channel, error) {
	return func(u *url.URL) (events.Channel, error) {
		if u.Opaque == "stderr" {
			return NewConsole(stderr), nil
		}
		return NewConsole(stdout), nil
	}
}

func (c *Console) Initialize(ev events.Event) error {
	_, err := fmt.Fprintf(c.w, "%s %s on %d servers %s\n",
		c.st.Info.Render(ui.SymbolArrow),
		c.st.Header.Render(ev.Task),
		ev.Targets,
		c.st.Muted.Render("(run "+shortRunID(ev.RunID)+")"))
	return err
}

func (c *Console) StartServer(ev events.Event) error {
	_, err := fmt.Fprintf(c.w, "%s %s\n", c.st.Muted.Render(ui.SymbolPending), c.st.Host.Render(ev.ServerName()))
	return err
}

func (c *Console) EndServer(ev events.Event) error {
	symbol, style := ui.SymbolSuccess, c.st.Success
	switch ev.Status {
	case events.StatusFailure:
		symbol, style = ui.SymbolFail, c.st.Error
	case events.StatusSkipped:
		symbol, style = ui.SymbolSkipped, c.st.Muted
	}
	line := fmt.Sprintf("%s %s %s", style.Render(symbol), c.st.Host.Render(ev.ServerName()),
		c.st.Muted.Render(ev.Duration.Round(time.Millisecond).String()))
	if ev.Reason != "" {
		line += " " + style.Render(ev.Reason)
	}
	_, err := fmt.Fprintln(c.w, line)
	return err
}

func (c *Console) Log(ev events.Event) error {
	prefix := ""
	if name := ev.ServerName(); name != "" {
		prefix = c.st.Muted.Render(name+" │") + " "
	}

	msg := ev.Message
	switch ev.Level {
	case logger.LevelDebug:
		msg = c.st.Muted.Render(msg)
	case logger.LevelWarn:
		msg = c.st.Warning.Render(ui.SymbolWarning + " " + msg)
	case logger.LevelError:
		msg = c.st.Error.Render(ui.SymbolFail + " " + msg)
	}
	_, err := fmt.Fprintf(c.w, "  %s%s\n", prefix, msg)
	return err
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
