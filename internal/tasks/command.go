package tasks

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/task"
)

// Command runs its arguments as one shell command on every host.
type Command struct {
	task.Base
	fatal bool
}

// NewCommand creates the command task.
func NewCommand() task.Task {
	return &Command{}
}

func (c *Command) Help() string {
	return "Run a shell command on each server (-o fatal=true aborts the run on the first failure)"
}

func (c *Command) Validate(run *task.Context) error {
	if len(run.Args) == 0 || strings.TrimSpace(strings.Join(run.Args, " ")) == "" {
		return errors.New(errors.ErrTask,
			"The command task needs a command to run",
			"Example: herd run command -r web -- uptime")
	}
	fatal, err := run.BoolOption("fatal")
	if err != nil {
		return err
	}
	c.fatal = fatal
	return nil
}

func (c *Command) Execute(ctx context.Context, run *task.Context, h *task.Host) error {
	cmd := strings.Join(run.Args, " ")
	h.Log.Debug("$ %s", cmd)

	stdout, stderr, code, err := h.Conn.Run(cmd)
	logLines(h.Log.Info, stdout)
	logLines(h.Log.Warn, stderr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Couldn't run command on %s", h.Server.Name), "")
	}
	if code != 0 {
		err := fmt.Errorf("command exited with status %d", code)
		if c.fatal {
			return task.Fatal(err)
		}
		return err
	}
	return nil
}

// logLines sends each non-empty line of out to log.
func logLines(log func(string, ...interface{}), out []byte) {
	if len(out) == 0 {
		return
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			log("%s", line)
		}
	}
}
