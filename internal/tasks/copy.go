package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/task"
	"github.com/rileyhilliard/herd/internal/util"
)

// Copy uploads one local file to the same path on every host.
type Copy struct {
	task.Base
	src  string
	dest string
	mode string
	data []byte
}

// NewCopy creates the copy task.
func NewCopy() task.Task {
	return &Copy{}
}

func (c *Copy) Help() string {
	return "Upload a local file to each server: copy <local> <remote> [-o mode=0644]"
}

func (c *Copy) Validate(run *task.Context) error {
	if len(run.Args) != 2 {
		return errors.New(errors.ErrTask,
			"The copy task takes a local file and a remote path",
			"Example: herd run copy -r web ./nginx.conf /etc/nginx/nginx.conf")
	}
	c.src, c.dest = run.Args[0], run.Args[1]
	if err := checkLocalFile(c.src); err != nil {
		return err
	}
	if strings.HasSuffix(c.dest, "/") {
		return errors.New(errors.ErrTask,
			"The copy destination must be a file path, not a directory",
			"Add the file name: "+c.dest+"name")
	}
	mode, err := parseMode(run.Option("mode", ""))
	if err != nil {
		return err
	}
	c.mode = mode
	return nil
}

// Setup reads the source once; Execute shares the bytes across hosts.
func (c *Copy) Setup(*task.Context) error {
	data, err := os.ReadFile(c.src)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTask, "Couldn't read "+c.src, "")
	}
	c.data = data
	return nil
}

func (c *Copy) Execute(ctx context.Context, run *task.Context, h *task.Host) error {
	if err := h.Conn.Upload(bytes.NewReader(c.data), c.dest); err != nil {
		return err
	}
	h.Log.Info("uploaded %s (%d bytes)", c.dest, len(c.data))

	if c.mode == "" {
		return nil
	}
	return runChecked(h, fmt.Sprintf("chmod %s %s", c.mode, util.ShellQuote(c.dest)))
}

// checkLocalFile fails unless path is a readable regular file.
func checkLocalFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTask,
			fmt.Sprintf("Can't find local file %s", path), "")
	}
	if !info.Mode().IsRegular() {
		return errors.New(errors.ErrTask,
			fmt.Sprintf("%s is not a regular file", path), "")
	}
	return nil
}

// parseMode accepts an octal file mode such as 644 or 0755.
func parseMode(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || m > 0o7777 {
		return "", errors.New(errors.ErrTask,
			fmt.Sprintf("Invalid file mode '%s'", s),
			"Use an octal mode such as mode=0644")
	}
	return fmt.Sprintf("%04o", m), nil
}

// runChecked runs cmd and turns a non-zero exit into an error carrying the
// command's stderr.
func runChecked(h *task.Host, cmd string) error {
	_, stderr, code, err := h.Conn.Run(cmd)
	if err != nil {
		return err
	}
	if code != 0 {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", code)
		}
		return fmt.Errorf("%s: %s", firstWord(cmd), msg)
	}
	return nil
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
