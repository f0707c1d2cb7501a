package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/task"
	"github.com/rileyhilliard/herd/internal/util"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Patch applies a local patch file inside a directory on every host.
type Patch struct {
	task.Base
	src   string
	dir   string
	strip int
	data  []byte
}

// NewPatch creates the patch task.
func NewPatch() task.Task {
	return &Patch{}
}

func (p *Patch) Help() string {
	return "Apply a patch file in a remote directory: patch <file.patch> <remote-dir> [-o strip=1]"
}

func (p *Patch) Validate(run *task.Context) error {
	if len(run.Args) != 2 {
		return errors.New(errors.ErrTask,
			"The patch task takes a patch file and a remote directory",
			"Example: herd run patch -r web ./fix.patch /srv/app")
	}
	p.src, p.dir = run.Args[0], run.Args[1]
	if err := checkLocalFile(p.src); err != nil {
		return err
	}
	strip, err := strconv.Atoi(run.Option("strip", "1"))
	if err != nil || strip < 0 {
		return errors.New(errors.ErrTask,
			fmt.Sprintf("Invalid strip level '%s'", run.Option("strip", "")),
			"Use a non-negative number, e.g. -o strip=1")
	}
	p.strip = strip
	return nil
}

func (p *Patch) Setup(*task.Context) error {
	data, err := os.ReadFile(p.src)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTask, "Couldn't read "+p.src, "")
	}
	p.data = data
	return nil
}

func (p *Patch) Execute(ctx context.Context, run *task.Context, h *task.Host) error {
	tmp := p.tempPath(run, h.Server.Name)
	if err := h.Conn.Upload(bytes.NewReader(p.data), tmp); err != nil {
		return err
	}
	defer func() {
		if _, _, _, err := h.Conn.Run("rm -f " + util.ShellQuote(tmp)); err != nil {
			h.Log.Warn("couldn't remove %s: %v", tmp, err)
		}
	}()

	cmd := fmt.Sprintf("cd %s && patch -p%d --forward --batch < %s",
		util.ShellQuote(p.dir), p.strip, util.ShellQuote(tmp))
	stdout, stderr, code, err := h.Conn.Run(cmd)
	logLines(h.Log.Debug, stdout)
	if err != nil {
		return err
	}
	if code != 0 {
		logLines(h.Log.Warn, stderr)
		return fmt.Errorf("patch exited with status %d in %s", code, p.dir)
	}
	h.Log.Info("patched %s", p.dir)
	return nil
}

// tempPath is unique per run and host so parallel runs never share a file.
func (p *Patch) tempPath(run *task.Context, server string) string {
	return fmt.Sprintf("/tmp/herd-%s-%s.patch", unsafeName.ReplaceAllString(run.RunID, "_"),
		unsafeName.ReplaceAllString(server, "_"))
}
