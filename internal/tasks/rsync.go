package tasks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/task"
	"github.com/rileyhilliard/herd/internal/util"
)

// controlSocketDir holds the ssh ControlMaster sockets rsync reuses
// between hosts of one run.
var controlSocketDir = filepath.Join(os.TempDir(), "herd-ssh")

// Seams for tests.
var (
	lookPath = exec.LookPath
	runLocal = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
)

// RsyncOptions shape the rsync command line.
type RsyncOptions struct {
	Delete   bool
	Exclude  []string
	SudoUser string
}

// Rsync pushes a local directory to every host with the local rsync binary.
type Rsync struct {
	task.Base
	rsyncPath string
	src       string
	dest      string
	opts      RsyncOptions
}

// NewRsync creates the rsync task.
func NewRsync() task.Task {
	return &Rsync{}
}

func (r *Rsync) Help() string {
	return "Push a local directory to each server with rsync: rsync <local-dir> <remote-dir> [-o delete=true] [-o exclude=a,b]"
}

func (r *Rsync) Validate(run *task.Context) error {
	path, err := lookPath("rsync")
	if err != nil {
		return errors.New(errors.ErrTask,
			"rsync isn't installed locally",
			"Grab it with: brew install rsync (macOS) or apt install rsync (Linux)")
	}
	r.rsyncPath = path

	if len(run.Args) != 2 {
		return errors.New(errors.ErrTask,
			"The rsync task takes a local directory and a remote directory",
			"Example: herd run rsync -r web ./public /srv/www")
	}
	r.src, r.dest = run.Args[0], run.Args[1]
	info, err := os.Stat(r.src)
	if err != nil || !info.IsDir() {
		return errors.New(errors.ErrTask,
			fmt.Sprintf("%s is not a local directory", r.src), "")
	}

	del, err := run.BoolOption("delete")
	if err != nil {
		return err
	}
	r.opts = RsyncOptions{Delete: del, SudoUser: run.SudoUser}
	if ex := run.Option("exclude", ""); ex != "" {
		for _, p := range strings.Split(ex, ",") {
			if p = strings.TrimSpace(p); p != "" {
				r.opts.Exclude = append(r.opts.Exclude, p)
			}
		}
	}
	return nil
}

func (r *Rsync) Setup(*task.Context) error {
	// rsync still works without connection reuse.
	_ = os.MkdirAll(controlSocketDir, 0o700)
	return nil
}

func (r *Rsync) Execute(ctx context.Context, run *task.Context, h *task.Host) error {
	// rsync won't create missing parents.
	if err := runChecked(h, "mkdir -p "+util.ShellQuotePreserveTilde(r.dest)); err != nil {
		return err
	}

	args := BuildRsyncArgs(h.Server, r.src, r.dest, r.opts)
	h.Log.Debug("rsync %s", strings.Join(args, " "))
	out, err := runLocal(ctx, r.rsyncPath, args...)
	if err != nil {
		logLines(h.Log.Warn, out)
		return rsyncError(err, h.Server.Name)
	}
	logLines(h.Log.Debug, out)
	h.Log.Info("synced %s to %s", r.src, r.dest)
	return nil
}

// BuildRsyncArgs constructs the rsync argument list for one server.
func BuildRsyncArgs(server *config.Server, localDir, remoteDir string, opts RsyncOptions) []string {
	// Trailing slash: sync the contents, not the directory itself.
	localDir = filepath.Clean(localDir)
	if !strings.HasSuffix(localDir, "/") {
		localDir += "/"
	}
	if !strings.HasSuffix(remoteDir, "/") {
		remoteDir += "/"
	}

	dest := server.Host()
	if server.User != "" {
		dest = server.User + "@" + dest
	}

	args := []string{"-az"}
	if opts.Delete {
		args = append(args, "--delete", "--force")
	}

	// BatchMode keeps ssh from prompting; there is no terminal attached.
	sshCmd := fmt.Sprintf("ssh -o ControlMaster=auto -o ControlPath=%s/%%h-%%p -o ControlPersist=60 -o BatchMode=yes",
		controlSocketDir)
	if server.Port != 0 && server.Port != config.DefaultPort {
		sshCmd += " -p " + strconv.Itoa(server.Port)
	}
	args = append(args, "-e", sshCmd)

	if opts.SudoUser != "" {
		args = append(args, "--rsync-path=sudo -n -u "+opts.SudoUser+" rsync")
	}
	for _, pattern := range opts.Exclude {
		args = append(args, "--exclude="+pattern)
	}

	return append(args, localDir, dest+":"+remoteDir)
}

// rsyncError maps rsync exit codes to readable failures.
func rsyncError(err error, hostName string) error {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return errors.WrapWithCode(err, errors.ErrExec,
			"rsync failed",
			"Try running rsync manually to diagnose")
	}

	var msg, suggestion string
	switch code := exitErr.ExitCode(); code {
	case 1:
		msg = "rsync syntax or usage error"
		suggestion = "Check the exclude patterns for invalid options"
	case 2:
		msg = "rsync protocol incompatibility"
		suggestion = "Ensure rsync versions are compatible on local and remote"
	case 3:
		msg = "File selection error"
		suggestion = "Check that source paths exist and are readable"
	case 5:
		msg = "Error starting client-server protocol"
		suggestion = "Check the remote rsync installation"
	case 10, 12:
		msg = "Error in rsync data stream"
		suggestion = "Check network connectivity to the remote host"
	case 11:
		msg = "Error in file I/O"
		suggestion = "Check disk space and file permissions on both sides"
	case 23:
		msg = "Partial transfer due to error"
		suggestion = "Some files may have permission issues"
	case 24:
		msg = "Partial transfer due to vanished source files"
		suggestion = "Files changed during the sync; re-run for this host"
	case 255:
		msg = fmt.Sprintf("SSH connection to '%s' failed", hostName)
		suggestion = "Check that the host is reachable: ssh " + hostName
	default:
		msg = fmt.Sprintf("rsync exited with code %d", code)
	}
	return errors.WrapWithCode(err, errors.ErrExec, msg, suggestion)
}
