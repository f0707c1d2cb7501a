package host

import (
	"io"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/util"
	"github.com/rileyhilliard/herd/pkg/sshutil"
)

// Connection is an open transport session to one target server.
type Connection struct {
	Name     string            // The server name from the inventory
	Server   *config.Server    // The inventory record (shared, read-only)
	Client   sshutil.SSHClient // The active SSH client
	SudoUser string            // When set, Run and RunStream go through sudo
	Latency  time.Duration     // Time taken to connect
}

// Run executes cmd on the server, wrapped in sudo when SudoUser is set.
func (c *Connection) Run(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if err := ValidateConnection(c); err != nil {
		return nil, nil, -1, err
	}
	return c.Client.Exec(c.wrap(cmd))
}

// RunStream is Run with output streamed to the given writers.
func (c *Connection) RunStream(cmd string, stdout, stderr io.Writer) (int, error) {
	if err := ValidateConnection(c); err != nil {
		return -1, err
	}
	return c.Client.ExecStream(c.wrap(cmd), stdout, stderr)
}

// Upload writes r to remotePath. Uploads always use the login user; follow
// up with Run (which honours sudo) to move or chown the file.
func (c *Connection) Upload(r io.Reader, remotePath string) error {
	if err := ValidateConnection(c); err != nil {
		return err
	}
	return c.Client.Upload(r, remotePath)
}

// Close closes the SSH connection.
func (c *Connection) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

func (c *Connection) wrap(cmd string) string {
	if c.SudoUser == "" {
		return cmd
	}
	return "sudo -n -u " + util.ShellQuote(c.SudoUser) + " -- sh -c " + util.ShellQuote(cmd)
}
