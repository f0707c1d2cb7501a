package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/logger"
	"golang.org/x/crypto/ssh"
)

const defaultSSHPort = 22

// Client is an established SSH connection to one host.
type Client struct {
	*ssh.Client
	Host    string // name passed to Dial
	Address string // host:port actually dialed
	User    string
}

// WarningHandler receives non-fatal transport warnings. Nil sends them to
// logger.Default.
var WarningHandler func(message string)

var matchWarningOnce sync.Once

func warn(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
		return
	}
	logger.Default().Warn("%s", message)
}

// DialOptions overrides connection settings for one dial. Zero values fall
// back to ~/.ssh/config and then to port 22 and $USER.
type DialOptions struct {
	User    string
	Port    int
	Timeout time.Duration
}

// Dial connects to host, which may be an ssh config alias, an address,
// user@address or address:port. ctx and opts.Timeout together bound the TCP
// connect and the handshake.
func Dial(ctx context.Context, host string, opts DialOptions) (*Client, error) {
	ep := resolveEndpoint(host)
	if opts.User != "" {
		ep.user = opts.User
	}
	if opts.Port > 0 {
		ep.port = opts.Port
	}

	cfg, err := clientConfig(ep)
	if err != nil {
		var herdErr *errors.Error
		if stderrors.As(err, &herdErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't set up SSH for '%s'", host),
			"Check your keys are loaded: ssh-add -l")
	}

	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	address := ep.address()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	// ssh.NewClientConn ignores ctx, so the deadline bounds the handshake.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	if err != nil {
		conn.Close()
		var mismatch *HostKeyMismatchError
		if stderrors.As(err, &mismatch) {
			return nil, errors.New(errors.ErrSSH, mismatch.Error(), mismatch.Suggestion())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err, ep.encryptedKeys))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    host,
		Address: address,
		User:    ep.user,
	}, nil
}

// Close closes the connection. It is safe on a zero Client.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

func (c *Client) newSSHSession() (*ssh.Session, error) {
	return c.Client.NewSession()
}

func (c *Client) GetHost() string    { return c.Host }
func (c *Client) GetAddress() string { return c.Address }

// endpoint is the fully resolved dial target.
type endpoint struct {
	hostname      string
	port          int
	user          string
	identityFile  string
	encryptedKeys []string
}

func (e *endpoint) address() string {
	return net.JoinHostPort(e.hostname, strconv.Itoa(e.port))
}

// resolveEndpoint splits user@host:port and fills the gaps from
// ~/.ssh/config. An explicit user beats HERD_SSH_USER, which beats the
// config file.
func resolveEndpoint(host string) *endpoint {
	ep := &endpoint{port: defaultSSHPort, user: currentUser()}

	userPinned := true
	if user, rest, ok := strings.Cut(host, "@"); ok {
		ep.user = user
		host = rest
	} else if env := os.Getenv("HERD_SSH_USER"); env != "" {
		ep.user = env
	} else {
		userPinned = false
	}

	if i := strings.LastIndex(host, ":"); i != -1 {
		if p, err := strconv.Atoi(host[i+1:]); err == nil && p > 0 {
			ep.port = p
			host = host[:i]
		}
	}
	ep.hostname = host

	content, matchLine, err := preprocessSSHConfig(filepath.Join(homeDir(), ".ssh", "config"))
	if err != nil {
		return ep
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return ep
	}

	found := false
	if v, _ := cfg.Get(host, "HostName"); v != "" {
		ep.hostname = v
		found = true
	}
	if v, _ := cfg.Get(host, "Port"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			ep.port = p
		}
		found = true
	}
	if v, _ := cfg.Get(host, "User"); v != "" && !userPinned {
		ep.user = v
		found = true
	}
	if v, _ := cfg.Get(host, "IdentityFile"); v != "" {
		ep.identityFile = expandPath(v)
		found = true
	}

	if matchLine > 0 && !found {
		matchWarningOnce.Do(func() {
			warn(fmt.Sprintf(
				"Host '%s' not found in SSH config; entries after the Match block at line %d are not read. "+
					"Move the host above line %d in ~/.ssh/config.",
				host, matchLine, matchLine))
		})
	}
	return ep
}

// preprocessSSHConfig returns the config text before the first Match
// directive, which ssh_config cannot parse, and that directive's 1-based
// line number (0 when absent).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			return []byte(strings.Join(lines[:i], "\n")), i + 1, nil
		}
	}
	return content, 0, nil
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
