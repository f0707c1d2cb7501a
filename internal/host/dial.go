package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/pkg/sshutil"
)

// DialOptions are per-run connection settings layered over the server record.
type DialOptions struct {
	// Timeout bounds connect plus handshake. Zero uses the server's timeout.
	Timeout  time.Duration
	SudoUser string
}

// Dialer opens a Connection to a server. The orchestrator takes one so tests
// can substitute fakes for SSH.
type Dialer interface {
	Dial(ctx context.Context, server *config.Server, opts DialOptions) (*Connection, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, server *config.Server, opts DialOptions) (*Connection, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, server *config.Server, opts DialOptions) (*Connection, error) {
	return f(ctx, server, opts)
}

// SSHDialer connects over SSH with the settings from the server record.
type SSHDialer struct{}

// Dial establishes the SSH session. Errors are *DialError.
func (SSHDialer) Dial(ctx context.Context, server *config.Server, opts DialOptions) (*Connection, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = server.Timeout
	}

	start := time.Now()
	client, err := sshutil.Dial(ctx, server.Host(), sshutil.DialOptions{
		User:    server.User,
		Port:    server.Port,
		Timeout: timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, &DialError{Server: server.Name, Reason: FailTimeout, Cause: err}
		}
		return nil, categorizeDialError(server.Name, err)
	}

	return &Connection{
		Name:     server.Name,
		Server:   server,
		Client:   client,
		SudoUser: opts.SudoUser,
		Latency:  time.Since(start),
	}, nil
}

// DialError is a failed connection attempt with a categorized reason.
type DialError struct {
	Server string
	Reason FailReason
	Cause  error
}

// FailReason categorizes why a dial failed.
type FailReason int

const (
	FailUnknown FailReason = iota
	FailTimeout
	FailRefused
	FailUnreachable
	FailAuth
	FailHostKey
)

// String returns a human-readable description of the failure reason.
func (r FailReason) String() string {
	switch r {
	case FailTimeout:
		return "connection timed out"
	case FailRefused:
		return "connection refused"
	case FailUnreachable:
		return "host unreachable"
	case FailAuth:
		return "authentication failed"
	case FailHostKey:
		return "host key verification failed"
	default:
		return "connection failed"
	}
}

func (e *DialError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connect to %s: %s (%s)", e.Server, e.Reason, firstLine(e.Cause.Error()))
	}
	return fmt.Sprintf("connect to %s: %s", e.Server, e.Reason)
}

func (e *DialError) Unwrap() error {
	return e.Cause
}

// Is maps the reason onto ErrTimeout, ErrAuth or ErrConnect.
func (e *DialError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Reason == FailTimeout
	case ErrAuth:
		return e.Reason == FailAuth || e.Reason == FailHostKey
	case ErrConnect:
		return e.Reason != FailTimeout && e.Reason != FailAuth && e.Reason != FailHostKey
	}
	return false
}

// categorizeDialError converts a generic error into a DialError with
// a categorized failure reason.
func categorizeDialError(server string, err error) *DialError {
	if err == nil {
		return nil
	}

	dialErr := &DialError{
		Server: server,
		Reason: FailUnknown,
		Cause:  err,
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		dialErr.Reason = FailTimeout
		return dialErr
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out") {
		dialErr.Reason = FailTimeout
		return dialErr
	}

	if strings.Contains(errStr, "connection refused") {
		dialErr.Reason = FailRefused
		return dialErr
	}

	if strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "host is down") ||
		strings.Contains(errStr, "no such host") {
		dialErr.Reason = FailUnreachable
		return dialErr
	}

	if strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "authentication failed") ||
		strings.Contains(errStr, "no ssh auth methods") ||
		strings.Contains(errStr, "encrypted") {
		dialErr.Reason = FailAuth
		return dialErr
	}

	if strings.Contains(errStr, "host key") {
		dialErr.Reason = FailHostKey
		return dialErr
	}

	return dialErr
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "✗"))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
