// Package task defines the contract every herd task implements and the run
// context it is bound to.
package task

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/rileyhilliard/herd/internal/logger"
)

// Task is one named unit of automation. Validate, Setup and Teardown run
// once per run on the control node; Execute runs once per target host,
// possibly concurrently, so it must not mutate shared state without
// synchronization.
type Task interface {
	Help() string
	Validate(run *Context) error
	Setup(run *Context) error
	Execute(ctx context.Context, run *Context, h *Host) error
	Teardown(run *Context) error
}

// HostValidator is implemented by tasks that can check each target before
// anything is dispatched. Any failure aborts the run.
type HostValidator interface {
	ValidateHost(run *Context, server *config.Server) error
}

// Base supplies no-op Validate, Setup and Teardown. Tasks embed it and
// implement Execute and Help.
type Base struct{}

func (Base) Validate(*Context) error { return nil }
func (Base) Setup(*Context) error    { return nil }
func (Base) Teardown(*Context) error { return nil }

// Host is what Execute gets for one target.
type Host struct {
	Server *config.Server
	Conn   *host.Connection
	Log    logger.Logger // messages carry the server name
}

// Context is the shared state of one run. It is read-only once dispatch
// starts.
type Context struct {
	RunID    string
	Task     string
	Args     []string
	Options  map[string]string
	SudoUser string
	Timeout  time.Duration
	Log      logger.Logger
}

// Option returns the named -o option, or def when unset.
func (c *Context) Option(key, def string) string {
	if v, ok := c.Options[key]; ok {
		return v
	}
	return def
}

// BoolOption parses the named option as a bool; unset is false.
func (c *Context) BoolOption(key string) (bool, error) {
	v, ok := c.Options[key]
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.WrapWithCode(err, errors.ErrTask,
			"Invalid value for option '"+key+"'",
			"Use true or false")
	}
	return b, nil
}

// ParseOptions turns key=value pairs into a map. Later keys win.
func ParseOptions(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.New(errors.ErrTask,
				"Invalid option '"+p+"'",
				"Options look like -o key=value")
		}
		out[k] = v
	}
	return out, nil
}

// fatalError marks a task failure that aborts the remaining hosts.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as a declared-fatal condition: the orchestrator skips
// every host not yet dispatched.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked by Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return stderrors.As(err, &f)
}
