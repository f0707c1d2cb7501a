// Package lock serializes conflicting runs with mkdir-based locks. A local
// lock guards the control node for the whole run; remote locks guard each
// target host for the span of that host's work. Contention fails fast.
package lock

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/logger"
	"github.com/rileyhilliard/herd/pkg/sshutil"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Coordinator acquires the locks of one run. The lock identity is the task
// name plus the control host (local) or the target server (remote), so
// unrelated tasks never contend.
type Coordinator struct {
	cfg     config.LockConfig
	scope   Scope
	task    string
	runID   string
	control string
	log     logger.Logger
}

// NewCoordinator builds a coordinator for one run of task.
func NewCoordinator(cfg config.LockConfig, task, runID string) (*Coordinator, error) {
	scope, err := ParseScope(cfg.Scope)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid lock scope",
			"Set lock.scope to none, local, remote or both")
	}
	if cfg.Dir == "" {
		cfg.Dir = config.DefaultSettings().Lock.Dir
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = config.DefaultRemoteDir
	}
	return &Coordinator{
		cfg:     cfg,
		scope:   scope,
		task:    task,
		runID:   runID,
		control: controlHost(),
		log:     logger.Default(),
	}, nil
}

// SetLogger sets where stale-lock takeovers are reported.
func (c *Coordinator) SetLogger(l logger.Logger) {
	if l != nil {
		c.log = l
	}
}

// Scope returns the configured lock scope.
func (c *Coordinator) Scope() Scope {
	return c.scope
}

// LocalPath is the control-node lock directory for this task.
func (c *Coordinator) LocalPath() string {
	return filepath.Join(c.cfg.Dir, fmt.Sprintf("herd-%s-%s.lock", sanitize(c.task), sanitize(c.control)))
}

// RemotePath is the lock directory on the given server for this task.
func (c *Coordinator) RemotePath(server string) string {
	return filepath.Join(c.cfg.RemoteDir, fmt.Sprintf("herd-%s@%s.lock", sanitize(c.task), sanitize(server)))
}

// AcquireLocal takes the control-node lock. Scopes without a local part get
// a no-op handle.
func (c *Coordinator) AcquireLocal() (*Handle, error) {
	if !c.scope.Local() {
		return &Handle{}, nil
	}
	return c.acquire(localStore{}, ScopeLocal, "local", c.LocalPath())
}

// AcquireRemote takes the lock for server over client. Scopes without a
// remote part get a no-op handle.
func (c *Coordinator) AcquireRemote(client sshutil.SSHClient, server string) (*Handle, error) {
	if !c.scope.Remote() {
		return &Handle{}, nil
	}
	if client == nil {
		return nil, errors.New(errors.ErrLock,
			fmt.Sprintf("Cannot lock %s: no connection", server),
			"Establish an SSH connection first")
	}
	return c.acquire(remoteStore{client: client}, ScopeRemote, server, c.RemotePath(server))
}

func (c *Coordinator) acquire(st store, scope Scope, name, path string) (*Handle, error) {
	if err := st.prepare(filepath.Dir(path)); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrLock,
			fmt.Sprintf("Cannot create lock directory for %s", name),
			"Check permissions on "+filepath.Dir(path))
	}

	info := NewLockInfo(c.task, c.runID)

	// Two passes: the second one follows a stale takeover.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := st.mkdir(path)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				fmt.Sprintf("Failed to create lock %s", path),
				"Check permissions and free space on "+name)
		}

		if created {
			data, err := info.Marshal()
			if err == nil {
				err = st.writeInfo(path, data)
			}
			if err != nil {
				_ = st.remove(path)
				return nil, errors.WrapWithCode(err, errors.ErrLock,
					fmt.Sprintf("Failed to write lock info for %s", name),
					"Check disk space and permissions")
			}
			return &Handle{Scope: scope, Name: name, Path: path, Info: info, store: st}, nil
		}

		holder := readHolder(st, path)
		if attempt == 0 && c.isStale(holder) {
			c.log.Warn("removing stale lock %s held by %s", path, holder)
			if err := st.remove(path); err == nil {
				continue
			}
		}
		return nil, &AlreadyLockedError{Scope: scope, Name: name, Path: path, Holder: holder}
	}

	return nil, &AlreadyLockedError{Scope: scope, Name: name, Path: path, Holder: readHolder(st, path)}
}

func (c *Coordinator) isStale(holder *LockInfo) bool {
	if c.cfg.Stale <= 0 || holder == nil || holder.Started.IsZero() {
		return false
	}
	return holder.Age() > c.cfg.Stale
}

// LocalHolder returns who holds the control-node lock, or nil if it is free
// or unreadable.
func (c *Coordinator) LocalHolder() *LockInfo {
	return readHolder(localStore{}, c.LocalPath())
}

// RemoteHolder returns who holds the lock on server, or nil.
func (c *Coordinator) RemoteHolder(client sshutil.SSHClient, server string) *LockInfo {
	return readHolder(remoteStore{client: client}, c.RemotePath(server))
}

// ForceReleaseLocal removes the control-node lock regardless of holder.
// Use with caution: this is meant for abandoned locks only.
func (c *Coordinator) ForceReleaseLocal() error {
	return forceRemove(localStore{}, "local", c.LocalPath())
}

// ForceReleaseRemote removes the lock on server regardless of holder.
func (c *Coordinator) ForceReleaseRemote(client sshutil.SSHClient, server string) error {
	if client == nil {
		return errors.New(errors.ErrLock,
			fmt.Sprintf("Cannot force release lock on %s: no connection", server),
			"Establish an SSH connection first")
	}
	return forceRemove(remoteStore{client: client}, server, c.RemotePath(server))
}

// Handle is one acquired lock. Release is safe to call more than once and on
// a nil or no-op handle.
type Handle struct {
	Scope Scope
	Name  string
	Path  string
	Info  *LockInfo

	store store
	once  sync.Once
	err   error
}

// Held reports whether the handle owns a lock directory.
func (h *Handle) Held() bool {
	return h != nil && h.store != nil
}

// Release removes the lock directory. Only the first call does any work;
// later calls return the first call's result.
func (h *Handle) Release() error {
	if !h.Held() {
		return nil
	}
	h.once.Do(func() {
		h.err = forceRemove(h.store, h.Name, h.Path)
	})
	return h.err
}

func readHolder(st store, path string) *LockInfo {
	data, err := st.readInfo(path)
	if err != nil {
		return nil
	}
	info, err := ParseLockInfo(data)
	if err != nil {
		return nil
	}
	return info
}

func forceRemove(st store, name, path string) error {
	if err := st.remove(path); err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			fmt.Sprintf("Failed to remove lock %s on %s", path, name),
			"Remove it by hand or run herd unlock")
	}
	return nil
}

func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	return unsafeChars.ReplaceAllString(s, "_")
}
