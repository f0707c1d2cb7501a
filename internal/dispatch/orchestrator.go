// Package dispatch runs a task against a resolved target set, serially or
// through a bounded pool, and aggregates the per-host outcomes.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/rileyhilliard/herd/internal/lock"
	"github.com/rileyhilliard/herd/internal/task"
	"golang.org/x/sync/errgroup"
)

// ErrHostTimeout is the cause recorded for hosts that ran out of budget.
var ErrHostTimeout = stderrors.New("per-host timeout exceeded")

// Orchestrator coordinates one run.
type Orchestrator struct {
	dialer host.Dialer
	locks  *lock.Coordinator
	events *events.Broadcaster
	config Config

	aborted atomic.Bool
}

// NewOrchestrator creates an orchestrator. A nil coordinator means no
// locking.
func NewOrchestrator(d host.Dialer, locks *lock.Coordinator, b *events.Broadcaster, cfg Config) *Orchestrator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = config.DefaultMaxParallel
	}
	return &Orchestrator{
		dialer: d,
		locks:  locks,
		events: b,
		config: cfg,
	}
}

// Run executes t against targets. Validation, host pre-flight checks, local
// lock contention and setup failures are run-fatal and return an error with
// no Result. Everything after that is recorded per host.
func (o *Orchestrator) Run(ctx context.Context, t task.Task, run *task.Context, targets []*config.Server) (*Result, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.Log == nil {
		run.Log = o.events
	}
	o.events.SetRun(run.RunID, run.Task)
	o.aborted.Store(false)

	if err := t.Validate(run); err != nil {
		return nil, taskError(err, fmt.Sprintf("Task '%s' failed validation", run.Task))
	}
	if hv, ok := t.(task.HostValidator); ok {
		for _, s := range targets {
			if err := hv.ValidateHost(run, s); err != nil {
				return nil, taskError(err, fmt.Sprintf("Task '%s' cannot run on %s", run.Task, s.Name))
			}
		}
	}

	localLock, err := o.acquireLocal()
	if err != nil {
		return nil, err
	}
	releaseLocal := func() {
		if localLock == nil {
			return
		}
		if err := localLock.Release(); err != nil {
			o.events.Warn("failed to release local lock: %v", err)
		}
		localLock = nil
	}
	defer releaseLocal()

	start := time.Now()
	o.events.Initialize(len(targets))

	if err := t.Setup(run); err != nil {
		o.events.Error("setup failed: %v", err)
		o.teardown(t, run)
		releaseLocal()
		o.events.Finalize(events.StatusFailure, len(targets), 0, time.Since(start))
		return nil, taskError(err, fmt.Sprintf("Task '%s' setup failed", run.Task))
	}

	result := &Result{RunID: run.RunID, Task: run.Task, Hosts: make([]HostResult, len(targets))}
	if len(targets) == 0 {
		o.events.Warn("no servers matched; nothing to do")
	} else if o.config.Parallel {
		o.runParallel(ctx, t, run, targets, result.Hosts)
	} else {
		o.runSerial(ctx, t, run, targets, result.Hosts)
	}

	result.TeardownErr = o.teardown(t, run)
	releaseLocal()
	result.Aborted = o.aborted.Load()
	result.Duration = time.Since(start)
	result.tally()

	status := events.StatusSuccess
	if !result.Success() {
		status = events.StatusFailure
	}
	o.events.Finalize(status, len(targets), result.Failed, result.Duration)

	return result, nil
}

func (o *Orchestrator) acquireLocal() (*lock.Handle, error) {
	if o.locks == nil {
		return &lock.Handle{}, nil
	}
	h, err := o.locks.AcquireLocal()
	if err != nil {
		if stderrors.Is(err, lock.ErrLocked) {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				"Another run of this task holds the local lock",
				"Wait for it to finish, or run 'herd unlock' if it crashed")
		}
		return nil, err
	}
	return h, nil
}

func (o *Orchestrator) teardown(t task.Task, run *task.Context) error {
	if err := t.Teardown(run); err != nil {
		o.events.Error("teardown failed: %v", err)
		return err
	}
	return nil
}

// runSerial processes hosts one at a time in target order.
func (o *Orchestrator) runSerial(ctx context.Context, t task.Task, run *task.Context, targets []*config.Server, results []HostResult) {
	for i, s := range targets {
		if o.stopped(ctx) {
			results[i] = skipped(s)
			continue
		}
		results[i] = o.runHost(ctx, t, run, s)
		o.noteOutcome(results[i])
	}
}

// runParallel submits hosts in target order to a pool of at most
// MaxParallel concurrent units.
func (o *Orchestrator) runParallel(ctx context.Context, t task.Task, run *task.Context, targets []*config.Server, results []HostResult) {
	var g errgroup.Group
	g.SetLimit(o.config.MaxParallel)

	for i, s := range targets {
		if o.stopped(ctx) {
			results[i] = skipped(s)
			continue
		}
		// Go blocks until a slot is free, so the abort check below sees
		// failures from hosts that finished while we waited.
		g.Go(func() error {
			if o.stopped(ctx) {
				results[i] = skipped(s)
				return nil
			}
			results[i] = o.runHost(ctx, t, run, s)
			o.noteOutcome(results[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) stopped(ctx context.Context) bool {
	return o.aborted.Load() || ctx.Err() != nil
}

func (o *Orchestrator) noteOutcome(r HostResult) {
	if r.Fatal || (o.config.FailFast && r.Status == StatusFailure) {
		if !o.aborted.Swap(true) {
			o.events.Error("aborting remaining servers after failure on %s", r.Server.Name)
		}
	}
}

func skipped(s *config.Server) HostResult {
	return HostResult{Server: s, Status: StatusSkipped, Reason: ReasonAborted}
}

// outcome is what the per-host work reports back.
type outcome struct {
	reason Reason
	err    error
	fatal  bool
}

// runHost is one unit of work: StartServer, connect, lock, execute, unlock,
// EndServer. On timeout the host is failed and its session closed at once,
// but runHost still waits for the worker to return so the pool slot stays
// occupied and no worker outlives the run.
func (o *Orchestrator) runHost(ctx context.Context, t task.Task, run *task.Context, server *config.Server) HostResult {
	start := time.Now()
	o.events.StartServer(server)

	hostCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.config.Timeout > 0 {
		hostCtx, cancel = context.WithTimeout(ctx, o.config.Timeout)
	}
	defer cancel()

	u := &unit{o: o, server: server}
	done := make(chan outcome, 1)
	go func() {
		done <- o.work(hostCtx, u, t, run, server)
	}()

	var out outcome
	var elapsed time.Duration
	select {
	case out = <-done:
		elapsed = time.Since(start)
	case <-hostCtx.Done():
		elapsed = time.Since(start)
		u.finish()
		<-done
		out = outcome{reason: ReasonTimeout, err: ErrHostTimeout}
		if ctx.Err() != nil {
			out.err = ctx.Err()
		}
	}

	res := HostResult{
		Server:   server,
		Status:   StatusSuccess,
		Reason:   out.reason,
		Err:      out.err,
		Fatal:    out.fatal,
		Start:    start,
		Duration: elapsed,
	}
	if out.err != nil {
		res.Status = StatusFailure
		o.events.ForServer(server).Error("%s", res.Detail())
	}
	o.events.EndServer(server, res.Status.String(), res.Reason.String(), res.Duration)
	return res
}

func (o *Orchestrator) work(ctx context.Context, u *unit, t task.Task, run *task.Context, server *config.Server) outcome {
	conn, err := o.dialer.Dial(ctx, server, host.DialOptions{SudoUser: run.SudoUser})
	if err != nil {
		if stderrors.Is(err, host.ErrTimeout) {
			return outcome{reason: ReasonTimeout, err: err}
		}
		return outcome{reason: ReasonConnect, err: err}
	}
	if !u.attach(conn) {
		return outcome{reason: ReasonTimeout, err: ErrHostTimeout}
	}
	defer u.finish()

	if o.locks != nil {
		h, err := o.locks.AcquireRemote(conn.Client, server.Name)
		if err != nil {
			if stderrors.Is(err, lock.ErrLocked) {
				return outcome{reason: ReasonLocked, err: err}
			}
			return outcome{reason: ReasonLock, err: err}
		}
		u.hold(h)
	}
	if ctx.Err() != nil {
		return outcome{reason: ReasonTimeout, err: ErrHostTimeout}
	}

	err = t.Execute(ctx, run, &task.Host{
		Server: server,
		Conn:   conn,
		Log:    o.events.ForServer(server),
	})
	if err != nil {
		return outcome{reason: ReasonTask, err: err, fatal: task.IsFatal(err)}
	}
	return outcome{}
}

// unit owns the connection and remote lock of one host so that either the
// worker or the timeout path can clean them up, exactly once.
type unit struct {
	o      *Orchestrator
	server *config.Server

	mu       sync.Mutex
	conn     *host.Connection
	handle   *lock.Handle
	finished bool
	once     sync.Once
}

// attach records conn. It returns false, closing conn, when the unit was
// already finished by a timeout.
func (u *unit) attach(conn *host.Connection) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		conn.Close()
		return false
	}
	u.conn = conn
	return true
}

func (u *unit) hold(h *lock.Handle) {
	u.mu.Lock()
	finished := u.finished
	if !finished {
		u.handle = h
	}
	u.mu.Unlock()
	if finished {
		u.release(h)
	}
}

// finish releases the remote lock, then closes the session.
func (u *unit) finish() {
	u.once.Do(func() {
		u.mu.Lock()
		u.finished = true
		h, conn := u.handle, u.conn
		u.mu.Unlock()

		u.release(h)
		if conn != nil {
			conn.Close()
		}
	})
}

func (u *unit) release(h *lock.Handle) {
	if err := h.Release(); err != nil {
		u.o.events.ForServer(u.server).Warn("failed to release lock: %v", err)
	}
}

func taskError(err error, message string) error {
	return errors.WrapWithCode(err, errors.ErrTask, message, "")
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "✗"))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
