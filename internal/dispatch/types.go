package dispatch

import (
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/events"
)

// Config holds the execution policy of one run.
type Config struct {
	Parallel    bool          // Run hosts concurrently
	MaxParallel int           // Pool bound in parallel mode (0 = DefaultMaxParallel)
	Timeout     time.Duration // Per-host budget for connect, lock and execute (0 = none)
	FailFast    bool          // Treat any host failure as fatal
}

// DefaultConfig returns a serial Config with the default pool bound.
func DefaultConfig() Config {
	return Config{
		Parallel:    false,
		MaxParallel: config.DefaultMaxParallel,
	}
}

// Status is the outcome of one host.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkipped
)

// String returns the event status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return events.StatusSuccess
	case StatusFailure:
		return events.StatusFailure
	case StatusSkipped:
		return events.StatusSkipped
	default:
		return "unknown"
	}
}

// Reason says why a host failed.
type Reason int

const (
	ReasonNone    Reason = iota
	ReasonConnect        // transport could not connect or authenticate
	ReasonTimeout        // the per-host budget ran out
	ReasonLocked         // another run holds the host's lock
	ReasonLock           // the lock could not be taken for another reason
	ReasonTask           // the task reported a failure
	ReasonAborted        // skipped after a fatal condition
)

// String returns the reason as shown in reports.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonConnect:
		return "connect"
	case ReasonTimeout:
		return "timeout"
	case ReasonLocked:
		return "locked"
	case ReasonLock:
		return "lock"
	case ReasonTask:
		return "task"
	case ReasonAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// HostResult is the outcome of one target.
type HostResult struct {
	Server   *config.Server
	Status   Status
	Reason   Reason
	Err      error
	Fatal    bool // the task declared the failure fatal
	Start    time.Time
	Duration time.Duration
}

// Success returns true if the host succeeded.
func (r *HostResult) Success() bool {
	return r.Status == StatusSuccess
}

// Detail returns "reason: error" for failed hosts and "" otherwise.
func (r *HostResult) Detail() string {
	switch {
	case r.Status == StatusSuccess:
		return ""
	case r.Err == nil:
		return r.Reason.String()
	default:
		return r.Reason.String() + ": " + firstLine(r.Err.Error())
	}
}

// Result holds the aggregate outcome of a run. Hosts follows target order.
type Result struct {
	RunID       string
	Task        string
	Hosts       []HostResult
	Duration    time.Duration
	Succeeded   int
	Failed      int
	Skipped     int
	Aborted     bool  // a fatal condition stopped dispatch early
	TeardownErr error // teardown failed after dispatch
}

// Success returns true if every dispatched host succeeded, none was skipped
// and teardown went through. Zero targets is a success.
func (r *Result) Success() bool {
	return r.Failed == 0 && r.Skipped == 0 && r.TeardownErr == nil
}

// Failures returns the failed hosts in target order.
func (r *Result) Failures() []HostResult {
	var out []HostResult
	for _, h := range r.Hosts {
		if h.Status == StatusFailure {
			out = append(out, h)
		}
	}
	return out
}

// Host returns the result for the named server.
func (r *Result) Host(name string) (HostResult, bool) {
	for _, h := range r.Hosts {
		if h.Server != nil && h.Server.Name == name {
			return h, true
		}
	}
	return HostResult{}, false
}

func (r *Result) tally() {
	r.Succeeded, r.Failed, r.Skipped = 0, 0, 0
	for _, h := range r.Hosts {
		switch h.Status {
		case StatusSuccess:
			r.Succeeded++
		case StatusFailure:
			r.Failed++
		case StatusSkipped:
			r.Skipped++
		}
	}
}
