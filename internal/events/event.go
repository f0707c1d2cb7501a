// Package events fans run lifecycle and log messages out to observer
// channels. Each channel sees one event at a time, in emission order.
//
// Levels follow logger.Level. Debug and info are filtered against the
// minimum level; warn and error always reach every channel and fall back to
// stderr when nothing else could take them.
package events

import (
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/logger"
)

// Kind tags an Event.
type Kind int

const (
	KindInitialize Kind = iota
	KindFinalize
	KindStartServer
	KindEndServer
	KindLog
)

func (k Kind) String() string {
	switch k {
	case KindInitialize:
		return "initialize"
	case KindFinalize:
		return "finalize"
	case KindStartServer:
		return "start_server"
	case KindEndServer:
		return "end_server"
	case KindLog:
		return "log"
	default:
		return "unknown"
	}
}

// Host outcome statuses carried by EndServer and Finalize events.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Event is one lifecycle or log message.
type Event struct {
	Kind   Kind
	Time   time.Time
	RunID  string
	Task   string
	Server *config.Server // nil for run-wide events

	// Log events.
	Level   logger.Level
	Message string

	// EndServer and Finalize events.
	Status   string
	Reason   string
	Duration time.Duration
	Targets  int
	Failed   int
}

// ServerName returns the event's host name, or "" for run-wide events.
func (e Event) ServerName() string {
	if e.Server == nil {
		return ""
	}
	return e.Server.Name
}
