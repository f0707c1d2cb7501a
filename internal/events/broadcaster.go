package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/logger"
)

// subscriber is a registered channel with its own filter and replay buffer.
// A buffered subscriber is flushed once, at Finalize, and receives nothing
// afterwards.
type subscriber struct {
	ch      Channel
	min     logger.Level
	buffer  []Event
	flushed bool
}

// Broadcaster delivers events to every registered channel in registration
// order. It is safe for concurrent use; emission is serialized so channels
// never see interleaved calls.
type Broadcaster struct {
	mu       sync.Mutex
	subs     []*subscriber
	min      logger.Level
	runID    string
	task     string
	fallback io.Writer
	now      func() time.Time
}

var _ logger.Logger = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster with the run's minimum level.
func NewBroadcaster(min logger.Level) *Broadcaster {
	return &Broadcaster{
		min:      min,
		fallback: os.Stderr,
		now:      time.Now,
	}
}

// SetRun stamps subsequent events with the run identifier and task name.
func (b *Broadcaster) SetRun(runID, task string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runID = runID
	b.task = task
}

// SetFallback replaces the writer used when warn or error events have
// nowhere else to go.
func (b *Broadcaster) SetFallback(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = w
}

// Level returns the run's minimum level.
func (b *Broadcaster) Level() logger.Level {
	return b.min
}

// Add registers a channel filtered at the run's minimum level.
func (b *Broadcaster) Add(ch Channel) {
	b.AddWithLevel(ch, b.min)
}

// AddWithLevel registers a channel with its own minimum level.
func (b *Broadcaster) AddWithLevel(ch Channel, min logger.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, &subscriber{ch: ch, min: min})
}

// Len returns the number of registered channels.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Emit delivers ev. It never fails: a warn or error event that no channel
// accepted, including one emitted after buffered channels have flushed, is
// written to the fallback. Other channel errors are dropped.
func (b *Broadcaster) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Time.IsZero() {
		ev.Time = b.now()
	}
	if ev.RunID == "" {
		ev.RunID = b.runID
	}
	if ev.Task == "" {
		ev.Task = b.task
	}

	urgent := ev.Kind == KindLog && ev.Level >= logger.LevelWarn
	handled := false
	for _, s := range b.subs {
		if ev.Kind == KindLog && !urgent && ev.Level < s.min {
			continue
		}

		if s.ch.Delivery() == Buffered {
			if s.flushed {
				continue
			}
			if ev.Kind != KindFinalize {
				s.buffer = append(s.buffer, ev)
				handled = true
				continue
			}
			b.flush(s)
		}

		if err := dispatch(s.ch, ev); err != nil {
			if urgent {
				b.writeFallback(ev, err)
				handled = true
			}
			continue
		}
		handled = true
	}

	if urgent && !handled {
		b.writeFallback(ev, nil)
	}
}

// flush replays a buffered channel's events. Called with mu held.
func (b *Broadcaster) flush(s *subscriber) {
	for _, ev := range s.buffer {
		if err := dispatch(s.ch, ev); err != nil && ev.Kind == KindLog && ev.Level >= logger.LevelWarn {
			b.writeFallback(ev, err)
		}
	}
	s.buffer = nil
	s.flushed = true
}

func (b *Broadcaster) writeFallback(ev Event, chErr error) {
	if b.fallback == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString("herd: [")
	sb.WriteString(ev.Level.String())
	sb.WriteString("] ")
	if name := ev.ServerName(); name != "" {
		sb.WriteString(name)
		sb.WriteString(": ")
	}
	sb.WriteString(ev.Message)
	if chErr != nil {
		sb.WriteString(" (channel error: ")
		sb.WriteString(chErr.Error())
		sb.WriteString(")")
	}
	sb.WriteString("\n")
	_, _ = io.WriteString(b.fallback, sb.String())
}

// Close closes every channel and returns the first error.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for _, s := range b.subs {
		if err := s.ch.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Initialize emits the run start event.
func (b *Broadcaster) Initialize(targets int) {
	b.Emit(Event{Kind: KindInitialize, Targets: targets})
}

// Finalize emits the run end event, flushing buffered channels.
func (b *Broadcaster) Finalize(status string, targets, failed int, elapsed time.Duration) {
	b.Emit(Event{Kind: KindFinalize, Status: status, Targets: targets, Failed: failed, Duration: elapsed})
}

// StartServer emits the start of one host's work.
func (b *Broadcaster) StartServer(server *config.Server) {
	b.Emit(Event{Kind: KindStartServer, Server: server})
}

// EndServer emits the end of one host's work with its outcome.
func (b *Broadcaster) EndServer(server *config.Server, status, reason string, elapsed time.Duration) {
	b.Emit(Event{Kind: KindEndServer, Server: server, Status: status, Reason: reason, Duration: elapsed})
}

func (b *Broadcaster) log(server *config.Server, level logger.Level, format string, args ...interface{}) {
	b.Emit(Event{Kind: KindLog, Server: server, Level: level, Message: fmt.Sprintf(format, args...)})
}

func (b *Broadcaster) Debug(format string, args ...interface{}) {
	b.log(nil, logger.LevelDebug, format, args...)
}

func (b *Broadcaster) Info(format string, args ...interface{}) {
	b.log(nil, logger.LevelInfo, format, args...)
}

func (b *Broadcaster) Warn(format string, args ...interface{}) {
	b.log(nil, logger.LevelWarn, format, args...)
}

func (b *Broadcaster) Error(format string, args ...interface{}) {
	b.log(nil, logger.LevelError, format, args...)
}

// ForServer returns a logger whose messages carry server.
func (b *Broadcaster) ForServer(server *config.Server) logger.Logger {
	return &serverLogger{b: b, server: server}
}

type serverLogger struct {
	b      *Broadcaster
	server *config.Server
}

func (l *serverLogger) Debug(format string, args ...interface{}) {
	l.b.log(l.server, logger.LevelDebug, format, args...)
}

func (l *serverLogger) Info(format string, args ...interface{}) {
	l.b.log(l.server, logger.LevelInfo, format, args...)
}

func (l *serverLogger) Warn(format string, args ...interface{}) {
	l.b.log(l.server, logger.LevelWarn, format, args...)
}

func (l *serverLogger) Error(format string, args ...interface{}) {
	l.b.log(l.server, logger.LevelError, format, args...)
}
