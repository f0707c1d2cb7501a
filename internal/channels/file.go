package channels

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"
)

// File appends one logfmt-style line per event to a file.
type File struct {
	events.Base
	f *os.File
}

// OpenFile handles file:///abs/path.log and file:relative.log.
func OpenFile(u *url.URL) (events.Channel, error) {
	path := pathOf(u)
	if path == "" {
		return nil, errors.New(errors.ErrConfig,
			"File log channel needs a path",
			"Use file:///var/log/herd.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot create log directory for "+path, "")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot open log file "+path, "Check permissions")
	}
	return &File{f: f}, nil
}

func (c *File) Initialize(ev events.Event) error  { return c.write(ev) }
func (c *File) StartServer(ev events.Event) error { return c.write(ev) }
func (c *File) EndServer(ev events.Event) error   { return c.write(ev) }
func (c *File) Log(ev events.Event) error         { return c.write(ev) }
func (c *File) Finalize(ev events.Event) error    { return c.write(ev) }

func (c *File) Close() error {
	return c.f.Close()
}

func (c *File) write(ev events.Event) error {
	_, err := c.f.WriteString(formatLine(ev))
	return err
}

// formatLine renders ev as time=... kind=... key=value pairs.
func formatLine(ev events.Event) string {
	r := NewRecord(ev)
	var b strings.Builder
	b.WriteString(r.Time.Format(time.RFC3339))
	b.WriteString(" kind=" + r.Kind)
	pair := func(k, v string) {
		if v != "" {
			b.WriteString(" " + k + "=" + quoteIfNeeded(v))
		}
	}
	pair("run", r.RunID)
	pair("task", r.Task)
	pair("server", r.Server)
	pair("level", r.Level)
	pair("status", r.Status)
	pair("reason", r.Reason)
	if r.DurationMS > 0 {
		pair("duration", fmt.Sprintf("%dms", r.DurationMS))
	}
	if ev.Kind == events.KindInitialize || ev.Kind == events.KindFinalize {
		pair("targets", strconv.Itoa(r.Targets))
	}
	pair("msg", r.Message)
	b.WriteString("\n")
	return b.String()
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
