// Package channels holds the built-in log channels: console, file, sqlite,
// mysql and websocket. Each constructor takes the channel URI.
package channels

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"
	"github.com/rileyhilliard/herd/internal/logger"
)

// Record is the flat form of an event used by the storage and network
// channels.
type Record struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	RunID      string    `json:"run_id" gorm:"size:64;index"`
	Task       string    `json:"task" gorm:"size:128"`
	Kind       string    `json:"kind" gorm:"size:32"`
	Server     string    `json:"server,omitempty" gorm:"size:255"`
	Level      string    `json:"level,omitempty" gorm:"size:16"`
	Message    string    `json:"message,omitempty" gorm:"type:text"`
	Status     string    `json:"status,omitempty" gorm:"size:16"`
	Reason     string    `json:"reason,omitempty" gorm:"size:32"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Targets    int       `json:"targets,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Time       time.Time `json:"time"`
}

// TableName keeps one table name across sqlite and mysql.
func (Record) TableName() string {
	return "herd_events"
}

// NewRecord flattens ev.
func NewRecord(ev events.Event) Record {
	r := Record{
		RunID:      ev.RunID,
		Task:       ev.Task,
		Kind:       ev.Kind.String(),
		Server:     ev.ServerName(),
		Status:     ev.Status,
		Reason:     ev.Reason,
		DurationMS: ev.Duration.Milliseconds(),
		Targets:    ev.Targets,
		Failed:     ev.Failed,
		Time:       ev.Time.UTC(),
	}
	if ev.Kind == events.KindLog {
		r.Level = ev.Level.String()
		r.Message = ev.Message
	}
	return r
}

// LevelOverride reads the ?level= query of a channel URI. ok is false when
// the URI does not set one.
func LevelOverride(u *url.URL) (level logger.Level, ok bool, err error) {
	raw := u.Query().Get("level")
	if raw == "" {
		return logger.LevelInfo, false, nil
	}
	level, err = logger.ParseLevel(raw)
	if err != nil {
		return logger.LevelInfo, false, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid level in log channel "+u.Redacted(),
			"Use ?level=debug, info, warn or error")
	}
	return level, true, nil
}

// pathOf returns the filesystem path of file:/sqlite: style URIs. Both
// scheme:///abs/path and scheme:relative/path work.
func pathOf(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if u.Host != "" && u.Host != "localhost" {
		p = u.Host + p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return p
}
