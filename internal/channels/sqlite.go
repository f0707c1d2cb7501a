package channels

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS herd_events(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT, task TEXT, kind TEXT, server TEXT, level TEXT, message TEXT,
	status TEXT, reason TEXT, duration_ms INTEGER, targets INTEGER, failed INTEGER, ts INTEGER);
CREATE INDEX IF NOT EXISTS idx_herd_events_run ON herd_events(run_id);`

// SQLite stores a run's events in a local database. It is buffered: the
// whole run is written in one transaction when the run finalizes.
type SQLite struct {
	events.Base
	db *sql.DB
	tx *sql.Tx
}

// OpenSQLite handles sqlite:///abs/path.db and sqlite:relative.db.
func OpenSQLite(u *url.URL) (events.Channel, error) {
	path := pathOf(u)
	if path == "" {
		return nil, errors.New(errors.ErrConfig,
			"SQLite log channel needs a path",
			"Use sqlite:///var/lib/herd/events.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot create directory for "+path, "")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Cannot open "+path, "")
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot initialize event table in "+path, "Is this a SQLite database?")
	}
	return &SQLite{db: db}, nil
}

func (c *SQLite) Delivery() events.Delivery { return events.Buffered }

func (c *SQLite) Initialize(ev events.Event) error  { return c.insert(ev) }
func (c *SQLite) StartServer(ev events.Event) error { return c.insert(ev) }
func (c *SQLite) EndServer(ev events.Event) error   { return c.insert(ev) }
func (c *SQLite) Log(ev events.Event) error         { return c.insert(ev) }

// Finalize writes the last event and commits the run.
func (c *SQLite) Finalize(ev events.Event) error {
	if err := c.insert(ev); err != nil {
		return err
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit()
}

func (c *SQLite) insert(ev events.Event) error {
	if c.tx == nil {
		tx, err := c.db.Begin()
		if err != nil {
			return err
		}
		c.tx = tx
	}
	r := NewRecord(ev)
	_, err := c.tx.Exec(`INSERT INTO herd_events(run_id, task, kind, server, level, message, status, reason, duration_ms, targets, failed, ts)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.Task, r.Kind, r.Server, r.Level, r.Message, r.Status, r.Reason, r.DurationMS, r.Targets, r.Failed, r.Time.UnixMilli())
	return err
}

func (c *SQLite) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.db.Close()
}
