// Package storage persists process events and their snapshots to a local
// SQLite database. The schema is versioned by a compiled-in
// constant rather than migrated: a mismatch between the constant and the
// on-disk schema_version row means the daemon wipes and recreates the file
// from scratch, since events are a rolling diagnostic history rather than a
// system of record worth migrating in place.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ngrantham/pausewatch/internal/model"
)

// schemaVersion is bumped whenever the table shape changes. Open wipes and
// recreates the database file whenever the on-disk version differs from
// this constant.
const schemaVersion = 1

// Store wraps the daemon's single SQLite connection. The
// daemon is the sole writer, so the pool is capped at one open connection;
// external readers (the CLI) open their own file:...?mode=ro handle instead
// of sharing this one.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path, wiping
// and recreating it if the stored schema_version doesn't match schemaVersion.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	wiped, err := wipeIfStale(path, logger)
	if err != nil {
		return nil, err
	} else if wiped {
		logger.Info("storage schema changed, recreating database", "path", path)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if wiped {
		if err := s.SetState(ctx, "last_schema_wipe", time.Now().UTC().Format(time.RFC3339)); err != nil {
			logger.Warn("failed to record last_schema_wipe", "error", err)
		}
	}
	return s, nil
}

// OpenReadOnly opens an independent read-only handle to the same database
// file, for the CLI's status/history queries, without contending with the
// daemon's single writer connection.
func OpenReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database read-only: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping read-only database: %w", err)
	}
	return db, nil
}

func wipeIfStale(path string, logger *slog.Logger) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat database file: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false, fmt.Errorf("open database to check schema version: %w", err)
	}
	defer db.Close()

	var version int
	err = db.QueryRow(`SELECT value FROM daemon_state WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		logger.Warn("could not read schema_version, recreating database", "error", err)
	} else if version == schemaVersion {
		return false, nil
	}

	db.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return true, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS daemon_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	pid           INTEGER NOT NULL,
	command       TEXT NOT NULL,
	boot_time     INTEGER NOT NULL,
	entry_time    INTEGER NOT NULL,
	exit_time     INTEGER,
	entry_band    TEXT NOT NULL,
	peak_band     TEXT NOT NULL,
	peak_score    INTEGER NOT NULL,
	peak_snapshot TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_pid_boot ON events(pid, boot_time);
CREATE INDEX IF NOT EXISTS idx_events_open ON events(exit_time) WHERE exit_time IS NULL;

CREATE TABLE IF NOT EXISTS process_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	payload     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_event ON process_snapshots(event_id);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daemon_state(key, value) VALUES('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", schemaVersion))
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// SetState upserts a daemon_state key/value pair (e.g. last_schema_wipe).
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daemon_state(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetState reads a daemon_state value, returning ("", false) if absent.
func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM daemon_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// OpenEvent inserts a new open event and returns its assigned ID.
func (s *Store) OpenEvent(ctx context.Context, e model.Event) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(pid, command, boot_time, entry_time, entry_band, peak_band, peak_score, peak_snapshot, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PID, e.Command, e.BootTime, e.EntryTime.Unix(), e.EntryBand, e.PeakBand, e.PeakScore, e.PeakSnapshot, e.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePeak updates an open event's peak band/score/snapshot in place.
func (s *Store) UpdatePeak(ctx context.Context, id int64, peakBand string, peakScore int, peakSnapshot string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET peak_band = ?, peak_score = ?, peak_snapshot = ? WHERE id = ?`,
		peakBand, peakScore, peakSnapshot, id)
	return err
}

// SetEventNotes overwrites an event's free-text notes column, used for
// forensics breadcrumbs (e.g. an artifact directory path) without requiring
// a new snapshot row.
func (s *Store) SetEventNotes(ctx context.Context, id int64, notes string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET notes = ? WHERE id = ?`, notes, id)
	return err
}

// CloseEvent sets an event's exit_time, ending its open interval.
func (s *Store) CloseEvent(ctx context.Context, id int64, exitTime time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET exit_time = ? WHERE id = ?`, exitTime.Unix(), id)
	return err
}

// OpenEventForPID returns the currently-open event for a (pid, bootTime)
// pair, if any. A process is only ever tracked against events from the
// current boot, so bootTime scopes out stale PIDs reused across reboots.
func (s *Store) OpenEventForPID(ctx context.Context, pid int, bootTime int64) (model.Event, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pid, command, boot_time, entry_time, exit_time, entry_band, peak_band, peak_score, peak_snapshot, notes
		 FROM events WHERE pid = ? AND boot_time = ? AND exit_time IS NULL
		 ORDER BY id DESC LIMIT 1`, pid, bootTime)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return model.Event{}, false, nil
	}
	if err != nil {
		return model.Event{}, false, err
	}
	return e, true, nil
}

// OpenEvents returns every currently-open event, used at startup to resume
// tracking after a restart and to seed the client's initial_state message.
func (s *Store) OpenEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pid, command, boot_time, entry_time, exit_time, entry_band, peak_band, peak_score, peak_snapshot, notes
		 FROM events WHERE exit_time IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertSnapshot records a point-in-time snapshot attached to an event.
func (s *Store) InsertSnapshot(ctx context.Context, eventID int64, typ model.SnapshotType, capturedAt time.Time, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO process_snapshots(event_id, type, captured_at, payload) VALUES (?, ?, ?, ?)`,
		eventID, string(typ), capturedAt.Unix(), payload)
	return err
}

// PruneEventsOlderThan deletes closed events (and their snapshots, via the
// ON DELETE CASCADE) whose exit_time predates cutoff.
func (s *Store) PruneEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE exit_time IS NOT NULL AND exit_time < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row *sql.Row) (model.Event, error)      { return scanRow(row) }
func scanEventRows(rows *sql.Rows) (model.Event, error) { return scanRow(rows) }

func scanRow(r rowScanner) (model.Event, error) {
	var e model.Event
	var exitTime sql.NullInt64
	if err := r.Scan(&e.ID, &e.PID, &e.Command, &e.BootTime, &entryUnixScanner{&e.EntryTime}, &exitTime,
		&e.EntryBand, &e.PeakBand, &e.PeakScore, &e.PeakSnapshot, &e.Notes); err != nil {
		return model.Event{}, err
	}
	if exitTime.Valid {
		t := time.Unix(exitTime.Int64, 0)
		e.ExitTime = &t
	}
	return e, nil
}

// entryUnixScanner adapts a Unix-seconds INTEGER column onto a time.Time
// field without needing a second intermediate variable at every call site.
type entryUnixScanner struct {
	dst *time.Time
}

func (s *entryUnixScanner) Scan(src any) error {
	var secs int64
	switch v := src.(type) {
	case int64:
		secs = v
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported entry_time scan type %T", src)
	}
	*s.dst = time.Unix(secs, 0)
	return nil
}
