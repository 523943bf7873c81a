package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/touch-timeout/internal/backlight"
	"github.com/cptspacemanspiff/touch-timeout/internal/device"
)

const schema = `
CREATE TABLE IF NOT EXISTS backlight_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	state TEXT NOT NULL,
	cause TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transition_ts ON backlight_transitions(timestamp);

CREATE TABLE IF NOT EXISTS device_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_device_change_ts ON device_changes(timestamp);
`

// DB wraps a SQLite database holding backlight and device history.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordTransition inserts a backlight transition.
func (d *DB) RecordTransition(t backlight.Transition) error {
	_, err := d.db.Exec(
		"INSERT INTO backlight_transitions (timestamp, state, cause) VALUES (?, ?, ?)",
		t.Timestamp, t.State.String(), string(t.Cause),
	)
	return err
}

// RecordDeviceChange inserts a device registry change.
func (d *DB) RecordDeviceChange(c device.Change) error {
	_, err := d.db.Exec(
		"INSERT INTO device_changes (timestamp, name, kind) VALUES (?, ?, ?)",
		c.Timestamp, c.Name, string(c.Kind),
	)
	return err
}

// TransitionsInRange returns backlight transitions within the given time range.
func (d *DB) TransitionsInRange(from, to int64) ([]backlight.Transition, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, state, cause FROM backlight_transitions WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []backlight.Transition
	for rows.Next() {
		var (
			t     backlight.Transition
			state string
			cause string
		)
		if err := rows.Scan(&t.Timestamp, &state, &cause); err != nil {
			return nil, err
		}
		s, ok := backlight.StateFromString(state)
		if !ok {
			return nil, fmt.Errorf("unknown backlight state %q", state)
		}
		t.State = s
		t.Cause = backlight.Cause(cause)
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeviceChangesInRange returns device changes within the given time range.
func (d *DB) DeviceChangesInRange(from, to int64) ([]device.Change, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, name, kind FROM device_changes WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []device.Change
	for rows.Next() {
		var (
			c    device.Change
			kind string
		)
		if err := rows.Scan(&c.Timestamp, &c.Name, &kind); err != nil {
			return nil, err
		}
		c.Kind = device.ChangeKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestTransition returns the most recent backlight transition, or nil if
// none has been recorded.
func (d *DB) LatestTransition() (*backlight.Transition, error) {
	row := d.db.QueryRow("SELECT timestamp, state, cause FROM backlight_transitions ORDER BY timestamp DESC, id DESC LIMIT 1")
	var (
		t     backlight.Transition
		state string
		cause string
	)
	err := row.Scan(&t.Timestamp, &state, &cause)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s, ok := backlight.StateFromString(state)
	if !ok {
		return nil, fmt.Errorf("unknown backlight state %q", state)
	}
	t.State = s
	t.Cause = backlight.Cause(cause)
	return &t, nil
}
