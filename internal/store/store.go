// Package store persists connection records and execution history in
// SQLite. The remote execution core only reads connections and reports
// activity transitions back; everything else is plain CRUD.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/halyard-dev/halyard/internal/errors"
	_ "modernc.org/sqlite"
)

// Connection is a saved remote host definition. At most one connection is
// active at a time; SetActive enforces that.
type Connection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Execution is one audit record of a finished (or aborted) command.
type Execution struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	Command      string    `json:"command"`
	Output       string    `json:"output"`
	ExitCode     int       `json:"exitCode"`
	ExitKnown    bool      `json:"exitKnown"`
	Aborted      bool      `json:"aborted"`
	DurationMs   int64     `json:"durationMs"`
	Source       string    `json:"source"` // "manual", "template", or "ai"
	CreatedAt    time.Time `json:"createdAt"`
}

// ErrNotFound is returned when a looked-up record doesn't exist.
var ErrNotFound = stderrors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	host       TEXT NOT NULL,
	port       INTEGER NOT NULL DEFAULT 22,
	username   TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	command       TEXT NOT NULL,
	output        TEXT NOT NULL DEFAULT '',
	exit_code     INTEGER NOT NULL DEFAULT 0,
	exit_known    INTEGER NOT NULL DEFAULT 1,
	aborted       INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT 'manual',
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_connection
	ON executions(connection_id, created_at DESC);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrStore,
				"Failed to create data directory",
				"Check permissions on "+filepath.Dir(path))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Failed to open database", "Check the data path is writable")
	}

	// SQLite allows one writer; serialize access through a single conn to
	// avoid SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Failed to apply database schema", "")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConnection saves a new connection. A zero port defaults to 22; a
// missing id gets a fresh UUID.
func (s *Store) CreateConnection(ctx context.Context, conn *Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Port == 0 {
		conn.Port = 22
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (id, name, host, port, username, active, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		conn.ID, conn.Name, conn.Host, conn.Port, conn.Username, conn.CreatedAt)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore,
			"Failed to save connection "+conn.Name,
			"Connection names must be unique")
	}
	return nil
}

// GetConnection looks a connection up by id.
func (s *Store) GetConnection(ctx context.Context, id string) (*Connection, error) {
	return s.scanConnection(s.db.QueryRowContext(ctx,
		`SELECT id, name, host, port, username, active, created_at
		 FROM connections WHERE id = ?`, id))
}

// GetConnectionByName looks a connection up by its unique name.
func (s *Store) GetConnectionByName(ctx context.Context, name string) (*Connection, error) {
	return s.scanConnection(s.db.QueryRowContext(ctx,
		`SELECT id, name, host, port, username, active, created_at
		 FROM connections WHERE name = ?`, name))
}

func (s *Store) scanConnection(row *sql.Row) (*Connection, error) {
	var c Connection
	var active int
	err := row.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.Username, &active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Failed to read connection", "")
	}
	c.Active = active != 0
	return &c, nil
}

// ListConnections returns all connections, active first, then by name.
func (s *Store) ListConnections(ctx context.Context) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, host, port, username, active, created_at
		 FROM connections ORDER BY active DESC, name ASC`)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Failed to list connections", "")
	}
	defer rows.Close()

	var out []Connection
	for rows.Next() {
		var c Connection
		var active int
		if err := rows.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.Username, &active, &c.CreatedAt); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrStore, "Failed to read connection row", "")
		}
		c.Active = active != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConnection removes a connection by id.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Failed to delete connection", "")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive marks one connection active and deactivates all others, in a
// single transaction.
func (s *Store) SetActive(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Failed to start transaction", "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `UPDATE connections SET active = 0 WHERE active = 1`); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Failed to deactivate connections", "")
	}

	res, err := tx.ExecContext(ctx, `UPDATE connections SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Failed to activate connection", "")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// InsertExecution records a finished command.
func (s *Store) InsertExecution(ctx context.Context, e *Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Source == "" {
		e.Source = "manual"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions
		 (id, connection_id, command, output, exit_code, exit_known, aborted, duration_ms, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConnectionID, e.Command, e.Output, e.ExitCode,
		boolInt(e.ExitKnown), boolInt(e.Aborted), e.DurationMs, e.Source, e.CreatedAt)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Failed to record execution", "")
	}
	return nil
}

// ListExecutions returns the most recent executions, newest first.
// connectionID filters to one connection when non-empty.
func (s *Store) ListExecutions(ctx context.Context, connectionID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, connection_id, command, output, exit_code, exit_known, aborted, duration_ms, source, created_at
	          FROM executions`
	args := []interface{}{}
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Failed to list executions", "")
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var exitKnown, aborted int
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.Command, &e.Output, &e.ExitCode,
			&exitKnown, &aborted, &e.DurationMs, &e.Source, &e.CreatedAt); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrStore, "Failed to read execution row", "")
		}
		e.ExitKnown = exitKnown != 0
		e.Aborted = aborted != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
