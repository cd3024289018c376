package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

const (
	tableCurrent  = "entities"
	tablePrevious = "entities_previous"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		identity  TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		state     TEXT NOT NULL,
		monitored TEXT NOT NULL,
		extra     TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS entities_previous (
		identity  TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		state     TEXT NOT NULL,
		monitored TEXT NOT NULL,
		extra     TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		slot     TEXT PRIMARY KEY,
		saved_at TEXT NOT NULL
	)`,
}

// SQLiteStore keeps current and previous sets in one SQLite database.
// Unknown entity fields are kept as a JSON object in the extra column.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &IOError{Op: "create directory for", Path: path, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	// One connection keeps transactions and pragmas on the same handle
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, &IOError{Op: "create schema in", Path: path, Err: err}
		}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads the current set.
func (s *SQLiteStore) Load(ctx context.Context) (reconcile.Set, error) {
	return s.readTable(ctx, tableCurrent)
}

// LoadPrevious reads the archived set.
func (s *SQLiteStore) LoadPrevious(ctx context.Context) (reconcile.Set, error) {
	return s.readTable(ctx, tablePrevious)
}

// Save replaces the current set in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, set reconcile.Set) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "begin save in", Path: s.path, Err: err}
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return &IOError{Op: "clear entities in", Path: s.path, Err: err}
	}

	for _, e := range ordered(set) {
		extra, err := encodeExtra(e.Extra)
		if err != nil {
			return &IOError{Op: "encode", Path: s.path, Err: fmt.Errorf("entity %s: %w", e.Identity, err)}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities(identity, name, state, monitored, extra) VALUES (?, ?, ?, ?, ?)`,
			e.Identity, e.Name, e.State, string(e.Monitored), extra,
		); err != nil {
			return &IOError{Op: "insert entity into", Path: s.path, Err: err}
		}
	}

	if err := markSaved(ctx, tx, tableCurrent); err != nil {
		return &IOError{Op: "record save in", Path: s.path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &IOError{Op: "commit save to", Path: s.path, Err: err}
	}
	return nil
}

// Archive copies the current table into the previous table.
func (s *SQLiteStore) Archive(ctx context.Context) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "begin archive in", Path: s.path, Err: err}
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var savedAt string
	err = tx.QueryRowContext(ctx, `SELECT saved_at FROM snapshots WHERE slot = ?`, tableCurrent).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing persisted yet
		return tx.Rollback()
	}
	if err != nil {
		return &IOError{Op: "read snapshot metadata from", Path: s.path, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities_previous`); err != nil {
		return &IOError{Op: "clear previous entities in", Path: s.path, Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities_previous(identity, name, state, monitored, extra)
		 SELECT identity, name, state, monitored, extra FROM entities`,
	); err != nil {
		return &IOError{Op: "archive entities in", Path: s.path, Err: err}
	}
	if err := markSaved(ctx, tx, tablePrevious); err != nil {
		return &IOError{Op: "record archive in", Path: s.path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &IOError{Op: "commit archive to", Path: s.path, Err: err}
	}
	return nil
}

// Lock takes an advisory lock on path + ".lock".
func (s *SQLiteStore) Lock(ctx context.Context) (Unlock, error) {
	return lockFile(ctx, s.path+".lock")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// DB exposes the underlying handle for tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) readTable(ctx context.Context, table string) (reconcile.Set, error) {
	// table is one of the two package constants, never user input
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, name, state, monitored, extra FROM `+table+` ORDER BY identity`)
	if err != nil {
		return nil, &IOError{Op: "query " + table + " in", Path: s.path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var entities []inventory.Entity
	for rows.Next() {
		var (
			e         inventory.Entity
			monitored string
			extra     string
		)
		if err := rows.Scan(&e.Identity, &e.Name, &e.State, &monitored, &extra); err != nil {
			return nil, &IOError{Op: "scan " + table + " in", Path: s.path, Err: err}
		}
		e.Monitored = inventory.Monitored(monitored)
		if e.Extra, err = decodeExtra(extra); err != nil {
			return nil, &IOError{Op: "load", Path: s.path,
				Err: fmt.Errorf("%w: entity %s: %w", ErrCorrupt, e.Identity, err)}
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "read " + table + " in", Path: s.path, Err: err}
	}

	set, err := toSet(entities)
	if err != nil {
		return nil, &IOError{Op: "load", Path: s.path, Err: err}
	}
	return set, nil
}

func markSaved(ctx context.Context, tx *sql.Tx, slot string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots(slot, saved_at) VALUES (?, ?)
		 ON CONFLICT(slot) DO UPDATE SET saved_at = excluded.saved_at`,
		slot, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(jsonValue(extra))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// jsonValue rewrites maps with non-string keys, which yaml.v3 produces for
// keys such as 1 or true, into string-keyed maps json can encode.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonValue(val)
		}
		return out
	default:
		return v
	}
}

func decodeExtra(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var extra map[string]any
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil, err
	}
	return extra, nil
}
