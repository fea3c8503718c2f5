package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. The default
// backend for single-machine deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS boundaries (
	set_name   TEXT NOT NULL,
	feature_id TEXT NOT NULL,
	name       TEXT,
	geom       BLOB NOT NULL,
	loaded_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (set_name, feature_id)
);

CREATE TABLE IF NOT EXISTS pack_cache (
	category   TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_boundaries_set ON boundaries(set_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBoundaries replaces one boundary set in a single transaction.
func (s *SQLiteStore) SaveBoundaries(ctx context.Context, set string, rows []BoundaryRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM boundaries WHERE set_name = ?`, set); err != nil {
		return eris.Wrapf(err, "sqlite: clear boundary set %s", set)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO boundaries (set_name, feature_id, name, geom) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare boundary insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, set, r.ID, r.Name, r.WKB); err != nil {
			return eris.Wrapf(err, "sqlite: insert boundary %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit boundaries")
}

// MergeBoundaries upserts rows without clearing the set.
func (s *SQLiteStore) MergeBoundaries(ctx context.Context, set string, rows []BoundaryRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO boundaries (set_name, feature_id, name, geom) VALUES (?, ?, ?, ?)
		 ON CONFLICT(set_name, feature_id) DO UPDATE SET name = excluded.name, geom = excluded.geom`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare boundary upsert")
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, set, r.ID, r.Name, r.WKB); err != nil {
			return eris.Wrapf(err, "sqlite: upsert boundary %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit boundary merge")
}

// LoadBoundaries reads one boundary set in insertion order.
func (s *SQLiteStore) LoadBoundaries(ctx context.Context, set string) ([]BoundaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_id, name, geom FROM boundaries WHERE set_name = ? ORDER BY rowid`, set)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load boundary set %s", set)
	}
	defer func() { _ = rows.Close() }()

	var out []BoundaryRow
	for rows.Next() {
		var r BoundaryRow
		var name sql.NullString
		if err := rows.Scan(&r.ID, &name, &r.WKB); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan boundary")
		}
		r.Name = name.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate boundaries")
}

// SavePack upserts a category's cached pack bytes.
func (s *SQLiteStore) SavePack(ctx context.Context, category string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pack_cache (category, data, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(category) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		category, data, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: save pack %s", category)
}

// LoadPack returns a cached pack, reporting whether one exists.
func (s *SQLiteStore) LoadPack(ctx context.Context, category string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM pack_cache WHERE category = ?`, category).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: load pack %s", category)
	}
	return data, true, nil
}
