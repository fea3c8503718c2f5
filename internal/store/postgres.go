package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/county-atlas/internal/db"
)

// PostgresStore implements Store using pgxpool, for deployments that
// share boundaries across several atlas instances.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS boundaries (
	set_name   TEXT NOT NULL,
	feature_id TEXT NOT NULL,
	name       TEXT,
	geom       BYTEA NOT NULL,
	loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	position   BIGSERIAL,
	PRIMARY KEY (set_name, feature_id)
);

CREATE TABLE IF NOT EXISTS pack_cache (
	category   TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_boundaries_set ON boundaries(set_name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveBoundaries replaces one boundary set, bulk-loading rows with the
// COPY protocol.
func (s *PostgresStore) SaveBoundaries(ctx context.Context, set string, rows []BoundaryRow) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM boundaries WHERE set_name = $1`, set); err != nil {
		return eris.Wrapf(err, "postgres: clear boundary set %s", set)
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = []any{set, r.ID, r.Name, r.WKB}
	}
	_, err := db.CopyFrom(ctx, s.pool, "boundaries",
		[]string{"set_name", "feature_id", "name", "geom"}, copyRows)
	return err
}

// MergeBoundaries upserts rows into a boundary set without clearing
// it, so partial refreshes keep features a client may still reference.
func (s *PostgresStore) MergeBoundaries(ctx context.Context, set string, rows []BoundaryRow) error {
	upsertRows := make([][]any, len(rows))
	for i, r := range rows {
		upsertRows[i] = []any{set, r.ID, r.Name, r.WKB}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "boundaries",
		Columns:      []string{"set_name", "feature_id", "name", "geom"},
		ConflictKeys: []string{"set_name", "feature_id"},
	}, upsertRows)
	return err
}

// LoadBoundaries reads one boundary set in load order.
func (s *PostgresStore) LoadBoundaries(ctx context.Context, set string) ([]BoundaryRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT feature_id, name, geom FROM boundaries WHERE set_name = $1 ORDER BY position`, set)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load boundary set %s", set)
	}
	defer rows.Close()

	var out []BoundaryRow
	for rows.Next() {
		var r BoundaryRow
		var name *string
		if err := rows.Scan(&r.ID, &name, &r.WKB); err != nil {
			return nil, eris.Wrap(err, "postgres: scan boundary")
		}
		if name != nil {
			r.Name = *name
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate boundaries")
}

// SavePack upserts a category's cached pack bytes.
func (s *PostgresStore) SavePack(ctx context.Context, category string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pack_cache (category, data, fetched_at) VALUES ($1, $2, $3)
		 ON CONFLICT (category) DO UPDATE SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at`,
		category, data, time.Now().UTC())
	return eris.Wrapf(err, "postgres: save pack %s", category)
}

// LoadPack returns a cached pack, reporting whether one exists.
func (s *PostgresStore) LoadPack(ctx context.Context, category string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM pack_cache WHERE category = $1`, category).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: load pack %s", category)
	}
	return data, true, nil
}
