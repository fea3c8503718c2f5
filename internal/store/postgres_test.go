package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS boundaries`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveBoundaries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM boundaries WHERE set_name = \$1`).
		WithArgs("county").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"boundaries"},
		[]string{"set_name", "feature_id", "name", "geom"}).
		WillReturnResult(2)

	err := s.SaveBoundaries(context.Background(), "county", []BoundaryRow{
		{ID: "12086", Name: "Miami-Dade", WKB: []byte{1}},
		{ID: "12011", Name: "Broward", WKB: []byte{2}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MergeBoundaries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_boundaries"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_boundaries"},
		[]string{"set_name", "feature_id", "name", "geom"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "boundaries" .* ON CONFLICT`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.MergeBoundaries(context.Background(), "county", []BoundaryRow{
		{ID: "12086", Name: "Miami-Dade", WKB: []byte{1}},
		{ID: "12011", Name: "Broward", WKB: []byte{2}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadBoundaries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	name := "Miami-Dade"
	mock.ExpectQuery(`SELECT feature_id, name, geom FROM boundaries WHERE set_name = \$1`).
		WithArgs("county").
		WillReturnRows(pgxmock.NewRows([]string{"feature_id", "name", "geom"}).
			AddRow("12086", &name, []byte{1, 2}))

	got, err := s.LoadBoundaries(context.Background(), "county")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12086", got[0].ID)
	assert.Equal(t, "Miami-Dade", got[0].Name)
	assert.Equal(t, []byte{1, 2}, got[0].WKB)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadBoundaries_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT feature_id, name, geom FROM boundaries`).
		WithArgs("county").
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.LoadBoundaries(context.Background(), "county")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load boundary set county")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SavePack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO pack_cache`).
		WithArgs("income", []byte("data"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SavePack(context.Background(), "income", []byte("data")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadPack_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM pack_cache WHERE category = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	data, ok, err := s.LoadPack(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadPack_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM pack_cache WHERE category = \$1`).
		WithArgs("income").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("pack")))

	data, ok, err := s.LoadPack(context.Background(), "income")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("pack"), data)
	assert.NoError(t, mock.ExpectationsWereMet())
}
