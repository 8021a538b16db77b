package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", `{"prizeId":"A"}`))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"prizeId":"A"}`, v)

	require.NoError(t, s.Set(ctx, "k", "second"))
	v, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is not an error
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chest.db")

	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	exerciseStore(t, s)

	t.Run("survives reopen", func(t *testing.T) {
		require.NoError(t, s.Set(context.Background(), "player", "kept"))
		require.NoError(t, s.Close())

		reopened, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		defer reopened.Close()

		v, err := reopened.Get(context.Background(), "player")
		require.NoError(t, err)
		assert.Equal(t, "kept", v)
	})
}

func TestApplyMigrationsRunsEachFileOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "migrate.db")
	first := fstest.MapFS{
		"m/001_records.sql": {Data: []byte(`CREATE TABLE records (record_key TEXT PRIMARY KEY, record_value TEXT NOT NULL)`)},
	}
	second := fstest.MapFS{
		"m/001_records.sql": first["m/001_records.sql"],
		"m/002_note.sql":    {Data: []byte(`ALTER TABLE records ADD COLUMN note TEXT`)},
		"m/README":          {Data: []byte(`not a migration`)},
	}

	open := func(fsys fstest.MapFS) error {
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		defer db.Close()
		return applyMigrations(ctx, db, fsys, "m")
	}

	require.NoError(t, open(first))
	require.NoError(t, open(first), "non-idempotent DDL is not rerun")
	require.NoError(t, open(second))
	require.NoError(t, open(second), "reopen after a second migration")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
	_, err = db.Exec(`INSERT INTO records (record_key, record_value, note) VALUES ('k', 'v', 'n')`)
	assert.NoError(t, err)
}

func TestApplyMigrationsDoesNotRecordFailedFile(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "broken.db"))
	require.NoError(t, err)
	defer db.Close()

	err = applyMigrations(ctx, db, fstest.MapFS{
		"m/001_broken.sql": {Data: []byte(`CREATE TABLE broken (`)},
	}, "m")
	require.Error(t, err)

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Zero(t, applied)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to memory", func(t *testing.T) {
		s, err := Open(ctx, Options{})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, Options{Driver: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLiteStore{}, s)
	})

	t.Run("rejects unknown driver and missing settings", func(t *testing.T) {
		_, err := Open(ctx, Options{Driver: "etcd"})
		assert.Error(t, err)
		_, err = Open(ctx, Options{Driver: "sqlite"})
		assert.Error(t, err)
		_, err = Open(ctx, Options{Driver: "redis"})
		assert.Error(t, err)
		_, err = Open(ctx, Options{Driver: "mongo"})
		assert.Error(t, err)
	})
}
