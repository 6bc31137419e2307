package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func forEachRepo(t *testing.T, fn func(t *testing.T, r Repository)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLiteRepository(setupDB(t))) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRepository()) })
}

func TestSetAndGet(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))

		v, err := r.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, []byte{0x01, 0x02}, v)

		require.NoError(t, r.Set(ctx, "k1", []byte("new")))
		v, err = r.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, []byte("new"), v)
	})
}

func TestGet_NotExists_ReturnsNilNil(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		v, err := r.Get(context.Background(), "absent")
		require.NoError(t, err)
		require.Nil(t, v)
	})
}

func TestList_Delete_Clear(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		require.NoError(t, r.Set(ctx, "a", []byte{0xAA}))
		require.NoError(t, r.Set(ctx, "b", []byte{0xBB, 0xCC}))

		m, err := r.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"a": {0xAA}, "b": {0xBB, 0xCC}}, m)

		require.NoError(t, r.Delete(ctx, "a"))
		require.NoError(t, r.Delete(ctx, "a"))
		v, err := r.Get(ctx, "a")
		require.NoError(t, err)
		require.Nil(t, v)

		require.NoError(t, r.Clear(ctx))
		m, err = r.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, m)
	})
}

func TestCursor_DefaultsToEpoch_AndIsMonotonic(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()

		cur, err := LoadCursor(ctx, r, nil)
		require.NoError(t, err)
		assert.Equal(t, common.CursorEpoch, cur)

		cur, err = AdvanceCursor(ctx, r, nil, "2024-01-02T00:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-02T00:00:00Z", cur)

		// an older value from a skewed server clock is ignored
		cur, err = AdvanceCursor(ctx, r, nil, "2023-12-31T00:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-02T00:00:00Z", cur)

		stored, err := LoadCursor(ctx, r, nil)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-02T00:00:00Z", stored)
	})
}

func TestCursor_PerKind(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		templates := []models.EntityKind{models.KindTemplates}

		cur, err := AdvanceCursor(ctx, r, templates, "2024-03-01T00:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01T00:00:00Z", cur)

		// the oldest kind decides where a wider pull starts
		cur, err = LoadCursor(ctx, r, []models.EntityKind{models.KindTemplates, models.KindFindings})
		require.NoError(t, err)
		assert.Equal(t, common.CursorEpoch, cur)

		all, err := KindCursors(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01T00:00:00Z", all[models.KindTemplates])
		assert.Equal(t, common.CursorEpoch, all[models.KindSentences])

		require.NoError(t, r.Set(ctx, "device.id", []byte("d1")))
		require.NoError(t, ResetCursors(ctx, r))

		left, err := r.ListPrefix(ctx, common.CursorMetadataPrefix)
		require.NoError(t, err)
		assert.Empty(t, left)
		v, err := r.Get(ctx, "device.id")
		require.NoError(t, err)
		assert.Equal(t, []byte("d1"), v)
	})
}

func TestSetMany(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		require.NoError(t, r.Set(ctx, "sync.cursor.templates", []byte("old")))
		require.NoError(t, r.SetMany(ctx, nil))

		require.NoError(t, r.SetMany(ctx, map[string][]byte{
			"sync.cursor.templates": []byte("2024-02-01T00:00:00Z"),
			"sync.cursor.findings":  []byte("2024-02-01T00:00:00Z"),
		}))

		got, err := r.ListPrefix(ctx, "sync.cursor.")
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{
			"sync.cursor.templates": []byte("2024-02-01T00:00:00Z"),
			"sync.cursor.findings":  []byte("2024-02-01T00:00:00Z"),
		}, got)
	})
}

func TestSQLite_SetManyErrorNamesKeys(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	err := r.SetMany(context.Background(), map[string][]byte{"b": nil, "a": nil})
	require.ErrorContains(t, err, "failed to set metadata[a,b]")
}

func TestSQLite_DBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get metadata[k]")

	err = r.Set(ctx, "k", []byte("v"))
	require.ErrorContains(t, err, "failed to set metadata[k]")

	err = r.Delete(ctx, "k")
	require.ErrorContains(t, err, "failed to delete metadata[k]")

	err = r.Clear(ctx)
	require.ErrorContains(t, err, "failed to clear metadata")

	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to list metadata")

	_, err = AdvanceCursor(ctx, r, nil, "2024-01-01T00:00:00Z")
	require.Error(t, err)

	_, err = r.ListPrefix(ctx, "sync.")
	require.ErrorContains(t, err, "failed to list metadata[sync.*]")

	err = r.DeletePrefix(ctx, "sync.")
	require.ErrorContains(t, err, "failed to delete metadata[sync.*]")
}

func TestMemory_ReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, r.Set(ctx, "k", buf))
	buf[0] = 'X'

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
}
