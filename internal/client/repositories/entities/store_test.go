package entities

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/radsync/internal/client/migrations"
	"github.com/dmitrijs2005/radsync/internal/models"
)

func openSQLite(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))
	return NewSQLiteStore(db), db
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, _ := openSQLite(t)
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tpl(id, title string, at time.Time) models.Entity {
	p, _ := json.Marshal(models.TemplatePayload{TemplateID: id, Title: title})
	return models.Entity{Kind: models.KindTemplates, ID: id, Payload: p, UpdatedAt: at}
}

func titleOf(t *testing.T, e *models.Entity) string {
	t.Helper()
	require.NotNil(t, e)
	var p models.TemplatePayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	return p.Title
}

func ids(rows []models.Entity) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}

func TestPut_GetAll(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("a", "A", t0), tpl("b", "B", t0)}))

		all, err := s.GetAll(ctx, models.KindTemplates)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(all))

		other, err := s.GetAll(ctx, models.KindFindings)
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestPut_IsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		batch := []models.Entity{tpl("a", "A", t0), tpl("b", "B", t0.Add(time.Hour))}

		require.NoError(t, s.Put(ctx, models.KindTemplates, batch))
		once, err := s.GetAll(ctx, models.KindTemplates)
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, models.KindTemplates, batch))
		twice, err := s.GetAll(ctx, models.KindTemplates)
		require.NoError(t, err)

		assert.ElementsMatch(t, once, twice)
	})
}

func TestPut_LastWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("a", "new", t0.Add(time.Hour))}))
		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("a", "stale", t0)}))

		got, err := s.Get(ctx, models.KindTemplates, "a")
		require.NoError(t, err)
		assert.Equal(t, "new", titleOf(t, got))

		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("a", "newer", t0.Add(2*time.Hour))}))
		got, err = s.Get(ctx, models.KindTemplates, "a")
		require.NoError(t, err)
		assert.Equal(t, "newer", titleOf(t, got))
		assert.True(t, got.UpdatedAt.Equal(t0.Add(2*time.Hour)))
	})
}

func TestPut_LaterRowInBatchWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		batch := []models.Entity{tpl("a", "first", t0.Add(time.Hour)), tpl("a", "second", t0)}
		require.NoError(t, s.Put(ctx, models.KindTemplates, batch))

		got, err := s.Get(ctx, models.KindTemplates, "a")
		require.NoError(t, err)
		assert.Equal(t, "second", titleOf(t, got))
	})
}

func TestPut_RejectsBadBatches(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.ErrorIs(t, s.Put(ctx, models.KindTemplates, nil), ErrEmptyBatch)
		require.ErrorIs(t, s.Put(ctx, models.KindFindings, []models.Entity{tpl("a", "A", t0)}), ErrKindMismatch)
		require.ErrorIs(t, s.Put(ctx, "users", []models.Entity{tpl("a", "A", t0)}), ErrUnknownBucket)
	})
}

func TestGet_Absent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		got, err := s.Get(context.Background(), models.KindTemplates, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestDelete_TombstoneOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		t1, t2, t3 := t0, t0.Add(time.Hour), t0.Add(2*time.Hour)

		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("x", "v1", t1)}))

		var removed bool
		require.NoError(t, s.Update(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			removed, err = tx.Delete(ctx, models.KindTemplates, "x", t2)
			return err
		}))
		assert.True(t, removed)
		got, err := s.Get(ctx, models.KindTemplates, "x")
		require.NoError(t, err)
		assert.Nil(t, got)

		// recreate after delete
		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("x", "v2", t3)}))

		// a stale tombstone must not remove the newer row
		require.NoError(t, s.Update(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			removed, err = tx.Delete(ctx, models.KindTemplates, "x", t2)
			return err
		}))
		assert.False(t, removed)
		got, err = s.Get(ctx, models.KindTemplates, "x")
		require.NoError(t, err)
		assert.Equal(t, "v2", titleOf(t, got))
	})
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		err := s.Update(context.Background(), func(ctx context.Context, tx Tx) error {
			removed, err := tx.Delete(ctx, models.KindFindings, "ghost", t0)
			assert.False(t, removed)
			return err
		})
		require.NoError(t, err)
	})
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, models.KindTemplates, []models.Entity{tpl("keep", "K", t0)}))

		err := s.Update(ctx, func(ctx context.Context, tx Tx) error {
			require.NoError(t, tx.Put(ctx, models.KindTemplates, []models.Entity{tpl("new", "N", t0)}))
			_, err := tx.Delete(ctx, models.KindTemplates, "keep", t0.Add(time.Hour))
			require.NoError(t, err)
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		all, err := s.GetAll(ctx, models.KindTemplates)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, ids(all))
	})
}

func TestUpdate_RollsBackOnPanic(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		assert.Panics(t, func() {
			_ = s.Update(ctx, func(ctx context.Context, tx Tx) error {
				require.NoError(t, tx.Put(ctx, models.KindTemplates, []models.Entity{tpl("a", "A", t0)}))
				panic("kaput")
			})
		})

		all, err := s.GetAll(ctx, models.KindTemplates)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestPreferencesCollection(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		row := models.Entity{Kind: models.KindPreferences, ID: "u1", Payload: json.RawMessage(`{"dark_mode":false}`), UpdatedAt: t0}
		require.NoError(t, s.Put(ctx, models.KindPreferences, []models.Entity{row}))

		got, err := s.Get(ctx, models.KindPreferences, "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, `{"dark_mode":false}`, string(got.Payload))
	})
}

func TestSQLiteStore_ClosedDB_StorageUnavailable(t *testing.T) {
	s, db := openSQLite(t)
	require.NoError(t, db.Close())

	_, err := s.GetAll(context.Background(), models.KindTemplates)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	err = s.Put(context.Background(), models.KindTemplates, []models.Entity{tpl("a", "A", t0)})
	require.ErrorIs(t, err, ErrStorageUnavailable)
}
