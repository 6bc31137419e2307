package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/models"
)

type deltaFixture struct {
	api   *fakeAPI
	store *entities.MemoryStore
	meta  *metadata.MemoryRepository
	svc   DeltaService
}

func newDeltaFixture(t *testing.T, cursor string) *deltaFixture {
	t.Helper()
	f := &deltaFixture{
		api:   &fakeAPI{},
		store: entities.NewMemoryStore(),
		meta:  metadata.NewMemoryRepository(),
	}
	if cursor != "" {
		for _, k := range models.AllKinds {
			require.NoError(t, f.meta.Set(context.Background(), metadata.CursorKey(k), []byte(cursor)))
		}
	}
	f.svc = NewDeltaService(f.api, f.store, f.meta, nil, 3)
	return f
}

func (f *deltaFixture) cursor(t *testing.T, kinds ...models.EntityKind) string {
	t.Helper()
	c, err := metadata.LoadCursor(context.Background(), f.meta, kinds)
	require.NoError(t, err)
	return c
}

func TestDelta_MergesChangesAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	f := newDeltaFixture(t, "2024-01-01T00:00:00Z")
	f.api.deltaResp = []*models.DeltaResponse{{
		Changes:   []models.Entity{template("t1", "CT head", "2024-01-02T00:00:00Z")},
		Deleted:   []models.Tombstone{},
		NextSince: "2024-03-01T10:00:00.5Z",
	}}

	res, err := f.svc.Delta(ctx, []models.EntityKind{models.KindTemplates})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changes)
	assert.Equal(t, "2024-03-01T10:00:00.5Z", res.NextSince)

	require.Len(t, f.api.deltaReqs, 1)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.api.deltaReqs[0].Since)
	assert.Equal(t, []models.EntityKind{models.KindTemplates}, f.api.deltaReqs[0].Entities)

	got, err := f.store.Get(ctx, models.KindTemplates, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-01T10:00:00.5Z", f.cursor(t, models.KindTemplates))
	assert.Equal(t, "2024-01-01T00:00:00Z", f.cursor(t), "other kinds keep their cursor")
}

func TestDelta_PartialPullKeepsOtherKindsBehind(t *testing.T) {
	ctx := context.Background()
	f := newDeltaFixture(t, "2024-01-01T00:00:00Z")
	f.api.deltaResp = []*models.DeltaResponse{
		{NextSince: "2024-06-01T00:00:00Z"},
		{NextSince: "2024-06-02T00:00:00Z"},
		{NextSince: "2024-06-03T00:00:00Z"},
	}

	_, err := f.svc.Delta(ctx, []models.EntityKind{models.KindTemplates})
	require.NoError(t, err)

	// findings were never pulled past the old cursor
	_, err = f.svc.Delta(ctx, []models.EntityKind{models.KindFindings})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.api.deltaReqs[1].Since)

	// a full pull starts from the oldest kind: sentences
	_, err = f.svc.Delta(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.api.deltaReqs[2].Since)

	cursors, err := metadata.KindCursors(ctx, f.meta)
	require.NoError(t, err)
	assert.Equal(t, map[models.EntityKind]string{
		models.KindTemplates: "2024-06-03T00:00:00Z",
		models.KindSentences: "2024-06-03T00:00:00Z",
		models.KindFindings:  "2024-06-03T00:00:00Z",
	}, cursors)
	assert.Equal(t, "2024-06-03T00:00:00Z", f.cursor(t))
}

func TestDelta_DefaultsToAllKindsFromEpoch(t *testing.T) {
	f := newDeltaFixture(t, "")
	f.api.deltaResp = []*models.DeltaResponse{{NextSince: "2024-01-01T00:00:00Z"}}

	_, err := f.svc.Delta(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, common.CursorEpoch, f.api.deltaReqs[0].Since)
	assert.Equal(t, models.AllKinds, f.api.deltaReqs[0].Entities)
}

func TestDelta_UnknownKindRejectedBeforeRequest(t *testing.T) {
	f := newDeltaFixture(t, "")
	_, err := f.svc.Delta(context.Background(), []models.EntityKind{"reports"})
	require.ErrorIs(t, err, common.ErrUnknownEntityKind)
	assert.Empty(t, f.api.deltaReqs)
}

func TestDelta_NetworkFailureLeavesCursor(t *testing.T) {
	f := newDeltaFixture(t, "2024-01-01T00:00:00Z")
	f.api.deltaErr = client.ErrUnavailable

	_, err := f.svc.Delta(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsOffline(err))
	assert.Equal(t, "2024-01-01T00:00:00Z", f.cursor(t))
}

func TestDelta_InvalidPayloadFailsWholePull(t *testing.T) {
	ctx := context.Background()
	f := newDeltaFixture(t, "2024-01-01T00:00:00Z")
	bad := template("t2", "", "2024-01-02T00:00:00Z")
	f.api.deltaResp = []*models.DeltaResponse{{
		Changes:   []models.Entity{template("t1", "ok", "2024-01-02T00:00:00Z"), bad},
		NextSince: "2024-02-01T00:00:00Z",
	}}

	_, err := f.svc.Delta(ctx, nil)
	require.ErrorIs(t, err, common.ErrInvalidPayload)

	rows, err := f.store.GetAll(ctx, models.KindTemplates)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.cursor(t))
}

func TestDelta_BadNextSinceRejected(t *testing.T) {
	f := newDeltaFixture(t, "2024-01-01T00:00:00Z")
	f.api.deltaResp = []*models.DeltaResponse{{NextSince: "yesterday"}}

	_, err := f.svc.Delta(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrInvalidCursor)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.cursor(t))
}

func TestDelta_CursorNeverMovesBackwards(t *testing.T) {
	f := newDeltaFixture(t, "2024-05-01T00:00:00Z")
	f.api.deltaResp = []*models.DeltaResponse{{NextSince: "2024-04-01T00:00:00Z"}}

	res, err := f.svc.Delta(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T00:00:00Z", res.NextSince)
	assert.Equal(t, "2024-05-01T00:00:00Z", f.cursor(t))
}

// Сценарий C: удаление после существующей записи, затем повторное создание.
func TestDelta_TombstoneThenRecreate(t *testing.T) {
	ctx := context.Background()
	f := newDeltaFixture(t, "2024-01-01T00:00:00Z")
	require.NoError(t, f.store.Put(ctx, models.KindTemplates, []models.Entity{template("x", "v1", "2024-01-01T00:00:00Z")}))

	f.api.deltaResp = []*models.DeltaResponse{
		{
			Deleted:   []models.Tombstone{{Kind: models.KindTemplates, ID: "x", DeletedAt: ts("2024-01-02T00:00:00Z")}},
			NextSince: "2024-01-02T00:00:01Z",
		},
		{
			Changes:   []models.Entity{template("x", "v2", "2024-01-03T00:00:00Z")},
			NextSince: "2024-01-03T00:00:01Z",
		},
	}

	res, err := f.svc.Delta(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	got, err := f.store.Get(ctx, models.KindTemplates, "x")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.svc.Delta(ctx, nil)
	require.NoError(t, err)
	got, err = f.store.Get(ctx, models.KindTemplates, "x")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ts("2024-01-03T00:00:00Z"), got.UpdatedAt.UTC())
}

func TestDelta_ReconcilesChangeAndTombstoneInOneResponse(t *testing.T) {
	ctx := context.Background()
	f := newDeltaFixture(t, "")
	f.api.deltaResp = []*models.DeltaResponse{{
		Changes: []models.Entity{
			template("newer", "n", "2024-01-03T00:00:00Z"),
			template("older", "o", "2024-01-01T00:00:00Z"),
		},
		Deleted: []models.Tombstone{
			{Kind: models.KindTemplates, ID: "newer", DeletedAt: ts("2024-01-02T00:00:00Z")},
			{Kind: models.KindTemplates, ID: "older", DeletedAt: ts("2024-01-02T00:00:00Z")},
		},
		NextSince: "2024-01-04T00:00:00Z",
	}}

	res, err := f.svc.Delta(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changes)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Skipped)

	rows, err := f.store.GetAll(ctx, models.KindTemplates)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "newer", rows[0].ID)
}

func TestDelta_CrashBeforeCursorPersistIsRecoverable(t *testing.T) {
	ctx := context.Background()
	store := entities.NewMemoryStore()
	meta := &failingMeta{Repository: metadata.NewMemoryRepository(), err: errors.New("disk full")}
	resp := &models.DeltaResponse{
		Changes:   []models.Entity{template("t1", "a", "2024-01-02T00:00:00Z")},
		NextSince: "2024-01-05T00:00:00Z",
	}
	api := &fakeAPI{deltaResp: []*models.DeltaResponse{resp}}
	svc := NewDeltaService(api, store, meta, nil, 1)

	_, err := svc.Delta(ctx, nil)
	require.ErrorContains(t, err, "persist cursor")
	cur, err := metadata.LoadCursor(ctx, meta, nil)
	require.NoError(t, err)
	assert.Equal(t, common.CursorEpoch, cur)

	first, err := store.GetAll(ctx, models.KindTemplates)
	require.NoError(t, err)

	meta.err = nil
	_, err = svc.Delta(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, common.CursorEpoch, api.deltaReqs[1].Since, "retry re-pulls from the old cursor")

	second, err := store.GetAll(ctx, models.KindTemplates)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSyncAll_FollowsHasMore(t *testing.T) {
	f := newDeltaFixture(t, "")
	f.api.deltaResp = []*models.DeltaResponse{
		{Deleted: []models.Tombstone{{Kind: models.KindFindings, ID: "a", DeletedAt: ts("2024-01-01T00:00:00Z")}}, NextSince: "2024-01-01T00:00:00Z", HasMore: true},
		{Deleted: []models.Tombstone{{Kind: models.KindFindings, ID: "b", DeletedAt: ts("2024-01-02T00:00:00Z")}}, NextSince: "2024-01-03T00:00:00Z"},
	}

	res, err := f.svc.SyncAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 2, res.Deleted)
	assert.False(t, res.HasMore)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.api.deltaReqs[1].Since)
}

func TestSyncAll_BoundedRounds(t *testing.T) {
	f := newDeltaFixture(t, "")
	f.api.deltaResp = []*models.DeltaResponse{{NextSince: "2024-01-01T00:00:00Z", HasMore: true}}

	res, err := f.svc.SyncAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rounds)
	assert.True(t, res.HasMore)
	assert.Len(t, f.api.deltaReqs, 3)
}

func TestSyncAll_FirstRoundErrorReturned(t *testing.T) {
	f := newDeltaFixture(t, "")
	f.api.deltaErr = client.ErrUnauthorized

	res, err := f.svc.SyncAll(context.Background(), nil)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Nil(t, res)
}
