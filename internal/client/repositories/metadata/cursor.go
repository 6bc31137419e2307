package metadata

import (
	"context"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// CursorKey is the metadata key holding the sync cursor of one collection.
func CursorKey(kind models.EntityKind) string {
	return common.CursorMetadataPrefix + string(kind)
}

// LoadCursor returns the cursor a pull of kinds starts from: the oldest of
// their cursors, where a kind never pulled counts as the epoch. An empty
// kinds means every kind.
func LoadCursor(ctx context.Context, r Repository, kinds []models.EntityKind) (string, error) {
	all, err := KindCursors(ctx, r)
	if err != nil {
		return "", err
	}
	return oldest(all, kinds), nil
}

// AdvanceCursor moves the cursor of every kind in kinds to next, leaving a
// kind alone when its cursor is already later. The moved cursors are written
// together. It returns the cursor the next pull of kinds would start from.
func AdvanceCursor(ctx context.Context, r Repository, kinds []models.EntityKind, next string) (string, error) {
	if len(kinds) == 0 {
		kinds = models.AllKinds
	}
	all, err := KindCursors(ctx, r)
	if err != nil {
		return "", err
	}
	moved := make(map[string][]byte)
	for _, k := range kinds {
		if winner := models.LaterCursor(all[k], next); winner != all[k] {
			all[k] = winner
			moved[CursorKey(k)] = []byte(winner)
		}
	}
	if err := r.SetMany(ctx, moved); err != nil {
		return "", err
	}
	return oldest(all, kinds), nil
}

// KindCursors returns the cursor of every kind.
func KindCursors(ctx context.Context, r Repository) (map[models.EntityKind]string, error) {
	stored, err := r.ListPrefix(ctx, common.CursorMetadataPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[models.EntityKind]string, len(models.AllKinds))
	for _, k := range models.AllKinds {
		out[k] = common.CursorEpoch
		if v := stored[CursorKey(k)]; len(v) > 0 {
			out[k] = string(v)
		}
	}
	return out, nil
}

// ResetCursors forgets every per-kind cursor.
func ResetCursors(ctx context.Context, r Repository) error {
	return r.DeletePrefix(ctx, common.CursorMetadataPrefix)
}

func oldest(all map[models.EntityKind]string, kinds []models.EntityKind) string {
	if len(kinds) == 0 {
		kinds = models.AllKinds
	}
	since := all[kinds[0]]
	for _, k := range kinds[1:] {
		since = models.EarlierCursor(since, all[k])
	}
	return since
}
