package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// Status is a snapshot of local sync state.
type Status struct {
	Cursor     string
	Cursors    map[models.EntityKind]string
	Pending    int
	DeviceID   string
	LastOnline time.Time
}

// ReadStatus collects Status from the metadata repository and the queue.
func ReadStatus(ctx context.Context, meta metadata.Repository, q queue.Queue) (*Status, error) {
	cursors, err := metadata.KindCursors(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("load cursors: %w", err)
	}
	cursor := common.CursorEpoch
	for i, k := range models.AllKinds {
		if i == 0 {
			cursor = cursors[k]
			continue
		}
		cursor = models.EarlierCursor(cursor, cursors[k])
	}
	pending, err := q.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue length: %w", err)
	}
	dev, err := meta.Get(ctx, common.DeviceIDMetadataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", common.DeviceIDMetadataKey, err)
	}
	st := &Status{Cursor: cursor, Cursors: cursors, Pending: pending, DeviceID: string(dev)}

	last, err := meta.Get(ctx, common.LastOnlineMetadataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", common.LastOnlineMetadataKey, err)
	}
	if len(last) > 0 {
		if t, perr := time.Parse(time.RFC3339Nano, string(last)); perr == nil {
			st.LastOnline = t
		}
	}
	return st, nil
}

// MarkOnline records the last time the server answered a health probe.
func MarkOnline(ctx context.Context, meta metadata.Repository, at time.Time) error {
	return meta.Set(ctx, common.LastOnlineMetadataKey, []byte(at.UTC().Format(time.RFC3339Nano)))
}

// EnsureDeviceID returns configured when set, otherwise the persisted device
// id, generating and storing one on first use.
func EnsureDeviceID(ctx context.Context, meta metadata.Repository, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	v, err := meta.Get(ctx, common.DeviceIDMetadataKey)
	if err != nil {
		return "", fmt.Errorf("failed to get metadata[%s]: %w", common.DeviceIDMetadataKey, err)
	}
	if len(v) > 0 {
		return string(v), nil
	}
	id := uuid.NewString()
	if err := meta.Set(ctx, common.DeviceIDMetadataKey, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to set metadata[%s]: %w", common.DeviceIDMetadataKey, err)
	}
	return id, nil
}
