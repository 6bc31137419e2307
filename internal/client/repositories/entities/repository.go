// Package entities is the client Local Store: durable, transactional storage
// for the templates, sentences, findings and preferences collections, each
// keyed by entity id.
//
// Writes are last-write-wins on updated_at. Within one Put batch the later
// row for a key wins regardless of timestamps, matching apply order.
package entities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/radsync/internal/models"
)

var (
	// ErrStorageUnavailable wraps any failure of the underlying engine.
	// Callers treat the store as an optional cache and fall back to the network.
	ErrStorageUnavailable = errors.New("local store unavailable")

	ErrEmptyBatch    = errors.New("empty batch")
	ErrKindMismatch  = errors.New("row kind does not match collection")
	ErrUnknownBucket = errors.New("unknown collection")
)

// Tx is the write handle passed to Update.
type Tx interface {
	// Put upserts rows into the kind collection.
	Put(ctx context.Context, kind models.EntityKind, rows []models.Entity) error

	// Delete removes the row unless it was updated after deletedAt. Absent
	// rows are not an error; removed reports whether a row went away.
	Delete(ctx context.Context, kind models.EntityKind, id string, deletedAt time.Time) (removed bool, err error)
}

// Store is the Local Store contract shared by the sqlite and in-memory
// implementations.
type Store interface {
	// Update runs fn in one scoped transaction: commit when fn returns nil,
	// rollback on error or panic.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Put(ctx context.Context, kind models.EntityKind, rows []models.Entity) error
	GetAll(ctx context.Context, kind models.EntityKind) ([]models.Entity, error)

	// Get returns (nil, nil) when the row is absent.
	Get(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error)
}

func checkCollection(kind models.EntityKind) error {
	if kind.Valid() || kind == models.KindPreferences {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownBucket, kind)
}

// collapse validates a batch and keeps only the last row per id, preserving
// first-seen order.
func collapse(kind models.EntityKind, rows []models.Entity) ([]models.Entity, error) {
	if err := checkCollection(kind); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	pos := make(map[string]int, len(rows))
	out := make([]models.Entity, 0, len(rows))
	for _, r := range rows {
		if r.Kind != kind {
			return nil, fmt.Errorf("%w: %s/%s in %s", ErrKindMismatch, r.Kind, r.ID, kind)
		}
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
