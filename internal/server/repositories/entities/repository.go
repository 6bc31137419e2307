// Package entities declares the server-side contract for the reference
// collections (templates, smart sentences, findings) and their tombstones.
package entities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// ListFilter narrows a read-endpoint listing. Empty fields do not filter.
type ListFilter struct {
	Modality string
	Search   string
	Limit    int
}

// Repository reads and maintains reference entities.
type Repository interface {
	// Clock returns the database clock, the same clock that stamps
	// updated_at and deleted_at.
	Clock(ctx context.Context) (time.Time, error)

	// SelectChanged returns every entity of kinds with updated_at > since,
	// ordered by updated_at ascending.
	SelectChanged(ctx context.Context, kinds []models.EntityKind, since time.Time) ([]models.Entity, error)

	// SelectTombstones returns up to limit tombstones of kinds with
	// deleted_at > since, ordered by deleted_at ascending.
	SelectTombstones(ctx context.Context, kinds []models.EntityKind, since time.Time, limit int) ([]models.Tombstone, error)

	// List serves the public read endpoints.
	List(ctx context.Context, kind models.EntityKind, f ListFilter) ([]models.Entity, error)

	// Get returns one entity or common.ErrorNotFound.
	Get(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error)

	// Upsert stores e and returns the server-assigned updated_at.
	Upsert(ctx context.Context, e models.Entity, modality string) (time.Time, error)

	// Delete removes an entity. The schema trigger records the tombstone.
	Delete(ctx context.Context, kind models.EntityKind, id string) error
}
