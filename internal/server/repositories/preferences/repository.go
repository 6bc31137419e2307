// Package preferences stores per-user UI preferences.
package preferences

import (
	"context"

	"github.com/dmitrijs2005/radsync/internal/models"
)

type Repository interface {
	// Get returns the stored preferences or common.ErrorNotFound.
	Get(ctx context.Context, userID string) (*models.Preferences, error)

	// Put replaces the preferences of p.UserID and stamps them with the
	// database clock.
	Put(ctx context.Context, p models.Preferences) (*models.Preferences, error)

	// ApplyIfNewer upserts p unless the stored row has a later updated_at.
	// It reports whether p was written.
	ApplyIfNewer(ctx context.Context, p models.Preferences) (bool, error)
}
