// Package operations declares the durable operation log that makes push
// idempotent on op_id.
package operations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// Repository records client operations.
type Repository interface {
	// Exists reports whether opID is already in the log.
	Exists(ctx context.Context, opID string) (bool, error)

	// Append records op for userID. It returns false when a row with the same
	// op_id won a concurrent race.
	Append(ctx context.Context, userID string, op models.Operation) (bool, error)

	// SelectSince returns up to limit log rows of userID with ts > since,
	// oldest first.
	SelectSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.LogEntry, error)
}
