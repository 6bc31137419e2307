// Package usage records report-generation events.
package usage

import (
	"context"

	"github.com/dmitrijs2005/radsync/internal/models"
)

type Repository interface {
	// Insert stores one event. opID links the row to the operation that
	// carried it and may be empty for direct submissions.
	Insert(ctx context.Context, userID, opID string, evt models.UsageEvent) error
}
