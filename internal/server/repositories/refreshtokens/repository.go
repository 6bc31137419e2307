// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/radsync/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID expiring at expires.
	Create(ctx context.Context, userID string, token string, expires time.Time) error

	// Find looks up a refresh token by its opaque token string and returns its metadata.
	// Returns common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string and reports whether
	// a row was removed. A concurrent rotation of the same token sees false.
	Delete(ctx context.Context, token string) (bool, error)
}
