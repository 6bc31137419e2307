// Package metadata stores small client-side key/value state next to the
// Local Store: per-kind sync cursors, persisted validators and session
// tokens.
package metadata

import (
	"context"
)

// Repository is a byte-valued key/value store. Get returns (nil, nil) for
// absent keys.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, kv map[string][]byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	// ListPrefix and DeletePrefix address a family of keys such as the
	// per-kind cursors.
	ListPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
	DeletePrefix(ctx context.Context, prefix string) error
}
