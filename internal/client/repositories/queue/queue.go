// Package queue is the client push queue: a durable FIFO of operations
// waiting for the server to acknowledge them.
package queue

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/radsync/internal/models"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrNoOpID = errors.New("operation has no op_id")
)

// Queue holds pending operations in enqueue order. Enqueue is idempotent on
// op_id: re-adding a pending op keeps its original position.
type Queue interface {
	Enqueue(ctx context.Context, op models.Operation) error

	// Peek returns up to limit ops from the head without removing them.
	Peek(ctx context.Context, limit int) ([]models.Operation, error)

	// Ack removes the given ops. Unknown ids are ignored.
	Ack(ctx context.Context, opIDs []string) error

	Len(ctx context.Context) (int, error)
}
