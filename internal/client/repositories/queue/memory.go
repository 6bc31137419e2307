package queue

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// MemoryQueue is a non-durable Queue.
type MemoryQueue struct {
	mu  sync.Mutex
	ops []models.Operation
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, op models.Operation) error {
	if op.OpID == "" {
		return ErrNoOpID
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, o := range q.ops {
		if o.OpID == op.OpID {
			return nil
		}
	}
	q.ops = append(q.ops, op)
	return nil
}

func (q *MemoryQueue) Peek(_ context.Context, limit int) ([]models.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ops)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(q.ops[:n]), nil
}

func (q *MemoryQueue) Ack(_ context.Context, opIDs []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = slices.DeleteFunc(q.ops, func(o models.Operation) bool {
		return slices.Contains(opIDs, o.OpID)
	})
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops), nil
}
