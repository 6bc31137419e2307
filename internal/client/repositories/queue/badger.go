package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/models"
)

const (
	prefixOp    = "q/"
	prefixIndex = "id/"
	seqKey      = "seq"
)

// BadgerQueue persists operations in badger. Ops live under q/<seq> with a
// big-endian sequence so key order is FIFO; id/<op_id> points at the op key.
type BadgerQueue struct {
	mu     sync.RWMutex
	db     *badger.DB
	seq    *badger.Sequence
	closed bool
}

// Options for OpenBadger. An empty Dir opens an in-memory queue.
type Options struct {
	Dir        string
	SyncWrites bool
}

func OpenBadger(opts Options) (*BadgerQueue, error) {
	bo := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		bo = bo.WithInMemory(true)
	}
	bo.SyncWrites = opts.SyncWrites
	bo.Logger = nil

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqKey), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open queue sequence: %w", err)
	}
	return &BadgerQueue{db: db, seq: seq}, nil
}

func opKey(n uint64) []byte {
	k := make([]byte, len(prefixOp)+8)
	copy(k, prefixOp)
	binary.BigEndian.PutUint64(k[len(prefixOp):], n)
	return k
}

func indexKey(opID string) []byte {
	return []byte(prefixIndex + opID)
}

func (q *BadgerQueue) Enqueue(ctx context.Context, op models.Operation) error {
	if op.OpID == "" {
		return ErrNoOpID
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode op %s: %w", op.OpID, err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(indexKey(op.OpID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("lookup op %s: %w", op.OpID, err)
		}

		n, err := q.seq.Next()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		key := opKey(n)
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(op.OpID), key)
	})
}

func (q *BadgerQueue) Peek(ctx context.Context, limit int) ([]models.Operation, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}

	var ops []models.Operation
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixOp)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ops) >= limit {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var op models.Operation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &op)
			}); err != nil {
				return fmt.Errorf("decode queued op: %w", err)
			}
			ops = append(ops, op)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	return ops, nil
}

func (q *BadgerQueue) Ack(ctx context.Context, opIDs []string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	return q.db.Update(func(txn *badger.Txn) error {
		for _, id := range opIDs {
			item, err := txn.Get(indexKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("lookup op %s: %w", id, err)
			}
			key, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(indexKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *BadgerQueue) Len(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, ErrClosed
	}

	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixOp)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close releases the sequence lease and closes badger.
func (q *BadgerQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if err := q.seq.Release(); err != nil {
		_ = q.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return q.db.Close()
}
