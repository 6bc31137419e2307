package entities

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// MemoryStore is a Store over a map. Update works on a snapshot that replaces
// the live map only on commit.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[models.Key]models.Entity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[models.Key]models.Entity)}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &memoryTx{rows: maps.Clone(s.rows)}
	if err := fn(ctx, snap); err != nil {
		return err
	}
	s.rows = snap.rows
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, kind models.EntityKind, rows []models.Entity) error {
	return s.Update(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Put(ctx, kind, rows)
	})
}

func (s *MemoryStore) GetAll(_ context.Context, kind models.EntityKind) ([]models.Entity, error) {
	if err := checkCollection(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entity
	for k, e := range s.rows {
		if k.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	if err := checkCollection(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rows[models.Key{Kind: kind, ID: id}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

type memoryTx struct {
	rows map[models.Key]models.Entity
}

func (t *memoryTx) Put(_ context.Context, kind models.EntityKind, rows []models.Entity) error {
	batch, err := collapse(kind, rows)
	if err != nil {
		return err
	}
	for _, r := range batch {
		k := r.Key()
		if cur, ok := t.rows[k]; ok && r.UpdatedAt.Before(cur.UpdatedAt) {
			continue
		}
		t.rows[k] = r
	}
	return nil
}

func (t *memoryTx) Delete(_ context.Context, kind models.EntityKind, id string, deletedAt time.Time) (bool, error) {
	if err := checkCollection(kind); err != nil {
		return false, err
	}
	k := models.Key{Kind: kind, ID: id}
	cur, ok := t.rows[k]
	if !ok || cur.UpdatedAt.After(deletedAt) {
		return false, nil
	}
	delete(t.rows, k)
	return true, nil
}
