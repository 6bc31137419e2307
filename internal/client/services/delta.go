package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/validation"
)

// DefaultMaxDeltaRounds bounds the follow-up pulls SyncAll issues while the
// server reports a truncated tombstone page.
const DefaultMaxDeltaRounds = 10

// DeltaResult summarizes one or more merged delta responses.
type DeltaResult struct {
	Changes   int
	Deleted   int
	Skipped   int
	Rounds    int
	NextSince string
	HasMore   bool
}

// DeltaService pulls changes since the persisted cursor and merges them
// into the Local Store.
//
// Contract:
//   - Delta: one round trip starting from the oldest cursor of the
//     requested kinds. Only those kinds' cursors advance, and only after the
//     merge committed; on any failure they are left untouched.
//   - SyncAll: Delta repeated while the server reports hasMore, bounded by
//     the configured number of rounds.
type DeltaService interface {
	Delta(ctx context.Context, kinds []models.EntityKind) (*DeltaResult, error)
	SyncAll(ctx context.Context, kinds []models.EntityKind) (*DeltaResult, error)
}

type deltaService struct {
	api       SyncAPI
	store     entities.Store
	meta      metadata.Repository
	validate  models.Validator
	logger    logging.Logger
	maxRounds int
}

// NewDeltaService wires the Delta Sync Client. maxRounds <= 0 selects
// DefaultMaxDeltaRounds.
func NewDeltaService(api SyncAPI, store entities.Store, meta metadata.Repository, logger logging.Logger, maxRounds int) DeltaService {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxDeltaRounds
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &deltaService{
		api:       api,
		store:     store,
		meta:      meta,
		validate:  validation.Struct,
		logger:    logger,
		maxRounds: maxRounds,
	}
}

func (s *deltaService) Delta(ctx context.Context, kinds []models.EntityKind) (res *DeltaResult, err error) {
	defer func() { metrics.RecordClientSync("pull", err) }()

	kinds, err = models.NormalizeKinds(kinds)
	if err != nil {
		return nil, err
	}

	since, err := metadata.LoadCursor(ctx, s.meta, kinds)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	resp, err := s.api.Delta(ctx, models.DeltaRequest{Since: since, Entities: kinds})
	if err != nil {
		return nil, fmt.Errorf("delta request: %w", err)
	}
	if _, perr := models.ParseCursor(resp.NextSince); perr != nil || resp.NextSince == "" {
		return nil, fmt.Errorf("%w: nextSince %q", common.ErrInvalidCursor, resp.NextSince)
	}

	changes, tombstones, skipped := reconcile(resp.Changes, resp.Deleted)
	for _, e := range changes {
		if _, err := models.DecodePayload(e, s.validate); err != nil {
			return nil, err
		}
	}

	err = s.store.Update(ctx, func(ctx context.Context, tx entities.Tx) error {
		for _, g := range groupByKind(changes) {
			if err := tx.Put(ctx, g.kind, g.rows); err != nil {
				return err
			}
		}
		for _, t := range tombstones {
			if _, err := tx.Delete(ctx, t.Kind, t.ID, t.DeletedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge delta: %w", err)
	}

	cursor, err := metadata.AdvanceCursor(ctx, s.meta, kinds, resp.NextSince)
	if err != nil {
		return nil, fmt.Errorf("persist cursor: %w", err)
	}

	s.logger.Info(ctx, "delta merged",
		"since", since,
		"changes", len(changes),
		"deleted", len(tombstones),
		"skipped", skipped,
		"next_since", cursor,
		"has_more", resp.HasMore,
	)

	return &DeltaResult{
		Changes:   len(changes),
		Deleted:   len(tombstones),
		Skipped:   skipped,
		Rounds:    1,
		NextSince: cursor,
		HasMore:   resp.HasMore,
	}, nil
}

func (s *deltaService) SyncAll(ctx context.Context, kinds []models.EntityKind) (*DeltaResult, error) {
	total := &DeltaResult{}
	for total.Rounds < s.maxRounds {
		r, err := s.Delta(ctx, kinds)
		if err != nil {
			if total.Rounds > 0 {
				return total, err
			}
			return nil, err
		}
		total.Rounds++
		total.Changes += r.Changes
		total.Deleted += r.Deleted
		total.Skipped += r.Skipped
		total.NextSince = r.NextSince
		total.HasMore = r.HasMore
		if !r.HasMore {
			break
		}
	}
	if total.HasMore {
		s.logger.Warn(ctx, "delta still truncated after max rounds", "rounds", total.Rounds)
	}
	return total, nil
}

// reconcile resolves keys that appear both as a change and as a tombstone
// in one response: the later timestamp wins, ties go to the tombstone.
func reconcile(changes []models.Entity, deleted []models.Tombstone) ([]models.Entity, []models.Tombstone, int) {
	lastChange := make(map[models.Key]time.Time, len(changes))
	for _, c := range changes {
		if t, ok := lastChange[c.Key()]; !ok || c.UpdatedAt.After(t) {
			lastChange[c.Key()] = c.UpdatedAt
		}
	}
	lastDelete := make(map[models.Key]time.Time, len(deleted))
	for _, d := range deleted {
		if t, ok := lastDelete[d.Key()]; !ok || d.DeletedAt.After(t) {
			lastDelete[d.Key()] = d.DeletedAt
		}
	}

	skipped := 0
	keptChanges := make([]models.Entity, 0, len(changes))
	for _, c := range changes {
		if d, ok := lastDelete[c.Key()]; ok && !d.Before(c.UpdatedAt) {
			skipped++
			continue
		}
		keptChanges = append(keptChanges, c)
	}
	keptDeleted := make([]models.Tombstone, 0, len(deleted))
	for _, d := range deleted {
		if u, ok := lastChange[d.Key()]; ok && u.After(d.DeletedAt) {
			skipped++
			continue
		}
		keptDeleted = append(keptDeleted, d)
	}
	return keptChanges, keptDeleted, skipped
}

type kindGroup struct {
	kind models.EntityKind
	rows []models.Entity
}

// groupByKind splits rows per collection keeping server order within each.
func groupByKind(rows []models.Entity) []kindGroup {
	var out []kindGroup
	idx := map[models.EntityKind]int{}
	for _, r := range rows {
		i, ok := idx[r.Kind]
		if !ok {
			i = len(out)
			idx[r.Kind] = i
			out = append(out, kindGroup{kind: r.Kind})
		}
		out[i].rows = append(out[i].rows, r)
	}
	return out
}

// IsOffline reports whether err means the server could not be reached.
func IsOffline(err error) bool {
	return errors.Is(err, client.ErrUnavailable)
}
