package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/config"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/repomanager"
)

// DeltaService is the server delta engine: everything that changed after a
// cursor, plus the cursor to use next time.
type DeltaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	pageSize    int
	logger      logging.Logger
}

func NewDeltaService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *DeltaService {
	pageSize := cfg.TombstonePageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &DeltaService{db: db, repomanager: m, pageSize: pageSize, logger: logger}
}

// readSnapshot makes changes and tombstones come from the same snapshot.
var readSnapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// GetChanges returns every entity of the requested kinds updated after
// req.Since (ascending), the tombstones deleted after it and nextSince.
//
// nextSince is the database clock read as the first statement of the read
// snapshot, so a row committed while the response is built is picked up by
// the following pull. When the
// tombstone page is full the response sets HasMore and nextSince stops just
// before the last tombstone served.
func (s *DeltaService) GetChanges(ctx context.Context, req models.DeltaRequest) (*models.DeltaResponse, error) {
	since, err := models.ParseCursor(req.Since)
	if err != nil {
		return nil, err
	}
	kinds, err := models.NormalizeKinds(req.Entities)
	if err != nil {
		return nil, err
	}

	var nextSince time.Time
	resp := &models.DeltaResponse{Changes: []models.Entity{}, Deleted: []models.Tombstone{}}
	err = dbx.WithTx(ctx, s.db, readSnapshot, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Entities(tx)

		now, err := repo.Clock(ctx)
		if err != nil {
			return err
		}
		nextSince = now.UTC().Truncate(time.Microsecond)

		changes, err := repo.SelectChanged(ctx, kinds, since)
		if err != nil {
			return err
		}
		tombs, err := repo.SelectTombstones(ctx, kinds, since, s.pageSize+1)
		if err != nil {
			return err
		}
		if changes != nil {
			resp.Changes = changes
		}
		if tombs != nil {
			resp.Deleted = tombs
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delta since %s: %w", models.FormatCursor(since), err)
	}

	if len(resp.Deleted) > s.pageSize {
		resp.Deleted = resp.Deleted[:s.pageSize]
		resp.HasMore = true
		boundary := resp.Deleted[s.pageSize-1].DeletedAt.Add(-time.Microsecond)
		if boundary.Before(nextSince) {
			nextSince = boundary
		}
	}
	resp.NextSince = models.FormatCursor(nextSince)

	metrics.RecordDelta(len(resp.Changes), len(resp.Deleted), resp.HasMore)
	s.logger.Debug(ctx, "delta served",
		"since", models.FormatCursor(since), "kinds", len(kinds),
		"changes", len(resp.Changes), "deleted", len(resp.Deleted), "has_more", resp.HasMore)

	return resp, nil
}
