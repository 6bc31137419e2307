package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/config"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/repomanager"
)

// PullService serves the legacy operation-log feed.
type PullService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	pageSize    int
	logger      logging.Logger
	now         func() time.Time
}

func NewPullService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *PullService {
	pageSize := cfg.PullPageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	return &PullService{db: db, repomanager: m, pageSize: pageSize, logger: logger, now: time.Now}
}

// Pull returns the user's log rows after since. Like the delta engine it
// hands out the server clock read before the query; a full page instead
// resumes just before its last row and sets HasMore.
func (s *PullService) Pull(ctx context.Context, userID, since string) (*models.PullResponse, error) {
	from, err := models.ParseCursor(since)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Microsecond)

	rows, err := s.repomanager.Operations(s.db).SelectSince(ctx, userID, from, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("pull since %s: %w", models.FormatCursor(from), err)
	}
	if rows == nil {
		rows = []models.LogEntry{}
	}

	resp := &models.PullResponse{Changes: rows, NextSince: models.FormatCursor(now)}
	if len(rows) == s.pageSize {
		resp.HasMore = true
		resp.NextSince = models.FormatCursor(rows[len(rows)-1].UpdatedAt.Add(-time.Microsecond))
	}

	s.logger.Debug(ctx, "pull served", "user_id", userID, "rows", len(rows), "has_more", resp.HasMore)
	return resp, nil
}
