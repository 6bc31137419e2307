package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/repomanager"
)

// listLimits caps each public listing.
var listLimits = map[models.EntityKind]int{
	models.KindTemplates: 500,
	models.KindSentences: 1000,
	models.KindFindings:  100,
}

// CatalogService backs the public read endpoints and the per-user
// preferences and usage endpoints.
type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	lists       *ListCache
	logger      logging.Logger
}

// NewCatalogService wires the read side. lists may be nil to always read
// from the database.
func NewCatalogService(db *sql.DB, m repomanager.RepositoryManager, lists *ListCache, logger logging.Logger) *CatalogService {
	return &CatalogService{db: db, repomanager: m, lists: lists, logger: logger}
}

// List returns one collection filtered by modality and, for findings, a
// case-insensitive description search. Cached kinds are read through the
// list cache keyed by modality.
func (s *CatalogService) List(ctx context.Context, kind models.EntityKind, modality, search string) ([]models.Entity, CacheStatus, error) {
	if !kind.Valid() {
		return nil, "", fmt.Errorf("%w: %q", common.ErrUnknownEntityKind, kind)
	}
	modality = strings.TrimSpace(modality)
	if kind != models.KindFindings {
		search = ""
	}

	cached := s.lists.cached(kind)
	if cached {
		if rows, ok := s.lists.get(kind, modality); ok {
			return rows, CacheHit, nil
		}
	}

	rows, err := s.repomanager.Entities(s.db).List(ctx, kind, entities.ListFilter{
		Modality: modality,
		Search:   strings.TrimSpace(search),
		Limit:    listLimits[kind],
	})
	if err != nil {
		return nil, "", err
	}
	if rows == nil {
		rows = []models.Entity{}
	}
	if !cached {
		return rows, "", nil
	}
	s.lists.put(kind, modality, rows)
	return rows, CacheMiss, nil
}

// Template returns one template or common.ErrorNotFound.
func (s *CatalogService) Template(ctx context.Context, id string) (*models.Entity, error) {
	return s.repomanager.Entities(s.db).Get(ctx, models.KindTemplates, id)
}

// Prefs returns the stored preferences or the defaults for a new user.
func (s *CatalogService) Prefs(ctx context.Context, userID string) (*models.Preferences, error) {
	p, err := s.repomanager.Preferences(s.db).Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		d := models.DefaultPreferences(userID)
		return &d, nil
	}
	return p, err
}

// PutPrefs replaces the user's preferences.
func (s *CatalogService) PutPrefs(ctx context.Context, userID string, p models.Preferences) (*models.Preferences, error) {
	p.UserID = userID
	out, err := s.repomanager.Preferences(s.db).Put(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "preferences saved", "user_id", userID)
	return out, nil
}

// RecordUsage stores a usage event submitted directly rather than through push.
func (s *CatalogService) RecordUsage(ctx context.Context, userID string, evt models.UsageEvent) error {
	evt.Normalize()
	return s.repomanager.Usage(s.db).Insert(ctx, userID, "", evt)
}
