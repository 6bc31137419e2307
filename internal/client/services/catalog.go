package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/validation"
)

// Source tells where a catalog answer came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceLocal   Source = "local"
)

// preferencesID is the single row of the local preferences collection.
const preferencesID = "self"

// Listing is one catalog read.
type Listing struct {
	Rows   []models.Entity
	Source Source
}

// Enqueuer accepts operations for the Push Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, op models.Operation) (models.Operation, error)
}

// CatalogService reads reference collections through the network with the
// Local Store as fallback. Fresh network rows are written back to the store;
// a 304 or a network failure is answered from the store.
type CatalogService interface {
	List(ctx context.Context, kind models.EntityKind, modality, search string) (*Listing, error)
	Template(ctx context.Context, id string) (*models.Entity, Source, error)
	Prefs(ctx context.Context) (*models.Preferences, Source, error)
	SavePrefs(ctx context.Context, p models.Preferences) (*models.Preferences, error)
	PutPrefs(ctx context.Context, p models.Preferences) (*models.Preferences, Source, error)
	OperationLog(ctx context.Context, since string) (*models.PullResponse, error)
}

type catalogService struct {
	api    SyncAPI
	store  entities.Store
	queue  Enqueuer
	logger logging.Logger
	now    func() time.Time
}

func NewCatalogService(api SyncAPI, store entities.Store, q Enqueuer, logger logging.Logger) CatalogService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &catalogService{api: api, store: store, queue: q, logger: logger, now: time.Now}
}

func (s *catalogService) List(ctx context.Context, kind models.EntityKind, modality, search string) (*Listing, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("list: %w", entities.ErrUnknownBucket)
	}

	rows, fromCache, err := s.api.List(ctx, kind, modality, search)
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return nil, err
	case err == nil && !fromCache:
		valid := s.keepValid(ctx, rows)
		if len(valid) > 0 {
			if perr := s.store.Put(ctx, kind, valid); perr != nil {
				s.logger.Warn(ctx, "local store write failed", "kind", kind, "error", perr)
			}
		}
		return &Listing{Rows: valid, Source: SourceNetwork}, nil
	case err != nil:
		s.logger.Info(ctx, "catalog read falling back to local store", "kind", kind, "error", err)
	}

	local, lerr := s.store.GetAll(ctx, kind)
	if lerr != nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", client.ErrLocalDataNotAvailable, lerr)
	}
	return &Listing{Rows: filterLocal(local, modality, search), Source: SourceLocal}, nil
}

// Template reads one template. A 404 is returned as is; a 304 or an
// unreachable server is answered from the store.
func (s *catalogService) Template(ctx context.Context, id string) (*models.Entity, Source, error) {
	row, fromCache, err := s.api.Template(ctx, id)
	switch {
	case errors.Is(err, client.ErrUnauthorized), client.IsStatus(err, http.StatusNotFound):
		return nil, "", err
	case err == nil && !fromCache:
		if _, verr := models.DecodePayload(*row, validation.Struct); verr != nil {
			return nil, "", fmt.Errorf("template %s: %w", id, verr)
		}
		if perr := s.store.Put(ctx, models.KindTemplates, []models.Entity{*row}); perr != nil {
			s.logger.Warn(ctx, "local store write failed", "kind", models.KindTemplates, "error", perr)
		}
		return row, SourceNetwork, nil
	case err != nil:
		s.logger.Info(ctx, "template read falling back to local store", "id", id, "error", err)
	}

	local, lerr := s.store.Get(ctx, models.KindTemplates, id)
	switch {
	case lerr != nil:
		return nil, "", fmt.Errorf("%w: %v", client.ErrLocalDataNotAvailable, lerr)
	case local == nil && err != nil:
		return nil, "", err
	case local == nil:
		return nil, "", fmt.Errorf("template %s: %w", id, client.ErrLocalDataNotAvailable)
	}
	return local, SourceLocal, nil
}

// OperationLog reads the server's legacy operation feed. Nothing is stored.
func (s *catalogService) OperationLog(ctx context.Context, since string) (*models.PullResponse, error) {
	return s.api.Pull(ctx, since)
}

// keepValid drops rows whose payload does not match their kind's schema.
func (s *catalogService) keepValid(ctx context.Context, rows []models.Entity) []models.Entity {
	out := make([]models.Entity, 0, len(rows))
	for _, r := range rows {
		if _, err := models.DecodePayload(r, validation.Struct); err != nil {
			s.logger.Warn(ctx, "dropping invalid row", "kind", r.Kind, "id", r.ID, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *catalogService) Prefs(ctx context.Context) (*models.Preferences, Source, error) {
	p, err := s.api.Prefs(ctx)
	if err == nil {
		if perr := s.putPrefs(ctx, *p); perr != nil {
			s.logger.Warn(ctx, "local store write failed", "kind", models.KindPreferences, "error", perr)
		}
		return p, SourceNetwork, nil
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return nil, "", err
	}

	row, lerr := s.store.Get(ctx, models.KindPreferences, preferencesID)
	if lerr != nil {
		return nil, "", err
	}
	if row == nil {
		d := models.DefaultPreferences("")
		return &d, SourceLocal, nil
	}
	var local models.Preferences
	if uerr := json.Unmarshal(row.Payload, &local); uerr != nil {
		return nil, "", fmt.Errorf("decode local preferences: %w", uerr)
	}
	return &local, SourceLocal, nil
}

// SavePrefs applies p locally right away and queues it for the server, which
// keeps the newest write by client timestamp.
func (s *catalogService) SavePrefs(ctx context.Context, p models.Preferences) (*models.Preferences, error) {
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.putPrefs(ctx, p); err != nil {
		s.logger.Warn(ctx, "local store write failed", "kind", models.KindPreferences, "error", err)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, models.Operation{
		Kind:     models.OpKindPreferences,
		EntityID: p.UserID,
		Type:     models.OpUpdate,
		Payload:  payload,
		ClientTS: p.UpdatedAt,
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutPrefs writes p to the server directly and stores the server's copy.
// When the server cannot take it now the write is queued like SavePrefs.
func (s *catalogService) PutPrefs(ctx context.Context, p models.Preferences) (*models.Preferences, Source, error) {
	if err := validation.Struct(p); err != nil {
		return nil, "", err
	}
	p.UpdatedAt = s.now().UTC()

	saved, err := s.api.PutPrefs(ctx, p)
	var he *client.HTTPError
	switch {
	case err == nil:
		if perr := s.putPrefs(ctx, *saved); perr != nil {
			s.logger.Warn(ctx, "local store write failed", "kind", models.KindPreferences, "error", perr)
		}
		return saved, SourceNetwork, nil
	case errors.Is(err, client.ErrUnauthorized):
		return nil, "", err
	case errors.As(err, &he) && !he.Retryable():
		return nil, "", err
	}

	s.logger.Info(ctx, "preferences update queued", "error", err)
	queued, err := s.SavePrefs(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return queued, SourceLocal, nil
}

func (s *catalogService) putPrefs(ctx context.Context, p models.Preferences) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ts := p.UpdatedAt
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	return s.store.Put(ctx, models.KindPreferences, []models.Entity{{
		Kind:      models.KindPreferences,
		ID:        preferencesID,
		Payload:   payload,
		UpdatedAt: ts,
	}})
}

// filterLocal applies the server-side list filters to cached rows and
// orders them the way the server does.
func filterLocal(rows []models.Entity, modality, search string) []models.Entity {
	search = strings.ToLower(strings.TrimSpace(search))
	type keyed struct {
		e     models.Entity
		order int
		label string
	}
	var kept []keyed
	for _, r := range rows {
		p, err := models.DecodePayload(r, nil)
		if err != nil {
			continue
		}
		var mod, text string
		order := 0
		switch v := p.(type) {
		case models.TemplatePayload:
			mod, text, order = v.Modality, v.Title, v.SortOrder
		case models.SentencePayload:
			mod, text = v.Modality, v.Text
		case models.FindingPayload:
			mod, text = v.Modality, v.Description
		}
		if modality != "" && !strings.EqualFold(mod, modality) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(text), search) {
			continue
		}
		kept = append(kept, keyed{e: r, order: order, label: text})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].order != kept[j].order {
			return kept[i].order < kept[j].order
		}
		return kept[i].label < kept[j].label
	})
	out := make([]models.Entity, len(kept))
	for i, k := range kept {
		out[i] = k.e
	}
	return out
}
