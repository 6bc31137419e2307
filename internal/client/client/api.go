package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// API is the typed surface of the radsync HTTP API.
type API struct {
	t *Transport
}

func NewAPI(t *Transport) *API {
	return &API{t: t}
}

func (a *API) Transport() *Transport { return a.t }

// Delta pulls changes after req.Since for req.Entities.
func (a *API) Delta(ctx context.Context, req models.DeltaRequest) (*models.DeltaResponse, error) {
	var out models.DeltaResponse
	if _, err := a.t.Do(ctx, Request{Method: http.MethodPost, Path: "/v1/sync/delta", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Push submits a batch of operations and returns the ids applied by this call.
func (a *API) Push(ctx context.Context, ops []models.Operation) (*models.PushResponse, error) {
	var out models.PushResponse
	if _, err := a.t.Do(ctx, Request{Method: http.MethodPost, Path: "/v1/sync/push", Body: models.PushRequest{Ops: ops}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pull reads the legacy operation-log feed.
func (a *API) Pull(ctx context.Context, since string) (*models.PullResponse, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	var out models.PullResponse
	if _, err := a.t.Do(ctx, Request{Path: "/v1/sync/pull", Query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches a read collection. fromCache means the caller must reuse its
// previous copy; rows is nil in that case.
func (a *API) List(ctx context.Context, kind models.EntityKind, modality, search string) (rows []models.Entity, fromCache bool, err error) {
	q := url.Values{}
	if modality != "" {
		q.Set("mod", modality)
	}
	if search != "" {
		q.Set("q", search)
	}
	var out models.DataEnvelope[[]models.Entity]
	resp, err := a.t.Do(ctx, Request{Path: listPath(kind), Query: q}, &out)
	if err != nil {
		return nil, false, err
	}
	if resp.FromCache {
		return nil, true, nil
	}
	return out.Data, false, nil
}

func listPath(kind models.EntityKind) string {
	switch kind {
	case models.KindSentences:
		return "/v1/sentences"
	case models.KindFindings:
		return "/v1/findings"
	default:
		return "/v1/templates"
	}
}

// Template fetches one template by id.
func (a *API) Template(ctx context.Context, id string) (*models.Entity, bool, error) {
	var out models.DataEnvelope[models.Entity]
	resp, err := a.t.Do(ctx, Request{Path: "/v1/templates/" + url.PathEscape(id)}, &out)
	if err != nil {
		return nil, false, err
	}
	if resp.FromCache {
		return nil, true, nil
	}
	return &out.Data, false, nil
}

func (a *API) Prefs(ctx context.Context) (*models.Preferences, error) {
	var out models.DataEnvelope[models.Preferences]
	if _, err := a.t.Do(ctx, Request{Path: "/v1/prefs"}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (a *API) PutPrefs(ctx context.Context, p models.Preferences) (*models.Preferences, error) {
	var out models.DataEnvelope[models.Preferences]
	if _, err := a.t.Do(ctx, Request{Method: http.MethodPut, Path: "/v1/prefs", Body: p}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Ping checks reachability through the unauthenticated health endpoint.
func (a *API) Ping(ctx context.Context) error {
	_, err := a.t.Do(ctx, Request{Path: "/healthz"}, nil)
	return err
}
