package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/config"
	"github.com/dmitrijs2005/radsync/internal/server/services"
)

type fakeDelta struct {
	got  models.DeltaRequest
	resp *models.DeltaResponse
	err  error
}

func (f *fakeDelta) GetChanges(_ context.Context, req models.DeltaRequest) (*models.DeltaResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakePusher struct {
	gotUser string
	gotOps  []models.Operation
	applied []string
	err     error
}

func (f *fakePusher) Push(_ context.Context, userID string, ops []models.Operation) ([]string, error) {
	f.gotUser, f.gotOps = userID, ops
	return f.applied, f.err
}

type fakePuller struct {
	gotUser, gotSince string
	err               error
}

func (f *fakePuller) Pull(_ context.Context, userID, since string) (*models.PullResponse, error) {
	f.gotUser, f.gotSince = userID, since
	if f.err != nil {
		return nil, f.err
	}
	return &models.PullResponse{Changes: []models.LogEntry{}, NextSince: "2024-01-01T00:00:00Z"}, nil
}

type fakeCatalog struct {
	rows     []models.Entity
	template *models.Entity
	prefs    *models.Preferences
	usage    []models.UsageEvent
	status   services.CacheStatus

	gotKind           models.EntityKind
	gotModality, gotQ string
	gotUser           string
}

func (f *fakeCatalog) List(_ context.Context, kind models.EntityKind, modality, search string) ([]models.Entity, services.CacheStatus, error) {
	f.gotKind, f.gotModality, f.gotQ = kind, modality, search
	return f.rows, f.status, nil
}

func (f *fakeCatalog) Template(_ context.Context, id string) (*models.Entity, error) {
	if f.template == nil || f.template.ID != id {
		return nil, common.ErrorNotFound
	}
	return f.template, nil
}

func (f *fakeCatalog) Prefs(_ context.Context, userID string) (*models.Preferences, error) {
	f.gotUser = userID
	if f.prefs == nil {
		p := models.DefaultPreferences(userID)
		return &p, nil
	}
	return f.prefs, nil
}

func (f *fakeCatalog) PutPrefs(_ context.Context, userID string, p models.Preferences) (*models.Preferences, error) {
	f.gotUser = userID
	p.UserID = userID
	f.prefs = &p
	return &p, nil
}

func (f *fakeCatalog) RecordUsage(_ context.Context, userID string, evt models.UsageEvent) error {
	f.gotUser = userID
	f.usage = append(f.usage, evt)
	return nil
}

type fakeTokens struct {
	gotRefresh string
	err        error
}

func (f *fakeTokens) Authenticate(token string) (string, error) {
	switch token {
	case "good":
		return "u1", nil
	case "expired":
		return "", common.ErrTokenExpired
	}
	return "", common.ErrInvalidToken
}

func (f *fakeTokens) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	f.gotRefresh = token
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 15 * time.Minute}, nil
}

func (f *fakeTokens) RefreshTokenValidity() time.Duration { return time.Hour }

type testEnv struct {
	delta   *fakeDelta
	push    *fakePusher
	pull    *fakePuller
	catalog *fakeCatalog
	tokens  *fakeTokens
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		delta:   &fakeDelta{resp: &models.DeltaResponse{Changes: []models.Entity{}, Deleted: []models.Tombstone{}, NextSince: "2024-06-01T00:00:00Z"}},
		push:    &fakePusher{},
		pull:    &fakePuller{},
		catalog: &fakeCatalog{},
		tokens:  &fakeTokens{},
	}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RateLimitPerMinute = 0
	srv := NewServer(cfg, logging.NewNopLogger(), Services{
		Delta:   env.delta,
		Push:    env.push,
		Pull:    env.pull,
		Catalog: env.catalog,
		Tokens:  env.tokens,
	})
	env.handler = srv.Handler()
	return env
}

// do sends one request; token "" means no Authorization header.
func (e *testEnv) do(method, target, body, token string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
