package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/models"
)

type fakeAPI struct {
	SyncAPI

	deltaReqs []models.DeltaRequest
	deltaResp []*models.DeltaResponse
	deltaErr  error

	pushed  [][]models.Operation
	pushFn  func(ops []models.Operation) (*models.PushResponse, error)
	listFn  func(kind models.EntityKind, modality, search string) ([]models.Entity, bool, error)
	prefs   *models.Preferences
	prefErr error

	templateFn func(id string) (*models.Entity, bool, error)
	putPrefFn  func(p models.Preferences) (*models.Preferences, error)
	pullFn     func(since string) (*models.PullResponse, error)
}

func (f *fakeAPI) Delta(_ context.Context, req models.DeltaRequest) (*models.DeltaResponse, error) {
	f.deltaReqs = append(f.deltaReqs, req)
	if f.deltaErr != nil {
		return nil, f.deltaErr
	}
	if len(f.deltaResp) == 0 {
		return nil, errors.New("no canned response")
	}
	r := f.deltaResp[0]
	if len(f.deltaResp) > 1 {
		f.deltaResp = f.deltaResp[1:]
	}
	return r, nil
}

func (f *fakeAPI) Push(_ context.Context, ops []models.Operation) (*models.PushResponse, error) {
	f.pushed = append(f.pushed, ops)
	if f.pushFn != nil {
		return f.pushFn(ops)
	}
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.OpID
	}
	return &models.PushResponse{Applied: ids}, nil
}

func (f *fakeAPI) List(_ context.Context, kind models.EntityKind, modality, search string) ([]models.Entity, bool, error) {
	return f.listFn(kind, modality, search)
}

func (f *fakeAPI) Template(_ context.Context, id string) (*models.Entity, bool, error) {
	return f.templateFn(id)
}

func (f *fakeAPI) Pull(_ context.Context, since string) (*models.PullResponse, error) {
	return f.pullFn(since)
}

func (f *fakeAPI) PutPrefs(_ context.Context, p models.Preferences) (*models.Preferences, error) {
	return f.putPrefFn(p)
}

func (f *fakeAPI) Prefs(context.Context) (*models.Preferences, error) {
	return f.prefs, f.prefErr
}

// failingMeta fails every write while err is set.
type failingMeta struct {
	metadata.Repository
	err error
}

func (m *failingMeta) Set(ctx context.Context, key string, value []byte) error {
	if m.err != nil {
		return m.err
	}
	return m.Repository.Set(ctx, key, value)
}

func (m *failingMeta) SetMany(ctx context.Context, kv map[string][]byte) error {
	if m.err != nil {
		return m.err
	}
	return m.Repository.SetMany(ctx, kv)
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func template(id, title, updated string) models.Entity {
	return models.Entity{
		Kind:      models.KindTemplates,
		ID:        id,
		Payload:   []byte(fmt.Sprintf(`{"template_id":%q,"title":%q}`, id, title)),
		UpdatedAt: ts(updated),
	}
}

func finding(id, modality, desc string) models.Entity {
	return models.Entity{
		Kind:      models.KindFindings,
		ID:        id,
		Payload:   []byte(fmt.Sprintf(`{"finding_id":%q,"modality":%q,"description":%q}`, id, modality, desc)),
		UpdatedAt: ts("2024-01-01T00:00:00Z"),
	}
}
