package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/config"
	srvmodels "github.com/dmitrijs2005/radsync/internal/server/models"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/operations"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/usage"
	"github.com/dmitrijs2005/radsync/internal/server/sidechannel"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		TombstonePageSize:            3,
		PullPageSize:                 2,
	}
}

var nop = logging.NewNopLogger()

// --- entities ---

type fakeEntities struct {
	entities.Repository

	changes    []models.Entity
	tombs      []models.Tombstone
	list       []models.Entity
	get        *models.Entity
	clock      time.Time
	err        error
	gotSince   time.Time
	gotKinds   []models.EntityKind
	gotLimit   int
	gotFilter  entities.ListFilter
	gotListFor models.EntityKind
	listCalls  int
}

func (f *fakeEntities) Clock(context.Context) (time.Time, error) {
	return f.clock, f.err
}

func (f *fakeEntities) SelectChanged(_ context.Context, kinds []models.EntityKind, since time.Time) ([]models.Entity, error) {
	f.gotKinds, f.gotSince = kinds, since
	return f.changes, f.err
}

func (f *fakeEntities) SelectTombstones(_ context.Context, _ []models.EntityKind, _ time.Time, limit int) ([]models.Tombstone, error) {
	f.gotLimit = limit
	if len(f.tombs) > limit {
		return f.tombs[:limit], nil
	}
	return f.tombs, nil
}

func (f *fakeEntities) List(_ context.Context, kind models.EntityKind, flt entities.ListFilter) ([]models.Entity, error) {
	f.gotListFor, f.gotFilter = kind, flt
	f.listCalls++
	return f.list, f.err
}

func (f *fakeEntities) Get(_ context.Context, _ models.EntityKind, id string) (*models.Entity, error) {
	if f.get == nil || f.get.ID != id {
		return nil, common.ErrorNotFound
	}
	return f.get, nil
}

// --- operations log ---

type fakeOps struct {
	operations.Repository

	log       map[string]models.Operation
	failOn    string
	pullRows  []models.LogEntry
	pullLimit int
}

func newFakeOps() *fakeOps { return &fakeOps{log: map[string]models.Operation{}} }

func (f *fakeOps) Exists(_ context.Context, opID string) (bool, error) {
	_, ok := f.log[opID]
	return ok, nil
}

func (f *fakeOps) Append(_ context.Context, _ string, op models.Operation) (bool, error) {
	if op.OpID == f.failOn {
		return false, errBoom{}
	}
	f.log[op.OpID] = op
	return true, nil
}

func (f *fakeOps) SelectSince(_ context.Context, _ string, _ time.Time, limit int) ([]models.LogEntry, error) {
	f.pullLimit = limit
	return f.pullRows, nil
}

// --- preferences / usage ---

type fakePrefs struct {
	preferences.Repository

	stored  *models.Preferences
	applied []models.Preferences
}

func (f *fakePrefs) Get(_ context.Context, userID string) (*models.Preferences, error) {
	if f.stored == nil || f.stored.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return f.stored, nil
}

func (f *fakePrefs) Put(_ context.Context, p models.Preferences) (*models.Preferences, error) {
	f.stored = &p
	return &p, nil
}

func (f *fakePrefs) ApplyIfNewer(_ context.Context, p models.Preferences) (bool, error) {
	f.applied = append(f.applied, p)
	return true, nil
}

type usageRow struct {
	userID, opID string
	evt          models.UsageEvent
}

type fakeUsage struct {
	rows []usageRow
	err  error
}

func (f *fakeUsage) Insert(_ context.Context, userID, opID string, evt models.UsageEvent) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, usageRow{userID, opID, evt})
	return nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	findOut *srvmodels.RefreshToken
	findErr error

	delOK  bool
	delErr error

	createErr error
	created   []string
}

func (f *fakeRefreshRepo) Create(_ context.Context, _ string, token string, _ time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, token)
	return nil
}

func (f *fakeRefreshRepo) Find(context.Context, string) (*srvmodels.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(context.Context, string) (bool, error) {
	return f.delOK, f.delErr
}

// --- manager ---

type fakeRepoManager struct {
	e *fakeEntities
	o *fakeOps
	p *fakePrefs
	u *fakeUsage
	r *fakeRefreshRepo
}

func newFakeManager() *fakeRepoManager {
	return &fakeRepoManager{
		e: &fakeEntities{},
		o: newFakeOps(),
		p: &fakePrefs{},
		u: &fakeUsage{},
		r: &fakeRefreshRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Entities(dbx.DBTX) entities.Repository           { return m.e }
func (m *fakeRepoManager) Operations(dbx.DBTX) operations.Repository       { return m.o }
func (m *fakeRepoManager) Preferences(dbx.DBTX) preferences.Repository     { return m.p }
func (m *fakeRepoManager) Usage(dbx.DBTX) usage.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }

type fakeMirror struct {
	tasks []sidechannel.Task
}

func (f *fakeMirror) Enqueue(_ context.Context, tasks ...sidechannel.Task) {
	f.tasks = append(f.tasks, tasks...)
}

