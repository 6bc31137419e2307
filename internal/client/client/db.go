package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/radsync/internal/client/migrations"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
)

// Repositories bundles the Local Store handles. DB is nil in memory mode.
type Repositories struct {
	Metadata metadata.Repository
	Entities entities.Store
	DB       *sql.DB
}

// Durable reports whether the repositories survive a restart.
func (r *Repositories) Durable() bool { return r.DB != nil }

func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the sqlite Local Store at dsn and migrates it. Any
// failure is wrapped in entities.ErrStorageUnavailable.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", entities.ErrStorageUnavailable, err)
	}
	// one writer; sqlite serialises anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %v", entities.ErrStorageUnavailable, err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", entities.ErrStorageUnavailable, err)
	}

	return &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Entities: entities.NewSQLiteStore(db),
		DB:       db,
	}, nil
}

// MemoryRepositories is the network-only fallback used when InitDatabase fails.
func MemoryRepositories() *Repositories {
	return &Repositories{
		Metadata: metadata.NewMemoryRepository(),
		Entities: entities.NewMemoryStore(),
	}
}
