package services

import (
	"context"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// SyncAPI is the subset of client.API the services depend on.
type SyncAPI interface {
	Delta(ctx context.Context, req models.DeltaRequest) (*models.DeltaResponse, error)
	Push(ctx context.Context, ops []models.Operation) (*models.PushResponse, error)
	List(ctx context.Context, kind models.EntityKind, modality, search string) ([]models.Entity, bool, error)
	Template(ctx context.Context, id string) (*models.Entity, bool, error)
	Pull(ctx context.Context, since string) (*models.PullResponse, error)
	Prefs(ctx context.Context) (*models.Preferences, error)
	PutPrefs(ctx context.Context, p models.Preferences) (*models.Preferences, error)
	Ping(ctx context.Context) error
}
