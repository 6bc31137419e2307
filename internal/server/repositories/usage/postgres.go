package usage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, userID, opID string, evt models.UsageEvent) error {
	evt.Normalize()

	frases, err := json.Marshal(evt.FrasesUsadas)
	if err != nil {
		return fmt.Errorf("encode frases_usadas: %w", err)
	}

	query := `
		INSERT INTO usage_history (user_id, op_id, template_id, frases_usadas, modality, action, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		userID, nullString(opID), nullPtr(evt.TemplateID), frases, nullPtr(evt.Modality), evt.Action, []byte(evt.Metadata),
	); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}
