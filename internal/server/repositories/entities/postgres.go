package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// searchField is the payload attribute matched by ListFilter.Search.
var searchField = map[models.EntityKind]string{
	models.KindTemplates: "title",
	models.KindSentences: "text",
	models.KindFindings:  "description",
}

// listOrder keeps templates in their curated order.
var listOrder = map[models.EntityKind]string{
	models.KindTemplates: "COALESCE((payload->>'sort_order')::int, 0), updated_at DESC",
	models.KindSentences: "updated_at DESC",
	models.KindFindings:  "updated_at DESC",
}

func (r *PostgresRepository) Clock(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := r.db.QueryRowContext(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	return now.UTC(), nil
}

func (r *PostgresRepository) SelectChanged(ctx context.Context, kinds []models.EntityKind, since time.Time) ([]models.Entity, error) {
	query := `
		SELECT entity_kind, entity_id, payload, updated_at
		FROM entities
		WHERE updated_at > $1 AND entity_kind = ANY($2::text[])
		ORDER BY updated_at ASC, entity_kind, entity_id
	`
	rows, err := r.db.QueryContext(ctx, query, since, kindArray(kinds))
	if err != nil {
		return nil, fmt.Errorf("select changes: %w", err)
	}
	return scanEntities(rows)
}

func (r *PostgresRepository) SelectTombstones(ctx context.Context, kinds []models.EntityKind, since time.Time, limit int) ([]models.Tombstone, error) {
	query := `
		SELECT entity_kind, entity_id, deleted_at
		FROM deleted_items
		WHERE deleted_at > $1 AND entity_kind = ANY($2::text[])
		ORDER BY deleted_at ASC, entity_kind, entity_id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, since, kindArray(kinds), limit)
	if err != nil {
		return nil, fmt.Errorf("select tombstones: %w", err)
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var (
			t    models.Tombstone
			kind string
		)
		if err := rows.Scan(&kind, &t.ID, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		t.Kind = models.EntityKind(kind)
		t.DeletedAt = t.DeletedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tombstones: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) List(ctx context.Context, kind models.EntityKind, f ListFilter) ([]models.Entity, error) {
	field, ok := searchField[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntityKind, kind)
	}
	query := fmt.Sprintf(`
		SELECT entity_kind, entity_id, payload, updated_at
		FROM entities
		WHERE entity_kind = $1
		  AND ($2::text IS NULL OR modality = $2)
		  AND ($3::text IS NULL OR payload->>'%s' ILIKE '%%' || $3 || '%%')
		ORDER BY %s
		LIMIT $4
	`, field, listOrder[kind])

	rows, err := r.db.QueryContext(ctx, query, string(kind), nullString(f.Modality), nullString(f.Search), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return scanEntities(rows)
}

func (r *PostgresRepository) Get(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	query := `
		SELECT entity_kind, entity_id, payload, updated_at
		FROM entities
		WHERE entity_kind = $1 AND entity_id = $2
	`
	var (
		e       models.Entity
		k       string
		payload []byte
	)
	if err := r.db.QueryRowContext(ctx, query, string(kind), id).Scan(&k, &e.ID, &payload, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.Kind = models.EntityKind(k)
	e.Payload = json.RawMessage(payload)
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, e models.Entity, modality string) (time.Time, error) {
	query := `
		INSERT INTO entities (entity_kind, entity_id, modality, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_kind, entity_id)
		DO UPDATE SET modality = EXCLUDED.modality, payload = EXCLUDED.payload
		RETURNING updated_at
	`
	var updatedAt time.Time
	if err := r.db.QueryRowContext(ctx, query, string(e.Kind), e.ID, nullString(modality), []byte(e.Payload)).Scan(&updatedAt); err != nil {
		return time.Time{}, fmt.Errorf("upsert %s/%s: %w", e.Kind, e.ID, err)
	}
	return updatedAt.UTC(), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	query := `
		DELETE FROM entities
		WHERE entity_kind = $1 AND entity_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, string(kind), id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanEntities(rows *sql.Rows) ([]models.Entity, error) {
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		var (
			e       models.Entity
			kind    string
			payload []byte
		)
		if err := rows.Scan(&kind, &e.ID, &payload, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Kind = models.EntityKind(kind)
		e.Payload = json.RawMessage(payload)
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// kindArray renders kinds as a postgres text[] literal. Kinds are validated
// identifiers, so no quoting is needed.
func kindArray(kinds []models.EntityKind) string {
	return "{" + strings.Join(models.KindStrings(kinds), ",") + "}"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
