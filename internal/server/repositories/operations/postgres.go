package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Exists(ctx context.Context, opID string) (bool, error) {
	query := `SELECT 1 FROM operations WHERE op_id = $1`

	var one int
	if err := r.db.QueryRowContext(ctx, query, opID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) Append(ctx context.Context, userID string, op models.Operation) (bool, error) {
	query := `
		INSERT INTO operations (op_id, user_id, entity_kind, entity_id, op_type, payload, device_id, actor_id, client_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (op_id) DO NOTHING
	`
	var payload any
	if len(op.Payload) > 0 {
		payload = []byte(op.Payload)
	}
	var clientTS any
	if !op.ClientTS.IsZero() {
		clientTS = op.ClientTS.UTC()
	}

	res, err := r.db.ExecContext(ctx, query,
		op.OpID, nullString(userID), string(op.Kind), nullString(op.EntityID), string(op.Type),
		payload, nullString(op.DeviceID), nullString(op.ActorID), clientTS)
	if err != nil {
		return false, fmt.Errorf("append op %s: %w", op.OpID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append op %s: %w", op.OpID, err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SelectSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.LogEntry, error) {
	query := `
		SELECT entity_kind, COALESCE(entity_id, ''), COALESCE(payload, 'null'::jsonb), ts
		FROM operations
		WHERE user_id = $1 AND ts > $2
		ORDER BY ts ASC, op_id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select operations: %w", err)
	}
	defer rows.Close()

	out := make([]models.LogEntry, 0)
	for rows.Next() {
		var (
			e       models.LogEntry
			payload []byte
		)
		if err := rows.Scan(&e.Entity, &e.EntityID, &payload, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
