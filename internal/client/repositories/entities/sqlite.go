package entities

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// SQLiteStore implements Store over the entities table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore expects the schema from internal/client/migrations to be applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fnErr = fn(ctx, &sqliteTx{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return unavailable("transaction", err)
	}
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, kind models.EntityKind, rows []models.Entity) error {
	return s.Update(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Put(ctx, kind, rows)
	})
}

func (s *SQLiteStore) GetAll(ctx context.Context, kind models.EntityKind) ([]models.Entity, error) {
	if err := checkCollection(kind); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload, updated_at_ns FROM entities WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, unavailable("select entities", err)
	}
	defer rows.Close()

	var result []models.Entity
	for rows.Next() {
		e := models.Entity{Kind: kind}
		var payload []byte
		var ns int64
		if err := rows.Scan(&e.ID, &payload, &ns); err != nil {
			return nil, unavailable("scan entity", err)
		}
		e.Payload = payload
		e.UpdatedAt = time.Unix(0, ns).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate entities", err)
	}
	return result, nil
}

func (s *SQLiteStore) Get(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	if err := checkCollection(kind); err != nil {
		return nil, err
	}
	var payload []byte
	var ns int64
	err := s.db.QueryRowContext(ctx, `SELECT payload, updated_at_ns FROM entities WHERE kind = ? AND id = ?`, string(kind), id).
		Scan(&payload, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get entity", err)
	}
	return &models.Entity{Kind: kind, ID: id, Payload: payload, UpdatedAt: time.Unix(0, ns).UTC()}, nil
}

type sqliteTx struct {
	db dbx.DBTX
}

func (t *sqliteTx) Put(ctx context.Context, kind models.EntityKind, rows []models.Entity) error {
	batch, err := collapse(kind, rows)
	if err != nil {
		return err
	}
	for _, r := range batch {
		_, err := t.db.ExecContext(ctx, `
			INSERT INTO entities (kind, id, payload, updated_at_ns) VALUES (?, ?, ?, ?)
			ON CONFLICT(kind, id) DO UPDATE SET payload = excluded.payload, updated_at_ns = excluded.updated_at_ns
			WHERE excluded.updated_at_ns >= entities.updated_at_ns
		`, string(kind), r.ID, []byte(r.Payload), r.UpdatedAt.UnixNano())
		if err != nil {
			return unavailable("upsert entity "+r.ID, err)
		}
	}
	return nil
}

func (t *sqliteTx) Delete(ctx context.Context, kind models.EntityKind, id string, deletedAt time.Time) (bool, error) {
	if err := checkCollection(kind); err != nil {
		return false, err
	}
	res, err := t.db.ExecContext(ctx,
		`DELETE FROM entities WHERE kind = ? AND id = ? AND updated_at_ns <= ?`,
		string(kind), id, deletedAt.UnixNano())
	if err != nil {
		return false, unavailable("delete entity "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("rows affected", err)
	}
	return n > 0, nil
}
