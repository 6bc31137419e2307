package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `user_id, favorite_templates, favorite_sentences, dark_mode, voice_name, voice_rate, style_prefs, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Preferences, error) {
	query := `SELECT ` + columns + ` FROM user_preferences WHERE user_id = $1`

	p, err := scanPrefs(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get preferences[%s]: %w", userID, err)
	}
	return p, nil
}

func (r *PostgresRepository) Put(ctx context.Context, p models.Preferences) (*models.Preferences, error) {
	args, err := prefArgs(p)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO user_preferences (user_id, favorite_templates, favorite_sentences, dark_mode, voice_name, voice_rate, style_prefs, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id) DO UPDATE SET
			favorite_templates = EXCLUDED.favorite_templates,
			favorite_sentences = EXCLUDED.favorite_sentences,
			dark_mode = EXCLUDED.dark_mode,
			voice_name = EXCLUDED.voice_name,
			voice_rate = EXCLUDED.voice_rate,
			style_prefs = EXCLUDED.style_prefs,
			updated_at = now()
		RETURNING ` + columns

	out, err := scanPrefs(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to put preferences[%s]: %w", p.UserID, err)
	}
	return out, nil
}

func (r *PostgresRepository) ApplyIfNewer(ctx context.Context, p models.Preferences) (bool, error) {
	args, err := prefArgs(p)
	if err != nil {
		return false, err
	}
	args = append(args, p.UpdatedAt.UTC())
	query := `
		INSERT INTO user_preferences (user_id, favorite_templates, favorite_sentences, dark_mode, voice_name, voice_rate, style_prefs, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			favorite_templates = EXCLUDED.favorite_templates,
			favorite_sentences = EXCLUDED.favorite_sentences,
			dark_mode = EXCLUDED.dark_mode,
			voice_name = EXCLUDED.voice_name,
			voice_rate = EXCLUDED.voice_rate,
			style_prefs = EXCLUDED.style_prefs,
			updated_at = EXCLUDED.updated_at
		WHERE user_preferences.updated_at <= EXCLUDED.updated_at
	`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to apply preferences[%s]: %w", p.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to apply preferences[%s]: %w", p.UserID, err)
	}
	return n > 0, nil
}

func prefArgs(p models.Preferences) ([]any, error) {
	favT, err := json.Marshal(nonNil(p.FavoriteTemplates))
	if err != nil {
		return nil, fmt.Errorf("encode favorite_templates: %w", err)
	}
	favS, err := json.Marshal(nonNil(p.FavoriteSentences))
	if err != nil {
		return nil, fmt.Errorf("encode favorite_sentences: %w", err)
	}
	style := []byte(p.StylePrefs)
	if len(style) == 0 {
		style = []byte(`{}`)
	}
	var voice sql.NullString
	if p.VoiceName != nil {
		voice = sql.NullString{String: *p.VoiceName, Valid: true}
	}
	return []any{p.UserID, favT, favS, p.DarkMode, voice, p.VoiceRate, style}, nil
}

func scanPrefs(row *sql.Row) (*models.Preferences, error) {
	var (
		p          models.Preferences
		favT, favS []byte
		style      []byte
		voice      sql.NullString
	)
	if err := row.Scan(&p.UserID, &favT, &favS, &p.DarkMode, &voice, &p.VoiceRate, &style, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(favT, &p.FavoriteTemplates); err != nil {
		return nil, fmt.Errorf("decode favorite_templates: %w", err)
	}
	if err := json.Unmarshal(favS, &p.FavoriteSentences); err != nil {
		return nil, fmt.Errorf("decode favorite_sentences: %w", err)
	}
	if voice.Valid {
		p.VoiceName = &voice.String
	}
	p.StylePrefs = json.RawMessage(style)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
