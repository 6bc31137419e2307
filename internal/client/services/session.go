package services

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
)

// RestoreSession builds a Session from the tokens persisted in meta and
// keeps meta updated whenever the transport rotates them.
func RestoreSession(ctx context.Context, meta metadata.Repository, logger logging.Logger) (*client.Session, error) {
	access, err := meta.Get(ctx, common.AccessTokenMetaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", common.AccessTokenMetaKey, err)
	}
	refresh, err := meta.Get(ctx, common.RefreshTokenMetaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", common.RefreshTokenMetaKey, err)
	}

	s := client.NewSession(string(access), string(refresh))
	s.OnChange(func(a, r string) {
		// the request that triggered the rotation may already be cancelled
		bg := context.WithoutCancel(ctx)
		if err := SaveTokens(bg, meta, a, r); err != nil {
			logger.Error(bg, "failed to persist tokens", "error", err)
		}
	})
	return s, nil
}

// SaveTokens stores the credentials; empty values delete the keys.
func SaveTokens(ctx context.Context, meta metadata.Repository, access, refresh string) error {
	for key, v := range map[string]string{
		common.AccessTokenMetaKey:  access,
		common.RefreshTokenMetaKey: refresh,
	} {
		var err error
		if v == "" {
			err = meta.Delete(ctx, key)
		} else {
			err = meta.Set(ctx, key, []byte(v))
		}
		if err != nil {
			return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
		}
	}
	return nil
}

// LoadValidators restores validators saved by SaveValidators into t.
func LoadValidators(ctx context.Context, meta metadata.Repository, t *client.Tracker) error {
	raw, err := meta.Get(ctx, common.ValidatorMetadataKey)
	if err != nil {
		return fmt.Errorf("failed to get metadata[%s]: %w", common.ValidatorMetadataKey, err)
	}
	if len(raw) == 0 {
		return nil
	}
	var tags map[string]string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return fmt.Errorf("decode validators: %w", err)
	}
	t.Restore(tags)
	return nil
}

// SaveValidators persists the tracker so conditional requests survive a restart.
func SaveValidators(ctx context.Context, meta metadata.Repository, t *client.Tracker) error {
	raw, err := json.Marshal(t.Snapshot())
	if err != nil {
		return fmt.Errorf("encode validators: %w", err)
	}
	if err := meta.Set(ctx, common.ValidatorMetadataKey, raw); err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", common.ValidatorMetadataKey, err)
	}
	return nil
}
