package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/radsync/internal/server/sidechannel"
	"github.com/dmitrijs2005/radsync/internal/validation"
)

// Mirror receives applied operations after their batch committed.
type Mirror interface {
	Enqueue(ctx context.Context, tasks ...sidechannel.Task)
}

// PushService applies client operation batches idempotently on op_id.
type PushService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mirror      Mirror
	logger      logging.Logger
	now         func() time.Time
}

// NewPushService builds the service. mirror may be nil.
func NewPushService(db *sql.DB, m repomanager.RepositoryManager, mirror Mirror, logger logging.Logger) *PushService {
	return &PushService{db: db, repomanager: m, mirror: mirror, logger: logger, now: time.Now}
}

// Validate decodes the payloads of the kinds that have side effects. It runs
// before any write so a malformed batch is refused as a whole.
func (s *PushService) Validate(ops []models.Operation) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case models.OpKindUsage:
			_, err = decodeUsage(op)
		case models.OpKindPreferences:
			_, err = decodePrefs(op)
		}
		if err != nil {
			return fmt.Errorf("ops[%d] %s: %w", i, op.OpID, err)
		}
	}
	return nil
}

// Push applies ops for userID inside one transaction and returns the op ids
// this call applied. Ops already in the log are skipped. Any failure rolls the
// whole batch back and returns common.ErrPushFailed.
func (s *PushService) Push(ctx context.Context, userID string, ops []models.Operation) ([]string, error) {
	if err := s.Validate(ops); err != nil {
		return nil, err
	}

	applied, err := dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) ([]string, error) {
		log := s.repomanager.Operations(tx)
		applied := make([]string, 0, len(ops))
		for _, op := range ops {
			exists, err := log.Exists(ctx, op.OpID)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
			inserted, err := log.Append(ctx, userID, op)
			if err != nil {
				return nil, err
			}
			if !inserted {
				continue
			}
			if err := s.apply(ctx, tx, userID, op); err != nil {
				return nil, fmt.Errorf("apply %s: %w", op.OpID, err)
			}
			applied = append(applied, op.OpID)
		}
		return applied, nil
	})
	metrics.RecordPush(len(ops), len(applied), err)
	if err != nil {
		s.logger.Error(ctx, "push batch rolled back", "user_id", userID, "ops", len(ops), "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrPushFailed, err)
	}

	s.logger.Info(ctx, "push batch committed", "user_id", userID, "received", len(ops), "applied", len(applied))
	s.mirrorApplied(ctx, userID, ops, applied)
	return applied, nil
}

func (s *PushService) apply(ctx context.Context, tx dbx.DBTX, userID string, op models.Operation) error {
	switch op.Kind {
	case models.OpKindUsage:
		evt, err := decodeUsage(op)
		if err != nil {
			return err
		}
		return s.repomanager.Usage(tx).Insert(ctx, userID, op.OpID, evt)
	case models.OpKindPreferences:
		p, err := decodePrefs(op)
		if err != nil {
			return err
		}
		p.UserID = userID
		p.UpdatedAt = op.ClientTS
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = s.now()
		}
		if _, err := s.repomanager.Preferences(tx).ApplyIfNewer(ctx, p); err != nil {
			return err
		}
		return nil
	default:
		// reference kinds are server-owned; the log row is the whole effect
		return nil
	}
}

func (s *PushService) mirrorApplied(ctx context.Context, userID string, ops []models.Operation, applied []string) {
	if s.mirror == nil || len(applied) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(applied))
	for _, id := range applied {
		ids[id] = struct{}{}
	}
	at := s.now().UTC()
	tasks := make([]sidechannel.Task, 0, len(applied))
	for _, op := range ops {
		if _, ok := ids[op.OpID]; ok {
			delete(ids, op.OpID)
			tasks = append(tasks, sidechannel.Task{UserID: userID, Op: op, AppliedAt: at})
		}
	}
	s.mirror.Enqueue(context.WithoutCancel(ctx), tasks...)
}

func decodeUsage(op models.Operation) (models.UsageEvent, error) {
	var evt models.UsageEvent
	if len(op.Payload) == 0 {
		return evt, fmt.Errorf("%w: usage event without payload", common.ErrInvalidPayload)
	}
	if err := json.Unmarshal(op.Payload, &evt); err != nil {
		return evt, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	evt.Normalize()
	if err := validation.Struct(evt); err != nil {
		return evt, fmt.Errorf("%w: %w", common.ErrInvalidPayload, err)
	}
	return evt, nil
}

func decodePrefs(op models.Operation) (models.Preferences, error) {
	p := models.DefaultPreferences("")
	if len(op.Payload) == 0 {
		return p, fmt.Errorf("%w: preferences without payload", common.ErrInvalidPayload)
	}
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	if err := validation.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %w", common.ErrInvalidPayload, err)
	}
	return p, nil
}

