package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/validation"
)

// DefaultBatchSize is the number of queued operations sent per push call.
const DefaultBatchSize = 100

// FlushResult reports what one Flush delivered.
type FlushResult struct {
	Batches   int
	Sent      int
	Applied   int
	Rejected  int
	Remaining int
}

// PushService owns the client side of the Push Queue.
//
// Contract:
//   - Enqueue: stamps op_id, client_ts, device and actor when missing, then
//     persists the op. Re-enqueueing a pending op_id is a no-op.
//   - Flush: drains the queue head-first in batches and stops at the first
//     failed batch, which stays queued unchanged for the next attempt. A
//     batch the server refuses for its content is resent one op at a time
//     and the ops refused on their own are dropped.
//   - RecordUsage: wraps a usage event into an insert op and enqueues it.
type PushService interface {
	Enqueue(ctx context.Context, op models.Operation) (models.Operation, error)
	Flush(ctx context.Context) (*FlushResult, error)
	RecordUsage(ctx context.Context, evt models.UsageEvent) (string, error)
	Pending(ctx context.Context) (int, error)
}

type pushService struct {
	api       SyncAPI
	queue     queue.Queue
	logger    logging.Logger
	deviceID  string
	actorID   string
	batchSize int
	now       func() time.Time
}

// PushOptions carries the identity stamped on new operations.
type PushOptions struct {
	DeviceID  string
	ActorID   string
	BatchSize int
}

func NewPushService(api SyncAPI, q queue.Queue, logger logging.Logger, opts PushOptions) PushService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &pushService{
		api:       api,
		queue:     q,
		logger:    logger,
		deviceID:  opts.DeviceID,
		actorID:   opts.ActorID,
		batchSize: opts.BatchSize,
		now:       time.Now,
	}
}

func (s *pushService) Enqueue(ctx context.Context, op models.Operation) (models.Operation, error) {
	if op.OpID == "" {
		op.OpID = uuid.NewString()
	}
	if op.ClientTS.IsZero() {
		op.ClientTS = s.now().UTC()
	}
	if op.DeviceID == "" {
		op.DeviceID = s.deviceID
	}
	if op.ActorID == "" {
		op.ActorID = s.actorID
	}
	if err := validation.Struct(op); err != nil {
		return op, err
	}

	if err := s.queue.Enqueue(ctx, op); err != nil {
		return op, fmt.Errorf("enqueue %s: %w", op.OpID, err)
	}
	s.updateGauge(ctx)
	s.logger.Debug(ctx, "operation queued", "op_id", op.OpID, "kind", op.Kind)
	return op, nil
}

func (s *pushService) Flush(ctx context.Context) (*FlushResult, error) {
	res := &FlushResult{}
	defer s.updateGauge(ctx)

	for {
		ops, err := s.queue.Peek(ctx, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("peek queue: %w", err)
		}
		if len(ops) == 0 {
			return res, nil
		}

		resp, err := s.api.Push(ctx, ops)
		metrics.RecordClientSync("push", err)
		if rejectedPayload(err) {
			if err := s.isolate(ctx, ops, res); err != nil {
				res.Remaining, _ = s.queue.Len(ctx)
				return res, err
			}
			continue
		}
		if err != nil {
			res.Remaining, _ = s.queue.Len(ctx)
			s.logger.Warn(ctx, "push batch failed, keeping it queued",
				"ops", len(ops), "error", err)
			return res, fmt.Errorf("push batch: %w", err)
		}

		ids := make([]string, len(ops))
		for i, op := range ops {
			ids[i] = op.OpID
		}
		// Ops the server already had are acknowledged too.
		if err := s.queue.Ack(ctx, ids); err != nil {
			return res, fmt.Errorf("ack batch: %w", err)
		}

		res.Batches++
		res.Sent += len(ops)
		res.Applied += len(resp.Applied)
		s.logger.Info(ctx, "push batch delivered",
			"ops", len(ops), "applied", len(resp.Applied))
	}
}

// isolate resends a refused batch op by op so one bad payload cannot block
// the queue. Any failure other than a content rejection stops it with the
// remaining ops still queued.
func (s *pushService) isolate(ctx context.Context, ops []models.Operation, res *FlushResult) error {
	s.logger.Warn(ctx, "push batch refused, resending ops one by one", "ops", len(ops))
	for _, op := range ops {
		resp, err := s.api.Push(ctx, []models.Operation{op})
		metrics.RecordClientSync("push", err)
		switch {
		case rejectedPayload(err):
			res.Rejected++
			s.logger.Error(ctx, "operation refused by server, dropping it",
				"op_id", op.OpID, "kind", op.Kind, "payload", string(op.Payload), "error", err)
		case err != nil:
			return fmt.Errorf("push op %s: %w", op.OpID, err)
		default:
			res.Sent++
			res.Applied += len(resp.Applied)
		}
		if err := s.queue.Ack(ctx, []string{op.OpID}); err != nil {
			return fmt.Errorf("ack %s: %w", op.OpID, err)
		}
	}
	res.Batches++
	return nil
}

// rejectedPayload reports whether the server refused a push for its content,
// which resending the same bytes cannot fix.
func rejectedPayload(err error) bool {
	var he *client.HTTPError
	if !errors.As(err, &he) || he.Retryable() {
		return false
	}
	switch he.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func (s *pushService) RecordUsage(ctx context.Context, evt models.UsageEvent) (string, error) {
	evt.Normalize()
	if err := validation.Struct(evt); err != nil {
		return "", err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("encode usage event: %w", err)
	}
	op, err := s.Enqueue(ctx, models.Operation{
		Kind:    models.OpKindUsage,
		Type:    models.OpInsert,
		Payload: payload,
	})
	if err != nil {
		return "", err
	}
	return op.OpID, nil
}

func (s *pushService) Pending(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

func (s *pushService) updateGauge(ctx context.Context) {
	if n, err := s.queue.Len(ctx); err == nil {
		metrics.ClientQueuePending.Set(float64(n))
	}
}
