package sidechannel

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/radsync/internal/models"
)

// Task is one applied operation to mirror.
type Task struct {
	UserID    string           `json:"user_id,omitempty"`
	Op        models.Operation `json:"op"`
	AppliedAt time.Time        `json:"applied_at"`
}

// Sink delivers a task to one secondary system.
type Sink interface {
	Name() string
	Send(ctx context.Context, t Task) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
