package cli

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/radsync/internal/logging"
)

type fakeTrigger struct {
	flushes atomic.Int32
	pulls   atomic.Int32
	asked   atomic.Int32
}

func (f *fakeTrigger) TriggerFlush() { f.flushes.Add(1) }
func (f *fakeTrigger) TriggerPull()  { f.pulls.Add(1) }
func (f *fakeTrigger) Online() bool  { f.asked.Add(1); return true }

func TestForwardWakeups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan os.Signal, 1)
	tr := &fakeTrigger{}
	done := make(chan struct{})
	go func() {
		forwardWakeups(ctx, wake, tr, logging.NewNopLogger())
		close(done)
	}()

	wake <- syscall.SIGINT
	wake <- syscall.SIGINT
	require.Eventually(t, func() bool { return tr.pulls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, tr.flushes.Load())
	assert.EqualValues(t, 2, tr.asked.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwardWakeups did not return after cancel")
	}
}
