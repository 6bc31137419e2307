package httpapi

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/server/config"
)

func newRunServer(addr string) *Server {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Addr = addr
	cfg.ShutdownTimeout = time.Second
	return NewServer(cfg, logging.NewNopLogger(), Services{})
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newRunServer("127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := newRunServer("127.0.0.1:99999")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected listen error for invalid port")
	}
}

func TestServe_ListenerFailureReturns(t *testing.T) {
	t.Parallel()

	srv := newRunServer("127.0.0.1:0")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_ = ln.Close()

	// контекст не отменён: serve должен вернуться сам
	done := make(chan error, 1)
	go func() { done <- srv.serve(context.Background(), ln) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error from a closed listener")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after the listener failed")
	}
}

func TestHandler_RateLimitsV1(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RateLimitPerMinute = 2
	h := NewServer(cfg, logging.NewNopLogger(), Services{Catalog: &fakeCatalog{}}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sentences", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence: %v", codes)
	}

	// health is outside the limited group
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
