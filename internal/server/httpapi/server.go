// Package httpapi exposes the sync engine, the read endpoints and token
// refresh over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/config"
	"github.com/dmitrijs2005/radsync/internal/server/services"
)

// DeltaEngine serves POST /v1/sync/delta.
type DeltaEngine interface {
	GetChanges(ctx context.Context, req models.DeltaRequest) (*models.DeltaResponse, error)
}

// Pusher serves POST /v1/sync/push. Push refuses malformed payloads with
// common.ErrInvalidPayload before writing anything.
type Pusher interface {
	Push(ctx context.Context, userID string, ops []models.Operation) ([]string, error)
}

// Puller serves GET /v1/sync/pull.
type Puller interface {
	Pull(ctx context.Context, userID, since string) (*models.PullResponse, error)
}

// Catalog serves the read collections, preferences and usage events.
type Catalog interface {
	List(ctx context.Context, kind models.EntityKind, modality, search string) ([]models.Entity, services.CacheStatus, error)
	Template(ctx context.Context, id string) (*models.Entity, error)
	Prefs(ctx context.Context, userID string) (*models.Preferences, error)
	PutPrefs(ctx context.Context, userID string, p models.Preferences) (*models.Preferences, error)
	RecordUsage(ctx context.Context, userID string, evt models.UsageEvent) error
}

// Tokens verifies access tokens and rotates refresh tokens.
type Tokens interface {
	Authenticate(accessToken string) (string, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	RefreshTokenValidity() time.Duration
}

// Services bundles what the handlers call into.
type Services struct {
	Delta   DeltaEngine
	Push    Pusher
	Pull    Puller
	Catalog Catalog
	Tokens  Tokens
}

type Server struct {
	address         string
	allowedOrigins  []string
	ratePerMinute   int
	cookieSecure    bool
	shutdownTimeout time.Duration
	svc             Services
	logger          logging.Logger
}

func NewServer(cfg *config.Config, l logging.Logger, svc Services) *Server {
	return &Server{
		address:         cfg.Addr,
		allowedOrigins:  splitOrigins(cfg.AllowedOrigin),
		ratePerMinute:   cfg.RateLimitPerMinute,
		cookieSecure:    cfg.CookieSecure,
		shutdownTimeout: cfg.ShutdownTimeout,
		svc:             svc,
		logger:          l.With("module", "http_server"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.correlationID)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", common.AuthorizationHeader, common.IfNoneMatchHeader, common.CorrelationIDHeader},
		ExposedHeaders:   []string{common.ETagHeader, common.CorrelationIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.ratePerMinute > 0 {
			r.Use(httprate.LimitByIP(s.ratePerMinute, time.Minute))
		}

		r.Post("/sync/delta", s.delta)
		r.Get("/templates", s.listTemplates)
		r.Get("/templates/{id}", s.getTemplate)
		r.Get("/sentences", s.listSentences)
		r.Get("/findings", s.listFindings)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.accessToken)
			r.Post("/sync/push", s.push)
			r.Get("/sync/pull", s.pull)
			r.Get("/prefs", s.getPrefs)
			r.Put("/prefs", s.putPrefs)
			r.Post("/usage", s.recordUsage)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

// serve runs on an open listener. A Serve failure stops the shutdown
// watcher before returning.
func (s *Server) serve(ctx context.Context, listen net.Listener) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan error, 1)
	go func() {
		<-runCtx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		timeout := s.shutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		stopped <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-stopped
		return err
	}
	return <-stopped
}

func splitOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
