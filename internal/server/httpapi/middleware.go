package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// userIDFrom returns the user id stored by accessToken.
func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// correlationID reuses the caller's X-Correlation-Id or mints one, echoes it
// back and stores it for the logger.
func (s *Server) correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(common.CorrelationIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(common.CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, elapsed)

		args := []any{"method", r.Method, "route", route, "status", status, "bytes", ww.BytesWritten(), "duration", elapsed}
		if status >= http.StatusInternalServerError {
			s.logger.Error(r.Context(), "request served", args...)
			return
		}
		s.logger.Debug(r.Context(), "request served", args...)
	})
}

// accessToken requires a valid Bearer token and stores its user id.
func (s *Server) accessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get(common.AuthorizationHeader), common.BearerPrefix)
		token = strings.TrimSpace(token)
		if !found || token == "" {
			writeError(w, r, http.StatusUnauthorized, codeNoToken, "missing token")
			return
		}

		userID, err := s.svc.Tokens.Authenticate(token)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "access token expired")
				return
			}
			writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
