package httpapi

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/validation"
)

// Error codes carried in ErrorResponse.Error.
const (
	codeBadRequest    = "bad_request"
	codeTooLarge      = "request_too_large"
	codeNotFound      = "not_found"
	codeNoToken       = "no_token"
	codeInvalidToken  = "invalid_token"
	codeTokenExpired  = "token_expired"
	codeRefreshFailed = "invalid_refresh_token"
	codePushFailed    = "push_failed"
	codeInternal      = "internal_error"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:         code,
		Message:       msg,
		CorrelationID: logging.CorrelationID(r.Context()),
	})
}

func writeValidation(w http.ResponseWriter, r *http.Request, verr *validation.RequestValidationError) {
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
		Error:         validation.CodeValidation,
		Message:       verr.Error(),
		CorrelationID: logging.CorrelationID(r.Context()),
		Details:       verr.Details(),
	})
}

// writeServiceError maps service errors onto status codes. Unknown errors
// are logged and hidden behind internal_error.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidCursor),
		errors.Is(err, common.ErrUnknownEntityKind):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, common.ErrInvalidPayload):
		writeError(w, r, http.StatusBadRequest, validation.CodeValidation, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, common.ErrPushFailed):
		writeError(w, r, http.StatusInternalServerError, codePushFailed, "batch not applied, retry unchanged")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		writeError(w, r, http.StatusUnauthorized, codeRefreshFailed, "refresh token expired")
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, r, http.StatusUnauthorized, codeRefreshFailed, "unauthorized")
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeBody reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set and leaves dst untouched. Types with a
// Normalize method get their defaults filled before validation. It writes the
// error response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "failed to read request body")
		return false
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		if !allowEmpty {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "request body required")
			return false
		}
	} else if err := json.Unmarshal(raw, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return false
	}

	if n, ok := dst.(interface{ Normalize() }); ok {
		n.Normalize()
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		writeValidation(w, r, verr)
		return false
	}
	return true
}

// etagOf is the strong validator of an encoded body.
func etagOf(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// matchesETag reports whether an If-None-Match header covers tag.
func matchesETag(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}

// writeCacheable writes v as a cacheable 200, or a bodiless 304 when the
// caller already holds the same representation.
func writeCacheable(w http.ResponseWriter, r *http.Request, route string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "encode response")
		return
	}
	tag := etagOf(body)

	h := w.Header()
	h.Set(common.ETagHeader, tag)
	h.Set("Cache-Control", "public, max-age=60")
	h.Set("Vary", "Accept-Encoding, If-None-Match")

	if matchesETag(r.Header.Get(common.IfNoneMatchHeader), tag) {
		metrics.NotModifiedTotal.WithLabelValues(route).Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}
