package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/models"
)

func (s *Server) delta(w http.ResponseWriter, r *http.Request) {
	var req models.DeltaRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	resp, err := s.svc.Delta.GetChanges(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	userID := userIDFrom(r.Context())
	applied, err := s.svc.Push.Push(r.Context(), userID, req.Ops)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if applied == nil {
		applied = []string{}
	}
	writeJSON(w, http.StatusOK, models.PushResponse{Applied: applied})
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Pull.Pull(r.Context(), userIDFrom(r.Context()), r.URL.Query().Get("since"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, models.KindTemplates, "/v1/templates")
}

func (s *Server) listSentences(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, models.KindSentences, "/v1/sentences")
}

func (s *Server) listFindings(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, models.KindFindings, "/v1/findings")
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, kind models.EntityKind, route string) {
	q := r.URL.Query()
	rows, status, err := s.svc.Catalog.List(r.Context(), kind, q.Get("mod"), q.Get("q"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if status != "" {
		w.Header().Set(common.CacheStatusHeader, string(status))
	}
	writeCacheable(w, r, route, models.DataEnvelope[[]models.Entity]{Data: rows})
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Catalog.Template(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeCacheable(w, r, "/v1/templates/{id}", models.DataEnvelope[models.Entity]{Data: *e})
}

func (s *Server) getPrefs(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Catalog.Prefs(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DataEnvelope[models.Preferences]{Data: *p})
}

func (s *Server) putPrefs(w http.ResponseWriter, r *http.Request) {
	p := models.DefaultPreferences("")
	if !decodeBody(w, r, &p, false) {
		return
	}

	saved, err := s.svc.Catalog.PutPrefs(r.Context(), userIDFrom(r.Context()), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DataEnvelope[models.Preferences]{Data: *saved})
}

func (s *Server) recordUsage(w http.ResponseWriter, r *http.Request) {
	var evt models.UsageEvent
	if !decodeBody(w, r, &evt, false) {
		return
	}

	if err := s.svc.Catalog.RecordUsage(r.Context(), userIDFrom(r.Context()), evt); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.DataEnvelope[map[string]bool]{Data: map[string]bool{"ok": true}})
}

// refresh rotates the refresh token taken from the body or the rr_refresh
// cookie, and sets the rotated one back as a cookie.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(common.RefreshCookieName); err == nil {
			token = c.Value
		}
	}

	pair, err := s.svc.Tokens.RefreshToken(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/v1/auth",
		MaxAge:   int(s.svc.Tokens.RefreshTokenValidity().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, models.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	})
}
