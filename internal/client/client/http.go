package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// RefreshPath is the credential refresh endpoint. Calls to it never trigger
// another refresh.
const RefreshPath = "/v1/auth/refresh"

// TransportOptions configures NewTransport.
type TransportOptions struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Session    *Session
	Tracker    *Tracker
	Logger     logging.Logger
}

// Transport issues every API call made by the sync clients.
type Transport struct {
	base      *url.URL
	http      *http.Client
	session   *Session
	tags      *Tracker
	logger    logging.Logger
	refreshMu sync.Mutex
}

// Request describes one logical call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response reports what happened on the wire. FromCache means the server
// answered 304 and out was left untouched; reuse the last known value.
type Response struct {
	Status    int
	FromCache bool
	ETag      string
}

func NewTransport(opts TransportOptions) (*Transport, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{Timeout: opts.Timeout, Jar: jar}
	}
	t := &Transport{
		base:    base,
		http:    hc,
		session: opts.Session,
		tags:    opts.Tracker,
		logger:  opts.Logger,
	}
	if t.session == nil {
		t.session = NewSession("", "")
	}
	if t.tags == nil {
		t.tags = NewTracker()
	}
	if t.logger == nil {
		t.logger = logging.NewNopLogger()
	}
	return t, nil
}

func (t *Transport) Session() *Session { return t.session }
func (t *Transport) Tracker() *Tracker { return t.tags }

// URL resolves path and query against the base URL. It is also the Tracker key.
func (t *Transport) URL(path string, query url.Values) string {
	u := *t.base
	u.Path = t.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Do performs req and decodes a successful JSON body into out (if non-nil).
func (t *Transport) Do(ctx context.Context, req Request, out any) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	target := t.URL(req.Path, req.Query)

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
		body = b
	}

	_, _, gen := t.session.Tokens()
	resp, err := t.send(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && req.Path != RefreshPath {
		drain(resp)
		if err := t.refresh(ctx, gen); err != nil {
			return nil, err
		}
		resp, err = t.send(ctx, req.Method, target, body)
		if err != nil {
			return nil, err
		}
	}
	defer drain(resp)

	return t.handle(ctx, req, target, resp, out)
}

func (t *Transport) send(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	hr, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if token := t.session.AccessToken(); token != "" {
		hr.Header.Set(common.AuthorizationHeader, common.BearerPrefix+token)
	}
	if method == http.MethodGet {
		if tag, ok := t.tags.Get(target); ok {
			hr.Header.Set(common.IfNoneMatchHeader, tag)
		}
	}

	resp, err := t.http.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

func (t *Transport) handle(ctx context.Context, req Request, target string, resp *http.Response, out any) (*Response, error) {
	r := &Response{Status: resp.StatusCode, ETag: resp.Header.Get(common.ETagHeader)}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		r.FromCache = true
		metrics.ClientCacheHitsTotal.Inc()
		t.logger.Debug(ctx, "not modified", "url", target)
		return r, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
			}
		}
		if req.Method == http.MethodGet {
			t.tags.Set(target, r.ETag)
		}
		return r, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized

	default:
		he := &HTTPError{Status: resp.StatusCode}
		var eb models.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb); err == nil {
			he.Code, he.Message = eb.Error, eb.Message
		}
		return nil, he
	}
}

// refresh rotates the credentials once. gen is the session generation the
// failed request was sent with; if another call already refreshed since
// then, the new token is reused without another round trip.
func (t *Transport) refresh(ctx context.Context, gen uint64) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	_, refreshToken, cur := t.session.Tokens()
	if cur != gen {
		return nil
	}

	var body []byte
	if refreshToken != "" {
		body, _ = json.Marshal(models.RefreshRequest{RefreshToken: refreshToken})
	}
	resp, err := t.send(ctx, http.MethodPost, t.URL(RefreshPath, nil), body)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn(ctx, "credential refresh rejected", "status", resp.StatusCode)
		return ErrUnauthorized
	}
	var tr models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.AccessToken == "" {
		t.logger.Warn(ctx, "credential refresh returned no token")
		return ErrUnauthorized
	}
	t.session.Set(tr.AccessToken, tr.RefreshToken)
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
