package sidechannel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// HTTPSink upserts tasks into a REST endpoint. 4xx answers other than 429
// are permanent failures.
type HTTPSink struct {
	url    string
	key    string
	client *http.Client
}

func NewHTTPSink(url, key string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{url: url, key: key, client: client}
}

func (s *HTTPSink) Name() string { return "mirror" }

func (s *HTTPSink) Send(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return Permanent(fmt.Errorf("encode task: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("mirror answered %d", resp.StatusCode)
	default:
		return Permanent(fmt.Errorf("mirror rejected task: %d", resp.StatusCode))
	}
}
