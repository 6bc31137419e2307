package client

import (
	"maps"
	"sync"
)

// Tracker maps request URLs to the last validator the server sent for them.
// Concurrent writers to the same URL race; the server issues validators per
// content version so either value is a correct precondition.
type Tracker struct {
	mu   sync.RWMutex
	tags map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{tags: make(map[string]string)}
}

func (t *Tracker) Get(url string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tag, ok := t.tags[url]
	return tag, ok
}

func (t *Tracker) Set(url, tag string) {
	if tag == "" {
		return
	}
	t.mu.Lock()
	t.tags[url] = tag
	t.mu.Unlock()
}

func (t *Tracker) Forget(url string) {
	t.mu.Lock()
	delete(t.tags, url)
	t.mu.Unlock()
}

// Snapshot copies the map, for persisting validators across restarts.
func (t *Tracker) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.tags)
}

// Restore merges previously persisted validators.
func (t *Tracker) Restore(tags map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range tags {
		if v != "" {
			t.tags[k] = v
		}
	}
}
