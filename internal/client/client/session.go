package client

import "sync"

// Session owns the credentials for one client. It replaces process-wide
// token variables: every Transport gets its Session from the composition root.
type Session struct {
	mu         sync.RWMutex
	access     string
	refresh    string
	generation uint64
	onChange   func(access, refresh string)
}

func NewSession(access, refresh string) *Session {
	return &Session{access: access, refresh: refresh}
}

// OnChange registers a hook fired after every credential update, e.g. to
// persist rotated tokens.
func (s *Session) OnChange(fn func(access, refresh string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Tokens returns the current credentials and their generation.
func (s *Session) Tokens() (access, refresh string, generation uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.refresh, s.generation
}

func (s *Session) AccessToken() string {
	a, _, _ := s.Tokens()
	return a
}

// Set replaces the credentials. An empty refresh keeps the current one.
func (s *Session) Set(access, refresh string) {
	s.mu.Lock()
	s.access = access
	if refresh != "" {
		s.refresh = refresh
	}
	s.generation++
	fn, a, r := s.onChange, s.access, s.refresh
	s.mu.Unlock()

	if fn != nil {
		fn(a, r)
	}
}

// Clear drops both tokens, forcing re-authentication.
func (s *Session) Clear() {
	s.mu.Lock()
	s.access, s.refresh = "", ""
	s.generation++
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn("", "")
	}
}
