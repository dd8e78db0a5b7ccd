package alerts

import "sync"

// Session holds the alert ids a user dismissed. It lives in memory only.
type Session struct {
	mu        sync.RWMutex
	dismissed map[string]struct{}
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{dismissed: make(map[string]struct{})}
}

// Dismiss hides an alert id.
func (s *Session) Dismiss(id string) {
	s.mu.Lock()
	s.dismissed[id] = struct{}{}
	s.mu.Unlock()
}

// Dismissed reports whether id was dismissed.
func (s *Session) Dismissed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dismissed[id]
	return ok
}

// Filter returns the alerts not dismissed, keeping order.
func (s *Session) Filter(list []Alert) []Alert {
	out := make([]Alert, 0, len(list))
	for _, alert := range list {
		if !s.Dismissed(alert.ID) {
			out = append(out, alert)
		}
	}
	return out
}
