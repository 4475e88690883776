package openpgp

import "sync"

// Shared holds a process-wide Session that is reused across operations until it is
// disposed, for instance when the smart card service goes away. The next Get builds a
// fresh one.
type Shared struct {
	mu      sync.Mutex
	factory func() *Session
	session *Session
}

// NewShared creates a Shared that builds sessions with factory.
func NewShared(factory func() *Session) *Shared {
	return &Shared{factory: factory}
}

// Get returns the current session, creating it if needed.
func (s *Shared) Get() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		s.session = s.factory()
	}
	return s.session
}

// Dispose releases the current session and forgets it.
func (s *Shared) Dispose() error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}
