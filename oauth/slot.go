package oauth

import "sync"

// CodeSlot is the pending-authorization-code handoff between the HTTP callback
// handler and a waiting Broker. The lock is held only for the read or write,
// never across I/O.
type CodeSlot struct {
	mu   sync.Mutex
	code string
}

// Put stores code, replacing any code that was not yet consumed.
func (s *CodeSlot) Put(code string) {
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
}

// Take consumes the pending code.
func (s *CodeSlot) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == "" {
		return "", false
	}
	code := s.code
	s.code = ""
	return code, true
}
