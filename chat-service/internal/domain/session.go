package domain

import (
	"sync"
	"time"
)

// Session is the per-connection state. It is created already authenticated:
// the handshake is rejected before a session exists otherwise.
type Session struct {
	ID        string
	UserID    string
	Username  string
	CreatedAt time.Time

	// counted is set once the connection holds a presence reference, so
	// disconnect only releases what connect actually took.
	counted bool
	mu      sync.RWMutex
}

func NewSession(id string, identity Identity) *Session {
	return &Session{
		ID:        id,
		UserID:    identity.UserID,
		Username:  identity.Username,
		CreatedAt: time.Now(),
	}
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{UserID: s.UserID, Username: s.Username}
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

func (s *Session) GetUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username
}

func (s *Session) SetPresenceCounted(counted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counted = counted
}

func (s *Session) PresenceCounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counted
}
