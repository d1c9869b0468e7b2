package memory

import (
	"context"
	"sync"
	"time"

	"horizon/internal/domain/session"
)

type revocation struct {
	userID    int64
	expiresAt time.Time
}

// SessionStore implements session.Repository.
type SessionStore struct {
	mu      sync.Mutex
	revoked map[string]revocation
}

var _ session.Repository = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{revoked: make(map[string]revocation)}
}

func (s *SessionStore) Revoke(_ context.Context, sessionID string, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = revocation{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *SessionStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[sessionID]
	return ok, nil
}

func (s *SessionStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.revoked {
		if r.expiresAt.Before(now) {
			delete(s.revoked, id)
			n++
		}
	}
	return n, nil
}
