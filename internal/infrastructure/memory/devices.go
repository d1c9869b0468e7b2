package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"horizon/internal/domain/notification"
)

// DeviceStore implements notification.Repository.
type DeviceStore struct {
	mu      sync.Mutex
	byToken map[string]*notification.DeviceToken
}

var _ notification.Repository = (*DeviceStore)(nil)

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{byToken: make(map[string]*notification.DeviceToken)}
}

func (s *DeviceStore) UpsertDeviceToken(_ context.Context, params notification.RegisterDeviceParams) (*notification.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	dt, ok := s.byToken[params.Token]
	if !ok {
		dt = &notification.DeviceToken{ID: uuid.NewString(), Token: params.Token, CreatedAt: now}
		s.byToken[params.Token] = dt
	}
	dt.UserID = params.UserID
	dt.Platform = params.Platform
	dt.Active = true
	dt.LastUsed = now

	cp := *dt
	return &cp, nil
}

func (s *DeviceStore) GetActiveTokensByUserID(_ context.Context, userID int64) ([]*notification.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*notification.DeviceToken
	for _, dt := range s.byToken {
		if dt.UserID == userID && dt.Active {
			cp := *dt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *DeviceStore) DeactivateToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dt, ok := s.byToken[token]; ok {
		dt.Active = false
	}
	return nil
}
