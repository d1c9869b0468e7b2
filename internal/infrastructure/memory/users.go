// Package memory holds in-process repositories used for local development
// (DATA_BACKEND=memory) and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"horizon/internal/domain/user"
)

type UserStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*user.User
}

var _ user.Repository = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[int64]*user.User)}
}

func (s *UserStore) Create(_ context.Context, params user.CreateUserParams) (*user.User, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		if strings.EqualFold(u.Email, params.Email) {
			return nil, user.ErrEmailTaken
		}
	}

	s.nextID++
	now := time.Now()
	u := &user.User{
		ID:           s.nextID,
		PublicID:     uuid.NewString(),
		Email:        params.Email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u

	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByID(_ context.Context, id int64) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}
