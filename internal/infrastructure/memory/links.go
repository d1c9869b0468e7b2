package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"horizon/internal/domain/link"
)

// LinkStore implements link.Repository. A single mutex gives CreateLink the
// same all-or-nothing behavior as the Postgres transaction.
type LinkStore struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]*link.Session
	links    map[string]*link.InstitutionLink
	hashes   map[string]string // public token hash -> link id
}

var _ link.Repository = (*LinkStore)(nil)

func NewLinkStore() *LinkStore {
	return &LinkStore{
		now:      time.Now,
		sessions: make(map[string]*link.Session),
		links:    make(map[string]*link.InstitutionLink),
		hashes:   make(map[string]string),
	}
}

func (s *LinkStore) CreateSession(_ context.Context, session *link.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.Token] = &cp
	return nil
}

func (s *LinkStore) GetSession(_ context.Context, token string) (*link.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, link.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *LinkStore) TransitionSession(_ context.Context, token string, userID int64, from []link.State, to link.State, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok || session.UserID != userID || !slices.Contains(from, session.State) || session.Expired(now) {
		return link.ErrSessionNotFound
	}
	session.State = to
	session.UpdatedAt = now
	return nil
}

func (s *LinkStore) FailSession(_ context.Context, token string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok || session.State != link.StateExchanging {
		return link.ErrSessionNotFound
	}
	session.State = link.StateFailed
	session.FailureReason = reason
	session.UpdatedAt = s.now()
	return nil
}

func (s *LinkStore) ExpireSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, session := range s.sessions {
		if !session.Expired(now) {
			continue
		}
		switch session.State {
		case link.StateTokenRequested, link.StateWidgetOpen:
			session.State = link.StateExpired
		case link.StateExchanging:
			session.State = link.StateFailed
			session.FailureReason = "abandoned"
		default:
			continue
		}
		session.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *LinkStore) CreateLink(_ context.Context, params link.CreateLinkParams) (*link.InstitutionLink, *link.InstitutionLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hashes[params.PublicTokenHash]; ok {
		return nil, nil, link.ErrDuplicatePublicToken
	}
	session, ok := s.sessions[params.SessionToken]
	if !ok || session.UserID != params.UserID || session.State != link.StateExchanging {
		return nil, nil, link.ErrSessionNotFound
	}

	var replaced *link.InstitutionLink
	for id, l := range s.links {
		if l.UserID == params.UserID && l.InstitutionID == params.InstitutionID {
			cp := *l
			replaced = &cp
			delete(s.links, id)
			break
		}
	}

	now := s.now()
	created := &link.InstitutionLink{
		ID:                  params.ID,
		UserID:              params.UserID,
		InstitutionID:       params.InstitutionID,
		InstitutionName:     params.InstitutionName,
		ItemID:              params.ItemID,
		EncryptedCredential: params.EncryptedCredential,
		PublicTokenHash:     params.PublicTokenHash,
		CreatedAt:           now,
	}
	s.links[created.ID] = created
	s.hashes[params.PublicTokenHash] = created.ID

	session.State = link.StateLinked
	session.UpdatedAt = now

	cp := *created
	return &cp, replaced, nil
}

func (s *LinkStore) ListByUserID(_ context.Context, userID int64) ([]*link.InstitutionLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*link.InstitutionLink
	for _, l := range s.links {
		if l.UserID == userID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LinkStore) GetByID(_ context.Context, id string) (*link.InstitutionLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return nil, link.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *LinkStore) Delete(_ context.Context, id string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok || l.UserID != userID {
		return link.ErrLinkNotFound
	}
	delete(s.links, id)
	return nil
}

// PublicTokenRedeemed keeps hashes of deleted links, so a public token can
// never be redeemed twice.
func (s *LinkStore) PublicTokenRedeemed(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.hashes[hash]
	return ok, nil
}
