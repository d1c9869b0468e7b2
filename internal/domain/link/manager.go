package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"horizon/internal/domain/user"
	"horizon/internal/infrastructure/provider"
	"horizon/internal/shared/errs"
)

// LinkToken is handed to the client to open the provider's link widget.
type LinkToken struct {
	Token     string    `json:"linkToken"`
	ExpiresAt time.Time `json:"expiration"`
}

// Manager issues link tokens and tracks the resulting link sessions.
type Manager struct {
	repo     Repository
	users    user.Repository
	provider provider.Client
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a link session manager. ttl caps the lifetime of a
// session; the provider's own expiry wins when it is earlier.
func NewManager(repo Repository, users user.Repository, client provider.Client, ttl time.Duration) *Manager {
	return &Manager{
		repo:     repo,
		users:    users,
		provider: client,
		ttl:      ttl,
		now:      time.Now,
	}
}

// CreateLinkToken obtains a single-use link token scoped to the user.
// Failures are not retried: the user asks again.
func (m *Manager) CreateLinkToken(ctx context.Context, userID int64) (*LinkToken, error) {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, errs.ErrAuth
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	lt, err := m.provider.CreateLinkToken(ctx, provider.LinkTokenRequest{ClientUserID: u.PublicID})
	if err != nil {
		return nil, &errs.ProviderError{Op: "link_token", Err: err}
	}
	if lt == nil || lt.Token == "" {
		return nil, &errs.ProviderError{Op: "link_token", Err: errors.New("empty link token")}
	}

	now := m.now()
	expiresAt := lt.ExpiresAt
	if m.ttl > 0 && (expiresAt.IsZero() || expiresAt.After(now.Add(m.ttl))) {
		expiresAt = now.Add(m.ttl)
	}

	session := &Session{
		Token:     lt.Token,
		UserID:    userID,
		State:     StateTokenRequested,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store link session: %w", err)
	}

	log.Printf("User %d: link token issued (expires %s)", userID, expiresAt.Format(time.RFC3339))
	return &LinkToken{Token: lt.Token, ExpiresAt: expiresAt}, nil
}

// MarkWidgetOpen records that the user opened the link widget.
func (m *Manager) MarkWidgetOpen(ctx context.Context, userID int64, token string) (*Session, error) {
	err := m.repo.TransitionSession(ctx, token, userID, []State{StateTokenRequested}, StateWidgetOpen, m.now())
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to update link session: %w", err)
		}
		// Reopening the widget is fine; anything else is not.
		session, statusErr := m.Status(ctx, userID, token)
		if statusErr != nil {
			return nil, statusErr
		}
		if session.State == StateExpired || (slices.Contains(Redeemable, session.State) && session.Expired(m.now())) {
			return nil, fmt.Errorf("%w: link token expired", errs.ErrInvalidToken)
		}
		if session.State == StateWidgetOpen {
			return session, nil
		}
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, session.State)
	}
	return m.Status(ctx, userID, token)
}

// Status returns the session if it belongs to the user.
func (m *Manager) Status(ctx context.Context, userID int64, token string) (*Session, error) {
	session, err := m.repo.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ExpireStale closes sessions that ran past their expiry.
func (m *Manager) ExpireStale(ctx context.Context) (int64, error) {
	n, err := m.repo.ExpireSessions(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire link sessions: %w", err)
	}
	return n, nil
}
