// Package session exposes the signed-in user and the logout action.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"horizon/internal/domain/user"
	"horizon/internal/shared/auth"
)

type Service struct {
	repo  Repository
	users user.Repository
}

func NewService(repo Repository, users user.Repository) *Service {
	return &Service{repo: repo, users: users}
}

// CurrentUser returns the signed-in user, or nil with no error when the
// context carries no session or the account no longer exists.
func (s *Service) CurrentUser(ctx context.Context) (*user.User, error) {
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, nil
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load current user: %w", err)
	}
	return u, nil
}

// Logout ends the current session. Logging out without a session succeeds.
// A failed revocation is retried once; if it still fails the caller gets
// false so it can tell the user, but should still drop the client cookie.
func (s *Service) Logout(ctx context.Context) (bool, error) {
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil || claims.SessionID() == "" {
		return true, nil
	}

	expiresAt := claims.Expiry()
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(24 * time.Hour)
	}

	err := s.repo.Revoke(ctx, claims.SessionID(), claims.UserID, expiresAt)
	if err != nil {
		log.Printf("User %d: logout failed, retrying: %v", claims.UserID, err)
		err = s.repo.Revoke(ctx, claims.SessionID(), claims.UserID, expiresAt)
	}
	if err != nil {
		log.Printf("User %d: logout failed: %v", claims.UserID, err)
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}

	log.Printf("User %d: logged out", claims.UserID)
	return true, nil
}

// IsRevoked reports whether the session was logged out.
func (s *Service) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	return s.repo.IsRevoked(ctx, sessionID)
}

// PurgeExpired drops revocations that no longer matter.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, time.Now())
}
