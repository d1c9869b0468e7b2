package link

import (
	"context"
	"time"
)

// Repository defines the interface for link session and institution link
// storage. Defined in the domain layer, implemented in the infrastructure layer.
type Repository interface {
	// Link sessions
	CreateSession(ctx context.Context, session *Session) error
	// GetSession returns ErrSessionNotFound when missing.
	GetSession(ctx context.Context, token string) (*Session, error)
	// TransitionSession moves the session owned by userID to state `to` only
	// if it is currently in one of `from` and unexpired at now. Returns
	// ErrSessionNotFound when no session matched.
	TransitionSession(ctx context.Context, token string, userID int64, from []State, to State, now time.Time) error
	// FailSession marks an exchanging session failed.
	FailSession(ctx context.Context, token string, reason string) error
	// ExpireSessions marks overdue open sessions expired and abandoned
	// exchanges failed. Returns the number of sessions changed.
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)

	// Institution links
	// CreateLink stores a new link, replaces any link the user already has to
	// the same institution and marks the session linked, atomically. Returns
	// the replaced link if there was one, and ErrDuplicatePublicToken when the
	// public token hash was already stored.
	CreateLink(ctx context.Context, params CreateLinkParams) (created *InstitutionLink, replaced *InstitutionLink, err error)
	// ListByUserID returns the user's links, oldest first.
	ListByUserID(ctx context.Context, userID int64) ([]*InstitutionLink, error)
	// GetByID returns ErrLinkNotFound when missing.
	GetByID(ctx context.Context, id string) (*InstitutionLink, error)
	// Delete removes a link owned by userID. Returns ErrLinkNotFound otherwise.
	Delete(ctx context.Context, id string, userID int64) error
	PublicTokenRedeemed(ctx context.Context, hash string) (bool, error)
}
