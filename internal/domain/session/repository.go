package session

import (
	"context"
	"time"
)

// Repository stores revoked session ids until the sessions would have expired.
type Repository interface {
	// Revoke is idempotent.
	Revoke(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	// PurgeExpired deletes revocations of sessions that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
