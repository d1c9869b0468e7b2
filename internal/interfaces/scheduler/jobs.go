package scheduler

import (
	"context"
	"fmt"
	"log"
)

// LinkSessionExpirer is satisfied by *link.Manager.
type LinkSessionExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// RevocationPurger is satisfied by *session.Service.
type RevocationPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// ExpireLinkSessionsJob closes link sessions whose token lapsed before the
// widget completed.
type ExpireLinkSessionsJob struct {
	manager LinkSessionExpirer
}

func NewExpireLinkSessionsJob(manager LinkSessionExpirer) *ExpireLinkSessionsJob {
	return &ExpireLinkSessionsJob{manager: manager}
}

func (j *ExpireLinkSessionsJob) Execute(ctx context.Context) error {
	n, err := j.manager.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire link sessions: %w", err)
	}
	if n > 0 {
		log.Printf("Expired %d link sessions", n)
	}
	return nil
}

func (j *ExpireLinkSessionsJob) Key() string         { return "link_sessions.expire" }
func (j *ExpireLinkSessionsJob) Description() string { return "Expire stale link sessions" }

// PurgeRevokedSessionsJob drops logout records for tokens that have expired
// on their own.
type PurgeRevokedSessionsJob struct {
	sessions RevocationPurger
}

func NewPurgeRevokedSessionsJob(sessions RevocationPurger) *PurgeRevokedSessionsJob {
	return &PurgeRevokedSessionsJob{sessions: sessions}
}

func (j *PurgeRevokedSessionsJob) Execute(ctx context.Context) error {
	n, err := j.sessions.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge revoked sessions: %w", err)
	}
	if n > 0 {
		log.Printf("Purged %d revoked sessions", n)
	}
	return nil
}

func (j *PurgeRevokedSessionsJob) Key() string         { return "revoked_sessions.purge" }
func (j *PurgeRevokedSessionsJob) Description() string { return "Purge expired session revocations" }
