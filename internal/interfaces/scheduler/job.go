package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute must respect ctx cancellation.
	Execute(ctx context.Context) error

	// Key identifies the job in logs and metrics, e.g. "link_sessions.expire".
	Key() string

	Description() string
}
