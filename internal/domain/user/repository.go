package user

import "context"

// Repository defines the interface for user data access
type Repository interface {
	// Create assigns the public id. Returns ErrEmailTaken on duplicates.
	Create(ctx context.Context, params CreateUserParams) (*User, error)
	// GetByID returns ErrUserNotFound when missing.
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByEmail returns ErrUserNotFound when missing.
	GetByEmail(ctx context.Context, email string) (*User, error)
}
