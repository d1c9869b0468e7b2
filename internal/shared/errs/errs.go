// Package errs holds the error kinds shared by the link, aggregation and
// session components. Callers match them with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means no valid user session. Terminal: the user must sign in again.
	ErrAuth = errors.New("authentication required")

	// ErrInvalidToken means a link or public token was unknown, expired,
	// issued to another user or already redeemed. Terminal: restart linking.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrProvider means the aggregation provider failed or was unreachable.
	ErrProvider = errors.New("provider error")

	// ErrPartialAggregation means some institutions could not be refreshed.
	ErrPartialAggregation = errors.New("partial aggregation")
)

// ProviderError describes a failed call to the aggregation provider.
type ProviderError struct {
	Op          string
	Institution string
	Err         error
}

func (e *ProviderError) Error() string {
	if e.Institution != "" {
		return fmt.Sprintf("provider %s (%s): %v", e.Op, e.Institution, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}
