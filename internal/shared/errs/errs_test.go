package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProviderError_Is(t *testing.T) {
	err := fmt.Errorf("fetching accounts: %w", &ProviderError{
		Op:          "accounts",
		Institution: "Chase",
		Err:         context.DeadlineExceeded,
	})

	if !errors.Is(err, ErrProvider) {
		t.Error("expected errors.Is(err, ErrProvider)")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected wrapped cause to be reachable")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Error("provider error must not match ErrInvalidToken")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Institution != "Chase" {
		t.Errorf("errors.As failed or lost institution: %+v", pe)
	}
}

func TestProviderError_Message(t *testing.T) {
	tests := []struct {
		err  *ProviderError
		want string
	}{
		{&ProviderError{Op: "link_token", Err: errors.New("boom")}, "provider link_token: boom"},
		{&ProviderError{Op: "accounts", Institution: "Chase", Err: errors.New("boom")}, "provider accounts (Chase): boom"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
