// Package provider defines the contract with the account aggregation provider
// that brokers connections to financial institutions.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidToken is returned when a public or access token is unknown,
	// expired or already consumed.
	ErrInvalidToken = errors.New("provider rejected token")

	// ErrCredentialRevoked is returned when the institution connection was
	// revoked or needs the user to sign in again.
	ErrCredentialRevoked = errors.New("provider credential revoked")
)

// Client is implemented by the Plaid adapter and the in-process sandbox.
type Client interface {
	CreateLinkToken(ctx context.Context, req LinkTokenRequest) (*LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error)
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)
	GetTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]Transaction, error)
	RemoveItem(ctx context.Context, accessToken string) error
}

type LinkTokenRequest struct {
	// ClientUserID is the opaque id the provider scopes the link token to.
	ClientUserID string
}

type LinkToken struct {
	Token     string
	ExpiresAt time.Time
}

type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExchangeResult carries the durable credential for one institution
// connection. LinkToken and Institution are set only by providers that track
// which link session produced the public token.
type ExchangeResult struct {
	AccessToken string
	ItemID      string
	LinkToken   string
	Institution Institution
}

type Account struct {
	ID        string
	Name      string
	Mask      string
	Type      string
	Subtype   string
	Currency  string
	Current   decimal.Decimal
	Available *decimal.Decimal
}

type Transaction struct {
	ID        string
	AccountID string
	Name      string
	Amount    decimal.Decimal
	Currency  string
	Date      time.Time
	Pending   bool
}
