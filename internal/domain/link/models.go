package link

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// State tracks a link session through the connect-bank flow.
type State string

const (
	StateTokenRequested State = "token_requested"
	StateWidgetOpen     State = "widget_open"
	StateExchanging     State = "exchanging"
	StateLinked         State = "linked"
	StateFailed         State = "failed"
	StateExpired        State = "expired"
)

var transitions = map[State][]State{
	StateTokenRequested: {StateWidgetOpen, StateExchanging, StateExpired},
	StateWidgetOpen:     {StateExchanging, StateExpired},
	StateExchanging:     {StateLinked, StateFailed},
}

// Redeemable lists the states a link token can be exchanged from.
var Redeemable = []State{StateTokenRequested, StateWidgetOpen}

func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrSessionNotFound      = errors.New("link session not found")
	ErrLinkNotFound         = errors.New("institution link not found")
	ErrInvalidTransition    = errors.New("invalid link session transition")
	ErrDuplicatePublicToken = errors.New("public token already redeemed")
)

// Session is a short-lived, single-use authorization to open the provider's
// link widget for one user.
type Session struct {
	Token         string    `json:"linkToken"`
	UserID        int64     `json:"-"`
	State         State     `json:"state"`
	ExpiresAt     time.Time `json:"expiration"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// InstitutionLink is the durable, user-owned connection to one institution.
// Links are created or deleted, never updated.
type InstitutionLink struct {
	ID                  string    `json:"id"`
	UserID              int64     `json:"-"`
	InstitutionID       string    `json:"institutionId"`
	InstitutionName     string    `json:"institutionName"`
	ItemID              string    `json:"itemId"`
	EncryptedCredential string    `json:"-"`
	PublicTokenHash     string    `json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
}

type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExchangeRequest is the success payload of the link widget.
type ExchangeRequest struct {
	PublicToken string      `json:"publicToken"`
	LinkToken   string      `json:"linkToken"`
	Institution Institution `json:"institution"`
}

func (r ExchangeRequest) Validate() error {
	if strings.TrimSpace(r.PublicToken) == "" {
		return errors.New("public token is required")
	}
	if strings.TrimSpace(r.LinkToken) == "" {
		return errors.New("link token is required")
	}
	return nil
}

type CreateLinkParams struct {
	ID                  string
	UserID              int64
	InstitutionID       string
	InstitutionName     string
	ItemID              string
	EncryptedCredential string
	PublicTokenHash     string
	// SessionToken is marked linked in the same transaction.
	SessionToken string
}

// HashPublicToken is the stored fingerprint of a redeemed public token.
func HashPublicToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
