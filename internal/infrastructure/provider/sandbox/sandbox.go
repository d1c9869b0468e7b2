// Package sandbox is an in-process aggregation provider with deterministic
// institutions. It backs local development and tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"horizon/internal/infrastructure/provider"
)

const (
	linkTokenTTL   = 4 * time.Hour
	publicTokenTTL = 30 * time.Minute
)

var (
	ErrUnknownInstitution = errors.New("unknown sandbox institution")
	ErrInstitutionDown    = errors.New("institution unavailable")
)

// Institution is a fake financial institution served by the sandbox.
type Institution struct {
	provider.Institution
	Accounts     []provider.Account
	Transactions []provider.Transaction
	// Latency delays every data call. Calls still honor context cancellation.
	Latency time.Duration
	// Down makes every data call fail with ErrInstitutionDown.
	Down bool
}

type publicToken struct {
	linkToken     string
	institutionID string
	expiresAt     time.Time
}

type item struct {
	institutionID string
	removed       bool
}

// Client implements provider.Client.
type Client struct {
	mu           sync.Mutex
	now          func() time.Time
	institutions map[string]*Institution
	linkTokens   map[string]time.Time
	publicTokens map[string]publicToken
	items        map[string]*item // by access token
}

var _ provider.Client = (*Client)(nil)

// New returns a sandbox seeded with the default institutions.
func New() *Client {
	c := NewEmpty()
	for _, inst := range DefaultInstitutions() {
		c.AddInstitution(inst)
	}
	return c
}

// NewEmpty returns a sandbox with no institutions.
func NewEmpty() *Client {
	return &Client{
		now:          time.Now,
		institutions: make(map[string]*Institution),
		linkTokens:   make(map[string]time.Time),
		publicTokens: make(map[string]publicToken),
		items:        make(map[string]*item),
	}
}

func (c *Client) AddInstitution(inst Institution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := inst
	c.institutions[inst.ID] = &cp
}

// SetDown toggles the outage flag of an institution.
func (c *Client) SetDown(institutionID string, down bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.institutions[institutionID]
	if !ok {
		return ErrUnknownInstitution
	}
	inst.Down = down
	return nil
}

// SetLatency sets the artificial delay of an institution.
func (c *Client) SetLatency(institutionID string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.institutions[institutionID]
	if !ok {
		return ErrUnknownInstitution
	}
	inst.Latency = d
	return nil
}

// Institutions lists the sandbox institutions ordered by id.
func (c *Client) Institutions() []provider.Institution {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]provider.Institution, 0, len(c.institutions))
	for _, inst := range c.institutions {
		out = append(out, inst.Institution)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Client) CreateLinkToken(ctx context.Context, req provider.LinkTokenRequest) (*provider.LinkToken, error) {
	if req.ClientUserID == "" {
		return nil, fmt.Errorf("client user id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	token := "link-sandbox-" + uuid.NewString()
	expiresAt := c.now().Add(linkTokenTTL)
	c.linkTokens[token] = expiresAt

	return &provider.LinkToken{Token: token, ExpiresAt: expiresAt}, nil
}

// CreatePublicToken plays the part of the link widget: the user picked an
// institution and signed in, so the widget hands back a public token.
func (c *Client) CreatePublicToken(linkToken, institutionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := c.linkTokens[linkToken]
	if !ok || c.now().After(expiresAt) {
		return "", provider.ErrInvalidToken
	}
	if _, ok := c.institutions[institutionID]; !ok {
		return "", ErrUnknownInstitution
	}

	token := "public-sandbox-" + uuid.NewString()
	c.publicTokens[token] = publicToken{
		linkToken:     linkToken,
		institutionID: institutionID,
		expiresAt:     c.now().Add(publicTokenTTL),
	}
	return token, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, token string) (*provider.ExchangeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pt, ok := c.publicTokens[token]
	if !ok {
		return nil, provider.ErrInvalidToken
	}
	delete(c.publicTokens, token)
	if c.now().After(pt.expiresAt) {
		return nil, provider.ErrInvalidToken
	}

	inst := c.institutions[pt.institutionID]
	accessToken := "access-sandbox-" + uuid.NewString()
	c.items[accessToken] = &item{institutionID: pt.institutionID}

	return &provider.ExchangeResult{
		AccessToken: accessToken,
		ItemID:      "item-sandbox-" + uuid.NewString(),
		LinkToken:   pt.linkToken,
		Institution: inst.Institution,
	}, nil
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]provider.Account, error) {
	inst, err := c.institutionFor(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Account, len(inst.Accounts))
	copy(out, inst.Accounts)
	return out, nil
}

func (c *Client) GetTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]provider.Transaction, error) {
	inst, err := c.institutionFor(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var out []provider.Transaction
	for _, tx := range inst.Transactions {
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[accessToken]
	if !ok {
		return provider.ErrInvalidToken
	}
	it.removed = true
	return nil
}

// institutionFor resolves an access token and applies the institution's
// latency and outage settings.
func (c *Client) institutionFor(ctx context.Context, accessToken string) (Institution, error) {
	c.mu.Lock()
	it, ok := c.items[accessToken]
	if !ok {
		c.mu.Unlock()
		return Institution{}, provider.ErrInvalidToken
	}
	if it.removed {
		c.mu.Unlock()
		return Institution{}, provider.ErrCredentialRevoked
	}
	inst := *c.institutions[it.institutionID]
	c.mu.Unlock()

	if inst.Latency > 0 {
		timer := time.NewTimer(inst.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Institution{}, ctx.Err()
		}
	}
	if inst.Down {
		return Institution{}, fmt.Errorf("%s: %w", inst.Name, ErrInstitutionDown)
	}
	return inst, nil
}

// DefaultInstitutions returns the seed data served by New.
func DefaultInstitutions() []Institution {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	day := func(n int) time.Time { return today.AddDate(0, 0, -n) }
	amt := decimal.RequireFromString
	avail := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	return []Institution{
		{
			Institution: provider.Institution{ID: "ins_109508", Name: "First Platypus Bank"},
			Accounts: []provider.Account{
				{ID: "fpb-chk-0000", Name: "Plaid Checking", Mask: "0000", Type: "depository", Subtype: "checking", Currency: "USD", Current: amt("110.00"), Available: avail("100.00")},
				{ID: "fpb-sav-1111", Name: "Plaid Saving", Mask: "1111", Type: "depository", Subtype: "savings", Currency: "USD", Current: amt("210.00"), Available: avail("200.00")},
			},
			Transactions: []provider.Transaction{
				{ID: "fpb-tx-1", AccountID: "fpb-chk-0000", Name: "Uber 063015 SF**POOL**", Amount: amt("5.40"), Currency: "USD", Date: day(1)},
				{ID: "fpb-tx-2", AccountID: "fpb-chk-0000", Name: "Starbucks", Amount: amt("4.33"), Currency: "USD", Date: day(3)},
				{ID: "fpb-tx-3", AccountID: "fpb-sav-1111", Name: "CD DEPOSIT .INITIAL.", Amount: amt("-1000.00"), Currency: "USD", Date: day(12)},
			},
		},
		{
			Institution: provider.Institution{ID: "ins_109509", Name: "First Gingham Credit Union"},
			Accounts: []provider.Account{
				{ID: "fgcu-cd-2222", Name: "Plaid CD", Mask: "2222", Type: "depository", Subtype: "cd", Currency: "USD", Current: amt("1000.00")},
				{ID: "fgcu-cc-3333", Name: "Plaid Credit Card", Mask: "3333", Type: "credit", Subtype: "credit card", Currency: "USD", Current: amt("410.00")},
			},
			Transactions: []provider.Transaction{
				{ID: "fgcu-tx-1", AccountID: "fgcu-cc-3333", Name: "McDonald's", Amount: amt("12.00"), Currency: "USD", Date: day(2)},
				{ID: "fgcu-tx-2", AccountID: "fgcu-cc-3333", Name: "United Airlines", Amount: amt("500.00"), Currency: "USD", Date: day(6)},
			},
		},
		{
			Institution: provider.Institution{ID: "ins_109510", Name: "Tattersall Federal Credit Union"},
			Accounts: []provider.Account{
				{ID: "tfcu-chk-4444", Name: "Everyday Checking", Mask: "4444", Type: "depository", Subtype: "checking", Currency: "USD", Current: amt("2345.67"), Available: avail("2300.00")},
			},
			Transactions: []provider.Transaction{
				{ID: "tfcu-tx-1", AccountID: "tfcu-chk-4444", Name: "Payroll", Amount: amt("-2500.00"), Currency: "USD", Date: day(4)},
			},
		},
		{
			Institution: provider.Institution{ID: "ins_109511", Name: "Houndstooth Bank"},
			Accounts: []provider.Account{
				{ID: "hb-sav-5555", Name: "High Yield Savings", Mask: "5555", Type: "depository", Subtype: "savings", Currency: "USD", Current: amt("15000.00")},
			},
			Down: true,
		},
	}
}
