package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"horizon/internal/infrastructure/provider"
)

func linkAndExchange(t *testing.T, c *Client, institutionID string) *provider.ExchangeResult {
	t.Helper()
	ctx := context.Background()

	lt, err := c.CreateLinkToken(ctx, provider.LinkTokenRequest{ClientUserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateLinkToken() failed: %v", err)
	}
	pt, err := c.CreatePublicToken(lt.Token, institutionID)
	if err != nil {
		t.Fatalf("CreatePublicToken() failed: %v", err)
	}
	res, err := c.ExchangePublicToken(ctx, pt)
	if err != nil {
		t.Fatalf("ExchangePublicToken() failed: %v", err)
	}
	if res.LinkToken != lt.Token {
		t.Errorf("ExchangeResult.LinkToken = %q, want %q", res.LinkToken, lt.Token)
	}
	return res
}

func TestCreateLinkToken_RequiresUser(t *testing.T) {
	c := New()
	if _, err := c.CreateLinkToken(context.Background(), provider.LinkTokenRequest{}); err == nil {
		t.Error("CreateLinkToken() accepted empty client user id")
	}
}

func TestCreatePublicToken_UnknownLinkToken(t *testing.T) {
	c := New()
	if _, err := c.CreatePublicToken("link-sandbox-nope", "ins_109508"); !errors.Is(err, provider.ErrInvalidToken) {
		t.Errorf("CreatePublicToken() error = %v, want %v", err, provider.ErrInvalidToken)
	}
}

func TestExchangePublicToken_SingleUse(t *testing.T) {
	c := New()
	ctx := context.Background()

	lt, _ := c.CreateLinkToken(ctx, provider.LinkTokenRequest{ClientUserID: "user-1"})
	pt, _ := c.CreatePublicToken(lt.Token, "ins_109508")

	first, err := c.ExchangePublicToken(ctx, pt)
	if err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	if first.Institution.Name != "First Platypus Bank" {
		t.Errorf("Institution.Name = %q", first.Institution.Name)
	}

	if _, err := c.ExchangePublicToken(ctx, pt); !errors.Is(err, provider.ErrInvalidToken) {
		t.Errorf("second exchange error = %v, want %v", err, provider.ErrInvalidToken)
	}
}

func TestExchangePublicToken_Expired(t *testing.T) {
	c := New()
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	lt, _ := c.CreateLinkToken(ctx, provider.LinkTokenRequest{ClientUserID: "user-1"})
	pt, _ := c.CreatePublicToken(lt.Token, "ins_109508")

	c.now = func() time.Time { return now.Add(publicTokenTTL + time.Minute) }
	if _, err := c.ExchangePublicToken(ctx, pt); !errors.Is(err, provider.ErrInvalidToken) {
		t.Errorf("ExchangePublicToken() error = %v, want %v", err, provider.ErrInvalidToken)
	}
}

func TestGetAccounts(t *testing.T) {
	c := New()
	res := linkAndExchange(t, c, "ins_109509")

	accounts, err := c.GetAccounts(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("GetAccounts() failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("GetAccounts() returned %d accounts, want 2", len(accounts))
	}
	if accounts[0].Current.String() != "1000" {
		t.Errorf("accounts[0].Current = %s, want 1000", accounts[0].Current)
	}
}

func TestGetAccounts_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *Client, res *provider.ExchangeResult)
		token   func(res *provider.ExchangeResult) string
		wantErr error
	}{
		{
			name:    "unknown access token",
			setup:   func(c *Client, res *provider.ExchangeResult) {},
			token:   func(res *provider.ExchangeResult) string { return "access-sandbox-unknown" },
			wantErr: provider.ErrInvalidToken,
		},
		{
			name: "removed item",
			setup: func(c *Client, res *provider.ExchangeResult) {
				_ = c.RemoveItem(context.Background(), res.AccessToken)
			},
			token:   func(res *provider.ExchangeResult) string { return res.AccessToken },
			wantErr: provider.ErrCredentialRevoked,
		},
		{
			name: "institution down",
			setup: func(c *Client, res *provider.ExchangeResult) {
				_ = c.SetDown("ins_109508", true)
			},
			token:   func(res *provider.ExchangeResult) string { return res.AccessToken },
			wantErr: ErrInstitutionDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			res := linkAndExchange(t, c, "ins_109508")
			tt.setup(c, res)

			_, err := c.GetAccounts(context.Background(), tt.token(res))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetAccounts() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetAccounts_LatencyHonorsContext(t *testing.T) {
	c := New()
	res := linkAndExchange(t, c, "ins_109508")
	if err := c.SetLatency("ins_109508", time.Minute); err != nil {
		t.Fatalf("SetLatency() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.GetAccounts(ctx, res.AccessToken)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetAccounts() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("GetAccounts() took %v after cancellation", elapsed)
	}
}

func TestGetTransactions_FiltersWindow(t *testing.T) {
	c := New()
	res := linkAndExchange(t, c, "ins_109508")

	end := time.Now()
	start := end.AddDate(0, 0, -5)
	txs, err := c.GetTransactions(context.Background(), res.AccessToken, start, end)
	if err != nil {
		t.Fatalf("GetTransactions() failed: %v", err)
	}
	for _, tx := range txs {
		if tx.Date.Before(start) || tx.Date.After(end) {
			t.Errorf("transaction %s dated %v outside window", tx.ID, tx.Date)
		}
	}
	if len(txs) != 2 {
		t.Errorf("GetTransactions() returned %d transactions, want 2", len(txs))
	}
}

func TestInstitutions_Sorted(t *testing.T) {
	insts := New().Institutions()
	if len(insts) != 4 {
		t.Fatalf("Institutions() returned %d, want 4", len(insts))
	}
	for i := 1; i < len(insts); i++ {
		if insts[i-1].ID > insts[i].ID {
			t.Errorf("Institutions() not sorted: %s before %s", insts[i-1].ID, insts[i].ID)
		}
	}
}
