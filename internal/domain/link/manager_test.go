package link_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"horizon/internal/domain/link"
	"horizon/internal/infrastructure/memory"
	"horizon/internal/infrastructure/provider"
	"horizon/internal/shared/errs"
)

type mockProvider struct {
	provider.Client
	CreateLinkTokenFunc func(ctx context.Context, req provider.LinkTokenRequest) (*provider.LinkToken, error)
}

func (m *mockProvider) CreateLinkToken(ctx context.Context, req provider.LinkTokenRequest) (*provider.LinkToken, error) {
	return m.CreateLinkTokenFunc(ctx, req)
}

func TestCreateLinkToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lt, err := f.manager.CreateLinkToken(ctx, f.u1.ID)
	if err != nil {
		t.Fatalf("CreateLinkToken() failed: %v", err)
	}
	if lt.Token == "" {
		t.Fatal("empty link token")
	}
	if time.Until(lt.ExpiresAt) > 30*time.Minute {
		t.Errorf("ExpiresAt = %s, want capped at 30m", lt.ExpiresAt)
	}

	session, err := f.manager.Status(ctx, f.u1.ID, lt.Token)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if session.State != link.StateTokenRequested || session.UserID != f.u1.ID {
		t.Errorf("session = %+v", session)
	}

	if _, err := f.manager.Status(ctx, f.u2.ID, lt.Token); !errors.Is(err, link.ErrSessionNotFound) {
		t.Errorf("Status() for other user error = %v, want ErrSessionNotFound", err)
	}
}

func TestCreateLinkToken_DistinctPerCall(t *testing.T) {
	f := newFixture(t)

	a, _ := f.manager.CreateLinkToken(context.Background(), f.u1.ID)
	b, _ := f.manager.CreateLinkToken(context.Background(), f.u1.ID)
	if a.Token == b.Token {
		t.Error("two calls returned the same link token")
	}
}

func TestCreateLinkToken_UnknownUser(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.CreateLinkToken(context.Background(), 999); !errors.Is(err, errs.ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestCreateLinkToken_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	links := memory.NewLinkStore()
	mock := &mockProvider{
		CreateLinkTokenFunc: func(ctx context.Context, req provider.LinkTokenRequest) (*provider.LinkToken, error) {
			if req.ClientUserID != f.u1.PublicID {
				t.Errorf("ClientUserID = %q, want the user's public id", req.ClientUserID)
			}
			return nil, errors.New("503 from upstream")
		},
	}
	m := link.NewManager(links, f.users, mock, time.Minute)

	_, err := m.CreateLinkToken(context.Background(), f.u1.ID)
	if !errors.Is(err, errs.ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
	var pe *errs.ProviderError
	if !errors.As(err, &pe) || pe.Op != "link_token" {
		t.Errorf("error = %#v, want ProviderError with op link_token", err)
	}
}

func TestCreateLinkToken_ProviderExpiryWins(t *testing.T) {
	f := newFixture(t)
	soon := time.Now().Add(5 * time.Minute)
	mock := &mockProvider{
		CreateLinkTokenFunc: func(ctx context.Context, req provider.LinkTokenRequest) (*provider.LinkToken, error) {
			return &provider.LinkToken{Token: "link-x", ExpiresAt: soon}, nil
		},
	}
	m := link.NewManager(memory.NewLinkStore(), f.users, mock, time.Hour)

	lt, err := m.CreateLinkToken(context.Background(), f.u1.ID)
	if err != nil {
		t.Fatalf("CreateLinkToken() failed: %v", err)
	}
	if !lt.ExpiresAt.Equal(soon) {
		t.Errorf("ExpiresAt = %s, want provider expiry %s", lt.ExpiresAt, soon)
	}
}

func TestMarkWidgetOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lt, _ := f.manager.CreateLinkToken(ctx, f.u1.ID)

	session, err := f.manager.MarkWidgetOpen(ctx, f.u1.ID, lt.Token)
	if err != nil {
		t.Fatalf("MarkWidgetOpen() failed: %v", err)
	}
	if session.State != link.StateWidgetOpen {
		t.Errorf("state = %s, want widget_open", session.State)
	}

	if _, err := f.manager.MarkWidgetOpen(ctx, f.u1.ID, lt.Token); err != nil {
		t.Errorf("second MarkWidgetOpen() error = %v, want idempotent", err)
	}
	if _, err := f.manager.MarkWidgetOpen(ctx, f.u2.ID, lt.Token); !errors.Is(err, link.ErrSessionNotFound) {
		t.Errorf("MarkWidgetOpen() by other user error = %v, want ErrSessionNotFound", err)
	}

	// A widget-open session is still redeemable.
	pt, _ := f.sandbox.CreatePublicToken(lt.Token, "ins_109510")
	if _, err := f.exchanger.ExchangePublicToken(ctx, f.u1.ID, link.ExchangeRequest{PublicToken: pt, LinkToken: lt.Token}); err != nil {
		t.Fatalf("exchange after widget open failed: %v", err)
	}

	if _, err := f.manager.MarkWidgetOpen(ctx, f.u1.ID, lt.Token); !errors.Is(err, link.ErrInvalidTransition) {
		t.Errorf("MarkWidgetOpen() on linked session error = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkWidgetOpen_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short := link.NewManager(f.links, f.users, f.sandbox, time.Nanosecond)
	lt, _ := short.CreateLinkToken(ctx, f.u1.ID)
	time.Sleep(time.Millisecond)

	_, err := short.MarkWidgetOpen(ctx, f.u1.ID, lt.Token)
	if !errors.Is(err, errs.ErrInvalidToken) {
		t.Errorf("MarkWidgetOpen() on expired token error = %v, want ErrInvalidToken", err)
	}
	if errors.Is(err, link.ErrInvalidTransition) {
		t.Error("expired token reported as an invalid transition")
	}

	if _, err := short.ExpireStale(ctx); err != nil {
		t.Fatalf("ExpireStale() failed: %v", err)
	}
	if _, err := short.MarkWidgetOpen(ctx, f.u1.ID, lt.Token); !errors.Is(err, errs.ErrInvalidToken) {
		t.Errorf("MarkWidgetOpen() on expired session error = %v, want ErrInvalidToken", err)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short := link.NewManager(f.links, f.users, f.sandbox, time.Nanosecond)
	lt, _ := short.CreateLinkToken(ctx, f.u1.ID)
	time.Sleep(time.Millisecond)

	n, err := f.manager.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("ExpireStale() = %d, want 1", n)
	}
	session, _ := f.manager.Status(ctx, f.u1.ID, lt.Token)
	if session.State != link.StateExpired {
		t.Errorf("state = %s, want expired", session.State)
	}
}
