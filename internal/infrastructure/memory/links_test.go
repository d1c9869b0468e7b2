package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"horizon/internal/domain/link"
)

func openSession(t *testing.T, s *LinkStore, token string, userID int64, expiresAt time.Time) {
	t.Helper()
	err := s.CreateSession(context.Background(), &link.Session{
		Token:     token,
		UserID:    userID,
		State:     link.StateTokenRequested,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
}

func TestTransitionSession(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		userID  int64
		at      time.Time
		from    []link.State
		wantErr error
	}{
		{"owner before expiry", 1, now, link.Redeemable, nil},
		{"other user", 2, now, link.Redeemable, link.ErrSessionNotFound},
		{"after expiry", 1, now.Add(time.Hour), link.Redeemable, link.ErrSessionNotFound},
		{"wrong source state", 1, now, []link.State{link.StateExchanging}, link.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLinkStore()
			openSession(t, s, "lt", 1, now.Add(30*time.Minute))

			err := s.TransitionSession(context.Background(), "lt", tt.userID, tt.from, link.StateExchanging, tt.at)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("TransitionSession() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransitionSession_OnlyOnce(t *testing.T) {
	s := NewLinkStore()
	now := time.Now()
	openSession(t, s, "lt", 1, now.Add(time.Minute))

	if err := s.TransitionSession(context.Background(), "lt", 1, link.Redeemable, link.StateExchanging, now); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := s.TransitionSession(context.Background(), "lt", 1, link.Redeemable, link.StateExchanging, now); !errors.Is(err, link.ErrSessionNotFound) {
		t.Errorf("second claim error = %v, want %v", err, link.ErrSessionNotFound)
	}
}

func claimAndLink(t *testing.T, s *LinkStore, token, id, institutionID, hash string) (*link.InstitutionLink, *link.InstitutionLink) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	openSession(t, s, token, 1, now.Add(time.Minute))
	if err := s.TransitionSession(ctx, token, 1, link.Redeemable, link.StateExchanging, now); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	created, replaced, err := s.CreateLink(ctx, link.CreateLinkParams{
		ID:              id,
		UserID:          1,
		InstitutionID:   institutionID,
		InstitutionName: institutionID,
		PublicTokenHash: hash,
		SessionToken:    token,
	})
	if err != nil {
		t.Fatalf("CreateLink() failed: %v", err)
	}
	return created, replaced
}

func TestCreateLink_ReplacesSameInstitution(t *testing.T) {
	s := NewLinkStore()
	ctx := context.Background()

	first, replaced := claimAndLink(t, s, "lt-1", "link-1", "ins_1", "h1")
	if replaced != nil {
		t.Fatalf("first link replaced %+v", replaced)
	}
	claimAndLink(t, s, "lt-2", "link-2", "ins_2", "h2")
	_, replaced = claimAndLink(t, s, "lt-3", "link-3", "ins_1", "h3")
	if replaced == nil || replaced.ID != first.ID {
		t.Fatalf("replaced = %+v, want %s", replaced, first.ID)
	}

	links, _ := s.ListByUserID(ctx, 1)
	if len(links) != 2 {
		t.Fatalf("ListByUserID() returned %d links, want 2", len(links))
	}
	if links[0].ID != "link-2" || links[1].ID != "link-3" {
		t.Errorf("order = %s, %s; want link-2, link-3", links[0].ID, links[1].ID)
	}

	session, _ := s.GetSession(ctx, "lt-3")
	if session.State != link.StateLinked {
		t.Errorf("session state = %s, want linked", session.State)
	}
}

func TestCreateLink_DuplicateHashSurvivesDelete(t *testing.T) {
	s := NewLinkStore()
	ctx := context.Background()

	created, _ := claimAndLink(t, s, "lt-1", "link-1", "ins_1", "same-hash")
	if err := s.Delete(ctx, created.ID, 1); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	redeemed, _ := s.PublicTokenRedeemed(ctx, "same-hash")
	if !redeemed {
		t.Error("hash forgotten after delete")
	}

	openSession(t, s, "lt-2", 1, time.Now().Add(time.Minute))
	_ = s.TransitionSession(ctx, "lt-2", 1, link.Redeemable, link.StateExchanging, time.Now())
	_, _, err := s.CreateLink(ctx, link.CreateLinkParams{ID: "link-2", UserID: 1, InstitutionID: "ins_1", PublicTokenHash: "same-hash", SessionToken: "lt-2"})
	if !errors.Is(err, link.ErrDuplicatePublicToken) {
		t.Errorf("CreateLink() error = %v, want %v", err, link.ErrDuplicatePublicToken)
	}
}

func TestDelete_OtherUser(t *testing.T) {
	s := NewLinkStore()
	created, _ := claimAndLink(t, s, "lt-1", "link-1", "ins_1", "h1")

	if err := s.Delete(context.Background(), created.ID, 2); !errors.Is(err, link.ErrLinkNotFound) {
		t.Errorf("Delete() error = %v, want %v", err, link.ErrLinkNotFound)
	}
}

func TestExpireSessions(t *testing.T) {
	s := NewLinkStore()
	ctx := context.Background()
	now := time.Now()

	openSession(t, s, "open", 1, now.Add(-time.Minute))
	openSession(t, s, "fresh", 1, now.Add(time.Hour))
	openSession(t, s, "stuck", 1, now.Add(time.Minute))
	_ = s.TransitionSession(ctx, "stuck", 1, link.Redeemable, link.StateExchanging, now)

	n, err := s.ExpireSessions(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ExpireSessions() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ExpireSessions() = %d, want 2", n)
	}

	for token, want := range map[string]link.State{"open": link.StateExpired, "fresh": link.StateTokenRequested, "stuck": link.StateFailed} {
		session, _ := s.GetSession(ctx, token)
		if session.State != want {
			t.Errorf("%s state = %s, want %s", token, session.State, want)
		}
	}
}
