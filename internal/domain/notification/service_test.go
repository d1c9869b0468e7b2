package notification

import (
	"context"
	"errors"
	"testing"
)

type mockRepository struct {
	UpsertDeviceTokenFunc       func(ctx context.Context, params RegisterDeviceParams) (*DeviceToken, error)
	GetActiveTokensByUserIDFunc func(ctx context.Context, userID int64) ([]*DeviceToken, error)
	DeactivateTokenFunc         func(ctx context.Context, token string) error
}

func (m *mockRepository) UpsertDeviceToken(ctx context.Context, params RegisterDeviceParams) (*DeviceToken, error) {
	return m.UpsertDeviceTokenFunc(ctx, params)
}

func (m *mockRepository) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*DeviceToken, error) {
	return m.GetActiveTokensByUserIDFunc(ctx, userID)
}

func (m *mockRepository) DeactivateToken(ctx context.Context, token string) error {
	return m.DeactivateTokenFunc(ctx, token)
}

type sentMessage struct {
	tokens []string
	title  string
	body   string
	data   map[string]string
}

type mockMessenger struct {
	sent []sentMessage
	err  error
}

func (m *mockMessenger) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	return m.SendMulticast(ctx, []string{token}, title, body, data)
}

func (m *mockMessenger) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	m.sent = append(m.sent, sentMessage{tokens: tokens, title: title, body: body, data: data})
	return m.err
}

var testTemplates = Templates{
	InstitutionLinked:   Text{Title: "Bank connected", Body: "%s is now linked."},
	InstitutionUnlinked: Text{Title: "Bank disconnected", Body: "%s was removed."},
}

func TestRegisterDevice_Validation(t *testing.T) {
	repo := &mockRepository{
		UpsertDeviceTokenFunc: func(ctx context.Context, params RegisterDeviceParams) (*DeviceToken, error) {
			return &DeviceToken{UserID: params.UserID, Token: params.Token, Platform: params.Platform, Active: true}, nil
		},
	}
	svc := NewService(repo, nil, testTemplates)

	tests := []struct {
		name    string
		params  RegisterDeviceParams
		wantErr error
	}{
		{"valid", RegisterDeviceParams{UserID: 1, Token: "fcm-1", Platform: "ios"}, nil},
		{"missing token", RegisterDeviceParams{UserID: 1, Platform: "ios"}, ErrInvalidToken},
		{"bad platform", RegisterDeviceParams{UserID: 1, Token: "fcm-1", Platform: "windows"}, ErrInvalidPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterDevice(context.Background(), tt.params)
			if tt.wantErr == nil && err != nil {
				t.Errorf("RegisterDevice() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("RegisterDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNotifyInstitutionLinked(t *testing.T) {
	repo := &mockRepository{
		GetActiveTokensByUserIDFunc: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return []*DeviceToken{{Token: "fcm-1"}, {Token: "fcm-2"}}, nil
		},
	}
	messenger := &mockMessenger{}
	svc := NewService(repo, messenger, testTemplates)

	svc.NotifyInstitutionLinked(context.Background(), 7, "First Platypus Bank")

	if len(messenger.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(messenger.sent))
	}
	msg := messenger.sent[0]
	if len(msg.tokens) != 2 {
		t.Errorf("sent to %d tokens, want 2", len(msg.tokens))
	}
	if msg.body != "First Platypus Bank is now linked." {
		t.Errorf("body = %q", msg.body)
	}
	if msg.data["event"] != "linked" {
		t.Errorf("data[event] = %q, want linked", msg.data["event"])
	}
}

func TestNotify_NoDevicesOrMessenger(t *testing.T) {
	repo := &mockRepository{
		GetActiveTokensByUserIDFunc: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return nil, nil
		},
	}
	messenger := &mockMessenger{}

	NewService(repo, messenger, testTemplates).NotifyInstitutionUnlinked(context.Background(), 7, "Bank")
	if len(messenger.sent) != 0 {
		t.Errorf("sent %d messages with no devices", len(messenger.sent))
	}

	// A nil messenger must not touch the repository.
	NewService(&mockRepository{}, nil, testTemplates).NotifyInstitutionLinked(context.Background(), 7, "Bank")
}

func TestNotify_ErrorsAreSwallowed(t *testing.T) {
	repo := &mockRepository{
		GetActiveTokensByUserIDFunc: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return nil, errors.New("db down")
		},
	}
	messenger := &mockMessenger{}

	NewService(repo, messenger, testTemplates).NotifyInstitutionLinked(context.Background(), 7, "Bank")
	if len(messenger.sent) != 0 {
		t.Error("message sent despite repository failure")
	}
}
