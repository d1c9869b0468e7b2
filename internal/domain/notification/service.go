package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Text is a push notification template. Body may contain one %s for the
// institution name.
type Text struct {
	Title string
	Body  string
}

// Templates holds the texts sent on link lifecycle events.
type Templates struct {
	InstitutionLinked   Text
	InstitutionUnlinked Text
}

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	messenger Messenger
	templates Templates
}

// NewService creates a new notification service. messenger may be nil, in
// which case device tokens are still stored but nothing is sent.
func NewService(repo Repository, messenger Messenger, templates Templates) *Service {
	return &Service{repo: repo, messenger: messenger, templates: templates}
}

// RegisterDevice registers a device token for the authenticated user.
// If the token already belongs to another user, it is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params RegisterDeviceParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// NotifyInstitutionLinked tells the user's devices a bank was connected.
func (s *Service) NotifyInstitutionLinked(ctx context.Context, userID int64, institutionName string) {
	s.sendToUser(ctx, userID, s.templates.InstitutionLinked, institutionName, "linked")
}

// NotifyInstitutionUnlinked tells the user's devices a bank was disconnected.
func (s *Service) NotifyInstitutionUnlinked(ctx context.Context, userID int64, institutionName string) {
	s.sendToUser(ctx, userID, s.templates.InstitutionUnlinked, institutionName, "unlinked")
}

// DeactivateToken is handed to the messenger for tokens FCM rejects.
func (s *Service) DeactivateToken(ctx context.Context, token string) error {
	return s.repo.DeactivateToken(ctx, token)
}

// sendToUser never fails the caller: notification problems are logged.
func (s *Service) sendToUser(ctx context.Context, userID int64, text Text, institutionName, event string) {
	if s.messenger == nil || text.Title == "" {
		return
	}

	tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
	if err != nil {
		log.Printf("Error loading device tokens for user %d: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	body := text.Body
	if strings.Contains(body, "%s") {
		body = fmt.Sprintf(text.Body, institutionName)
	}
	data := map[string]string{"route": "accounts", "event": event}

	if err := s.messenger.SendMulticast(ctx, tokenStrings, text.Title, body, data); err != nil {
		log.Printf("Error sending notification to user %d: %v", userID, err)
	}
}
