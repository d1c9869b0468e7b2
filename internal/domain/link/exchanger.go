package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"horizon/internal/infrastructure/provider"
	"horizon/internal/shared/errs"
)

const providerCleanupTimeout = 10 * time.Second

// Cipher protects provider credentials at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Notifier is told about link lifecycle events. Implementations must not block
// for long and must not fail the caller.
type Notifier interface {
	NotifyInstitutionLinked(ctx context.Context, userID int64, institutionName string)
	NotifyInstitutionUnlinked(ctx context.Context, userID int64, institutionName string)
}

// Forgetter drops cached state held for a removed link.
type Forgetter interface {
	Forget(linkID string)
}

// Exchanger turns a public token from the link widget into a stored,
// encrypted institution link.
type Exchanger struct {
	repo     Repository
	provider provider.Client
	cipher   Cipher
	notifier Notifier
	cache    Forgetter
	now      func() time.Time
}

// NewExchanger creates an exchanger. notifier may be nil.
func NewExchanger(repo Repository, client provider.Client, cipher Cipher, notifier Notifier) *Exchanger {
	return &Exchanger{
		repo:     repo,
		provider: client,
		cipher:   cipher,
		notifier: notifier,
		now:      time.Now,
	}
}

// SetCache registers a cache that is told about links this exchanger removes.
func (e *Exchanger) SetCache(cache Forgetter) {
	e.cache = cache
}

// ExchangePublicToken redeems the public token for userID. The link token must
// have been issued to the same user, must be unexpired and must not have been
// redeemed before; otherwise errs.ErrInvalidToken is returned.
func (e *Exchanger) ExchangePublicToken(ctx context.Context, userID int64, req ExchangeRequest) (*InstitutionLink, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}

	hash := HashPublicToken(req.PublicToken)
	redeemed, err := e.repo.PublicTokenRedeemed(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check public token: %w", err)
	}
	if redeemed {
		log.Printf("User %d: public token reuse rejected", userID)
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidToken, ErrDuplicatePublicToken)
	}

	// Claiming the session is the single point that makes a link token
	// single-use and user-scoped.
	err = e.repo.TransitionSession(ctx, req.LinkToken, userID, Redeemable, StateExchanging, e.now())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			log.Printf("User %d: link token not redeemable", userID)
			return nil, fmt.Errorf("%w: link session not redeemable", errs.ErrInvalidToken)
		}
		return nil, fmt.Errorf("failed to claim link session: %w", err)
	}

	result, err := e.provider.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		e.failSession(ctx, req.LinkToken, "exchange failed")
		if errors.Is(err, provider.ErrInvalidToken) {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
		}
		return nil, &errs.ProviderError{Op: "exchange", Institution: req.Institution.Name, Err: err}
	}

	if result.LinkToken != "" && result.LinkToken != req.LinkToken {
		log.Printf("User %d: public token was issued for a different link session", userID)
		e.failSession(ctx, req.LinkToken, "link token mismatch")
		e.removeItem(ctx, result.AccessToken)
		return nil, fmt.Errorf("%w: public token does not belong to this link session", errs.ErrInvalidToken)
	}

	// The widget callback only names the institution for providers that do
	// not report it on exchange.
	institution := Institution{ID: result.Institution.ID, Name: result.Institution.Name}
	if institution.ID == "" {
		institution = req.Institution
	} else if institution.Name == "" && req.Institution.ID == institution.ID {
		institution.Name = req.Institution.Name
	}
	if institution.ID == "" {
		institution.ID = "item:" + result.ItemID
	}
	if institution.Name == "" {
		institution.Name = institution.ID
	}

	encrypted, err := e.cipher.Encrypt(result.AccessToken)
	if err != nil {
		e.failSession(ctx, req.LinkToken, "credential encryption failed")
		e.removeItem(ctx, result.AccessToken)
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	created, replaced, err := e.repo.CreateLink(ctx, CreateLinkParams{
		ID:                  uuid.NewString(),
		UserID:              userID,
		InstitutionID:       institution.ID,
		InstitutionName:     institution.Name,
		ItemID:              result.ItemID,
		EncryptedCredential: encrypted,
		PublicTokenHash:     hash,
		SessionToken:        req.LinkToken,
	})
	if err != nil {
		e.failSession(ctx, req.LinkToken, "link could not be stored")
		e.removeItem(ctx, result.AccessToken)
		if errors.Is(err, ErrDuplicatePublicToken) {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("failed to store institution link: %w", err)
	}

	if replaced != nil {
		log.Printf("User %d: replaced link %s to %s", userID, replaced.ID, replaced.InstitutionName)
		e.forget(replaced.ID)
		e.removeStoredItem(ctx, replaced)
	}

	log.Printf("User %d: linked %s (link %s)", userID, created.InstitutionName, created.ID)
	if e.notifier != nil {
		e.notifier.NotifyInstitutionLinked(context.WithoutCancel(ctx), userID, created.InstitutionName)
	}

	return created, nil
}

// ListLinks returns the user's institution links, oldest first.
func (e *Exchanger) ListLinks(ctx context.Context, userID int64) ([]*InstitutionLink, error) {
	links, err := e.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list institution links: %w", err)
	}
	return links, nil
}

// RevokeLink deletes the user's link and releases the credential at the provider.
func (e *Exchanger) RevokeLink(ctx context.Context, userID int64, linkID string) error {
	l, err := e.repo.GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if l.UserID != userID {
		return ErrLinkNotFound
	}

	if err := e.repo.Delete(ctx, linkID, userID); err != nil {
		return err
	}

	log.Printf("User %d: unlinked %s (link %s)", userID, l.InstitutionName, l.ID)
	e.forget(l.ID)
	e.removeStoredItem(ctx, l)
	if e.notifier != nil {
		e.notifier.NotifyInstitutionUnlinked(context.WithoutCancel(ctx), userID, l.InstitutionName)
	}
	return nil
}

func (e *Exchanger) forget(linkID string) {
	if e.cache != nil {
		e.cache.Forget(linkID)
	}
}

func (e *Exchanger) failSession(ctx context.Context, token, reason string) {
	if err := e.repo.FailSession(context.WithoutCancel(ctx), token, reason); err != nil {
		log.Printf("Failed to mark link session failed: %v", err)
	}
}

func (e *Exchanger) removeStoredItem(ctx context.Context, l *InstitutionLink) {
	accessToken, err := e.cipher.Decrypt(l.EncryptedCredential)
	if err != nil {
		log.Printf("Link %s: cannot decrypt credential for provider removal: %v", l.ID, err)
		return
	}
	e.removeItem(ctx, accessToken)
}

// removeItem releases a credential at the provider. Best effort.
func (e *Exchanger) removeItem(ctx context.Context, accessToken string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), providerCleanupTimeout)
	defer cancel()
	if err := e.provider.RemoveItem(ctx, accessToken); err != nil {
		log.Printf("Provider item removal failed: %v", err)
	}
}
