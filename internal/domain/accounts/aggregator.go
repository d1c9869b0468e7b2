// Package accounts merges balances and transactions across a user's linked
// institutions.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"horizon/internal/domain/link"
	"horizon/internal/infrastructure/provider"
	"horizon/internal/shared/errs"
)

var (
	aggTracer        = otel.Tracer("horizon/aggregation")
	aggMeter         = otel.Meter("horizon/aggregation")
	fetchDuration, _ = aggMeter.Float64Histogram("aggregation.fetch.duration", metric.WithDescription("Per-institution fetch duration in seconds"), metric.WithUnit("s"))
	fetchFailures, _ = aggMeter.Int64Counter("aggregation.fetch.failures", metric.WithDescription("Per-institution fetch failures by reason"))
)

const (
	DefaultFetchTimeout   = 10 * time.Second
	DefaultMaxConcurrency = 8
	DefaultLookbackDays   = 30
)

// LinkLister is the part of the link store the aggregator reads.
type LinkLister interface {
	ListByUserID(ctx context.Context, userID int64) ([]*link.InstitutionLink, error)
}

// Decrypter opens stored provider credentials.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type Options struct {
	// FetchTimeout bounds each institution independently.
	FetchTimeout   time.Duration
	MaxConcurrency int
	LookbackDays   int
}

// Aggregator fans out one fetch per institution link and merges the results.
type Aggregator struct {
	links     LinkLister
	provider  provider.Client
	creds     Decrypter
	snapshots *SnapshotCache
	opts      Options
	now       func() time.Time
}

func NewAggregator(links LinkLister, client provider.Client, creds Decrypter, snapshots *SnapshotCache, opts Options) *Aggregator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if snapshots == nil {
		snapshots = NewSnapshotCache(0)
	}
	return &Aggregator{
		links:     links,
		provider:  client,
		creds:     creds,
		snapshots: snapshots,
		opts:      opts,
		now:       time.Now,
	}
}

// GetAccountsForUser returns accounts from every linked institution, ordered
// by link creation and then provider order. Institutions that fail are
// represented by stale or unavailable entries and listed in Result.Failures;
// the error is nil in that case. When every institution fails the result is
// still returned along with a *errs.ProviderError.
func (a *Aggregator) GetAccountsForUser(ctx context.Context, userID int64) (*Result, error) {
	ctx, span := aggTracer.Start(ctx, "accounts.GetAccountsForUser")
	defer span.End()

	links, err := a.ownedLinks(ctx, userID)
	if err != nil {
		return nil, err
	}

	settled := make([]InstitutionAccounts, len(links))
	for ia := range a.stream(ctx, links) {
		settled[ia.index] = ia
	}

	res := &Result{Accounts: []Account{}, TotalBanks: len(links)}
	for _, ia := range settled {
		res.Accounts = append(res.Accounts, ia.Accounts...)
		if ia.Failure != nil {
			res.Failures = append(res.Failures, *ia.Failure)
		}
	}
	res.TotalCurrentBalance = sumAvailable(res.Accounts)

	span.SetAttributes(
		attribute.Int("aggregation.institutions", len(links)),
		attribute.Int("aggregation.failures", len(res.Failures)),
	)

	if len(links) > 0 && len(res.Failures) == len(links) {
		return res, &errs.ProviderError{Op: "accounts", Err: res.PartialError()}
	}
	return res, nil
}

// StreamAccountsForUser emits each institution's outcome as soon as it
// settles. The channel is closed once every institution has settled or timed
// out. It is buffered for all institutions, so a consumer may stop reading
// early without leaking the fetches.
func (a *Aggregator) StreamAccountsForUser(ctx context.Context, userID int64) (<-chan InstitutionAccounts, error) {
	links, err := a.ownedLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.stream(ctx, links), nil
}

func (a *Aggregator) stream(ctx context.Context, links []*link.InstitutionLink) <-chan InstitutionAccounts {
	out := make(chan InstitutionAccounts, len(links))

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(a.opts.MaxConcurrency)
		for i, l := range links {
			g.Go(func() error {
				ia := a.fetchInstitution(ctx, l)
				ia.index = i
				out <- ia
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (a *Aggregator) fetchInstitution(ctx context.Context, l *link.InstitutionLink) InstitutionAccounts {
	ia := InstitutionAccounts{
		LinkID:          l.ID,
		InstitutionID:   l.InstitutionID,
		InstitutionName: l.InstitutionName,
	}

	start := time.Now()
	raw, err := withCredential(ctx, a, l, func(ctx context.Context, accessToken string) ([]provider.Account, error) {
		return a.provider.GetAccounts(ctx, accessToken)
	})
	fetchDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", "accounts")))

	if err != nil {
		failure := a.failure(ctx, l, err)
		ia.Failure = &failure
		ia.Accounts = a.fallback(l, failure)
		return ia
	}

	now := a.now()
	accounts := make([]Account, 0, len(raw))
	for _, p := range raw {
		accounts = append(accounts, Account{
			ID:               p.ID,
			LinkID:           l.ID,
			InstitutionID:    l.InstitutionID,
			InstitutionName:  l.InstitutionName,
			Name:             p.Name,
			Mask:             p.Mask,
			Type:             p.Type,
			Subtype:          p.Subtype,
			Currency:         p.Currency,
			CurrentBalance:   p.Current,
			AvailableBalance: p.Available,
			Status:           StatusAvailable,
			AsOf:             &now,
		})
	}
	a.snapshots.Put(l.ID, accounts, now)
	ia.Accounts = accounts
	return ia
}

// fallback returns last-known accounts marked stale, or a single placeholder
// marked unavailable.
func (a *Aggregator) fallback(l *link.InstitutionLink, f InstitutionFailure) []Account {
	if cached, at, ok := a.snapshots.Get(l.ID, a.now()); ok {
		for i := range cached {
			asOf := at
			cached[i].Status = StatusStale
			cached[i].AsOf = &asOf
			cached[i].Error = f.Reason
		}
		return cached
	}

	return []Account{{
		ID:              "unavailable:" + l.ID,
		LinkID:          l.ID,
		InstitutionID:   l.InstitutionID,
		InstitutionName: l.InstitutionName,
		Name:            l.InstitutionName,
		CurrentBalance:  decimal.Zero,
		Status:          StatusUnavailable,
		Error:           f.Reason,
	}}
}

// RecentTransactions returns the newest transactions across all institutions
// within the lookback window. Failed institutions are listed, never fatal.
func (a *Aggregator) RecentTransactions(ctx context.Context, userID int64, limit int) (*TransactionsResult, error) {
	ctx, span := aggTracer.Start(ctx, "accounts.RecentTransactions")
	defer span.End()

	links, err := a.ownedLinks(ctx, userID)
	if err != nil {
		return nil, err
	}

	end := a.now()
	start := end.AddDate(0, 0, -a.opts.LookbackDays)

	type settled struct {
		txs     []Transaction
		failure *InstitutionFailure
	}
	results := make([]settled, len(links))

	var g errgroup.Group
	g.SetLimit(a.opts.MaxConcurrency)
	for i, l := range links {
		g.Go(func() error {
			raw, err := withCredential(ctx, a, l, func(ctx context.Context, accessToken string) ([]provider.Transaction, error) {
				return a.provider.GetTransactions(ctx, accessToken, start, end)
			})
			if err != nil {
				f := a.failure(ctx, l, err)
				results[i].failure = &f
				return nil
			}
			txs := make([]Transaction, 0, len(raw))
			for _, p := range raw {
				txs = append(txs, Transaction{
					ID:              p.ID,
					AccountID:       p.AccountID,
					LinkID:          l.ID,
					InstitutionName: l.InstitutionName,
					Description:     p.Name,
					Amount:          p.Amount,
					Currency:        p.Currency,
					Date:            p.Date,
					Pending:         p.Pending,
				})
			}
			results[i].txs = txs
			return nil
		})
	}
	_ = g.Wait()

	res := &TransactionsResult{Transactions: []Transaction{}}
	for _, r := range results {
		res.Transactions = append(res.Transactions, r.txs...)
		if r.failure != nil {
			res.Failures = append(res.Failures, *r.failure)
		}
	}

	sort.SliceStable(res.Transactions, func(i, j int) bool {
		return res.Transactions[i].Date.After(res.Transactions[j].Date)
	})
	if limit > 0 && len(res.Transactions) > limit {
		res.Transactions = res.Transactions[:limit]
	}
	return res, nil
}

// ownedLinks lists the user's links and drops any not owned by the user.
func (a *Aggregator) ownedLinks(ctx context.Context, userID int64) ([]*link.InstitutionLink, error) {
	all, err := a.links.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list institution links: %w", err)
	}

	links := make([]*link.InstitutionLink, 0, len(all))
	for _, l := range all {
		if l.UserID != userID {
			log.Printf("User %d: dropping link %s owned by user %d", userID, l.ID, l.UserID)
			continue
		}
		links = append(links, l)
	}
	return links, nil
}

func (a *Aggregator) failure(ctx context.Context, l *link.InstitutionLink, err error) InstitutionFailure {
	reason := ReasonProvider
	switch {
	case errors.Is(err, errCredential):
		reason = ReasonCredential
	case errors.Is(err, provider.ErrCredentialRevoked), errors.Is(err, provider.ErrInvalidToken):
		reason = ReasonCredentialRevoked
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = ReasonCanceled
	}

	fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	log.Printf("User %d: %s unavailable (%s): %v", l.UserID, l.InstitutionName, reason, err)

	return InstitutionFailure{
		LinkID:          l.ID,
		InstitutionID:   l.InstitutionID,
		InstitutionName: l.InstitutionName,
		Reason:          reason,
		Err:             &errs.ProviderError{Op: "fetch", Institution: l.InstitutionName, Err: err},
	}
}

var errCredential = errors.New("stored credential unreadable")

// withCredential decrypts the link's credential and runs call under the
// per-institution timeout. It returns when the timeout fires even if call
// does not honor cancellation.
func withCredential[T any](ctx context.Context, a *Aggregator, l *link.InstitutionLink, call func(ctx context.Context, accessToken string) (T, error)) (T, error) {
	var zero T

	accessToken, err := a.creds.Decrypt(l.EncryptedCredential)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", errCredential, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := call(ctx, accessToken)
		done <- outcome[T]{v, err}
	}()

	return await(ctx, done)
}

type outcome[T any] struct {
	v   T
	err error
}

// await returns the call's outcome, or ctx.Err() once ctx is done. An outcome
// that is already waiting when ctx ends still wins.
func await[T any](ctx context.Context, done <-chan outcome[T]) (T, error) {
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		select {
		case o := <-done:
			return o.v, o.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

// Forget drops cached balances of an unlinked institution.
func (a *Aggregator) Forget(linkID string) {
	a.snapshots.Forget(linkID)
}
