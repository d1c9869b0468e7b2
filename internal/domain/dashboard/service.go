// Package dashboard assembles the home view: greeting, total balance, banks
// and recent transactions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"horizon/internal/domain/accounts"
	"horizon/internal/domain/user"
	"horizon/internal/shared/errs"
)

const (
	guestName = "Guest"
	subtext   = "Access and manage your account and transactions efficiently."
)

// Identity resolves the signed-in user.
type Identity interface {
	CurrentUser(ctx context.Context) (*user.User, error)
}

// Aggregation is the part of the aggregator the dashboard reads.
type Aggregation interface {
	GetAccountsForUser(ctx context.Context, userID int64) (*accounts.Result, error)
	RecentTransactions(ctx context.Context, userID int64, limit int) (*accounts.TransactionsResult, error)
}

type Header struct {
	Title   string `json:"title"`
	Name    string `json:"name"`
	Subtext string `json:"subtext"`
}

type Footer struct {
	Initial   string `json:"initial"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
}

// Bank summarizes one linked institution for the sidebar.
type Bank struct {
	LinkID          string          `json:"linkId"`
	InstitutionName string          `json:"institutionName"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	Accounts        int             `json:"accounts"`
	Status          accounts.Status `json:"status"`
}

type View struct {
	Header                  Header                 `json:"header"`
	Footer                  Footer                 `json:"footer"`
	TotalBanks              int                    `json:"totalBanks"`
	TotalCurrentBalance     decimal.Decimal        `json:"totalCurrentBalance"`
	TotalCurrentBalanceText string                 `json:"totalCurrentBalanceText"`
	Accounts                []accounts.Account     `json:"accounts"`
	Banks                   []Bank                 `json:"banks"`
	RecentTransactions      []accounts.Transaction `json:"recentTransactions"`
	Notices                 []string               `json:"notices,omitempty"`
}

type Service struct {
	identity    Identity
	aggregation Aggregation
	recentLimit int
}

func NewService(identity Identity, aggregation Aggregation, recentLimit int) *Service {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Service{identity: identity, aggregation: aggregation, recentLimit: recentLimit}
}

// Build returns errs.ErrAuth when nobody is signed in. Institution failures
// become notices; the view is still returned.
func (s *Service) Build(ctx context.Context) (*View, error) {
	u, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.ErrAuth
	}

	view := &View{
		Header: Greeting(u),
		Footer: Footer{
			Initial:   u.Initial(),
			FirstName: u.FirstName,
			Email:     u.Email,
		},
		Accounts:           []accounts.Account{},
		Banks:              []Bank{},
		RecentTransactions: []accounts.Transaction{},
	}

	res, err := s.aggregation.GetAccountsForUser(ctx, u.ID)
	if err != nil && res == nil {
		return nil, err
	}
	if err != nil {
		// Every institution failed; still render what we know.
		log.Printf("User %d: dashboard balances unavailable: %v", u.ID, err)
	}

	view.TotalBanks = res.TotalBanks
	view.TotalCurrentBalance = res.TotalCurrentBalance
	view.TotalCurrentBalanceText = FormatUSD(res.TotalCurrentBalance)
	view.Accounts = res.Accounts
	view.Banks = summarizeBanks(res.Accounts)
	for _, f := range res.Failures {
		view.Notices = append(view.Notices, notice(f))
	}

	txs, err := s.aggregation.RecentTransactions(ctx, u.ID, s.recentLimit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Printf("User %d: recent transactions unavailable: %v", u.ID, err)
		view.Notices = append(view.Notices, "Recent transactions are temporarily unavailable.")
	} else {
		view.RecentTransactions = txs.Transactions
	}

	return view, nil
}

// Greeting builds the page header for u, falling back to "Guest".
func Greeting(u *user.User) Header {
	name := guestName
	if u != nil && strings.TrimSpace(u.FirstName) != "" {
		name = strings.TrimSpace(u.FirstName)
	}
	return Header{Title: "Welcome,", Name: name, Subtext: subtext}
}

// FormatUSD renders an amount the way the balance counter shows it:
// "$" prefix, thousands separators and two decimals.
func FormatUSD(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}
	f, _ := rounded.Float64()
	return sign + "$" + humanize.FormatFloat("#,###.##", f)
}

// summarizeBanks groups accounts by link in first-seen order.
func summarizeBanks(accts []accounts.Account) []Bank {
	banks := []Bank{}
	index := map[string]int{}
	for _, a := range accts {
		i, ok := index[a.LinkID]
		if !ok {
			i = len(banks)
			index[a.LinkID] = i
			banks = append(banks, Bank{
				LinkID:          a.LinkID,
				InstitutionName: a.InstitutionName,
				CurrentBalance:  decimal.Zero,
				Status:          a.Status,
			})
		}
		b := &banks[i]
		if a.Status == accounts.StatusUnavailable {
			continue
		}
		b.Accounts++
		if a.Status == accounts.StatusAvailable {
			b.CurrentBalance = b.CurrentBalance.Add(a.CurrentBalance)
		}
	}
	return banks
}

func notice(f accounts.InstitutionFailure) string {
	switch f.Reason {
	case accounts.ReasonCredentialRevoked:
		return fmt.Sprintf("%s needs to be reconnected. Open Connect bank to sign in again.", f.InstitutionName)
	case accounts.ReasonTimeout:
		return fmt.Sprintf("%s is taking too long to respond. Balances shown may be out of date.", f.InstitutionName)
	default:
		return fmt.Sprintf("%s is temporarily unavailable. Balances shown may be out of date.", f.InstitutionName)
	}
}
