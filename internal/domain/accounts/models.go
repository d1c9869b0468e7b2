package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"horizon/internal/shared/errs"
)

// Status says how fresh an account entry is.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusStale       Status = "stale"
	StatusUnavailable Status = "unavailable"
)

// Failure reasons reported per institution.
const (
	ReasonTimeout           = "timeout"
	ReasonCredentialRevoked = "credential_revoked"
	ReasonCredential        = "credential_unreadable"
	ReasonProvider          = "provider_error"
	ReasonCanceled          = "canceled"
)

// Account is a read-through view of one provider account. Stale and
// unavailable entries are shown but never counted in totals.
type Account struct {
	ID               string           `json:"id"`
	LinkID           string           `json:"linkId"`
	InstitutionID    string           `json:"institutionId"`
	InstitutionName  string           `json:"institutionName"`
	Name             string           `json:"name"`
	Mask             string           `json:"mask,omitempty"`
	Type             string           `json:"type,omitempty"`
	Subtype          string           `json:"subtype,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	CurrentBalance   decimal.Decimal  `json:"currentBalance"`
	AvailableBalance *decimal.Decimal `json:"availableBalance,omitempty"`
	Status           Status           `json:"status"`
	AsOf             *time.Time       `json:"asOf,omitempty"`
	Error            string           `json:"error,omitempty"`
}

type Transaction struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"accountId"`
	LinkID          string          `json:"linkId"`
	InstitutionName string          `json:"institutionName"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	Date            time.Time       `json:"date"`
	Pending         bool            `json:"pending"`
}

// InstitutionFailure describes one institution that could not be refreshed.
type InstitutionFailure struct {
	LinkID          string `json:"linkId"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
	Reason          string `json:"reason"`
	Err             error  `json:"-"`
}

// InstitutionAccounts is the settled outcome for one institution link.
type InstitutionAccounts struct {
	LinkID          string              `json:"linkId"`
	InstitutionID   string              `json:"institutionId"`
	InstitutionName string              `json:"institutionName"`
	Accounts        []Account           `json:"accounts"`
	Failure         *InstitutionFailure `json:"failure,omitempty"`

	index int
}

// Result is the merged view across all of a user's links.
type Result struct {
	Accounts            []Account            `json:"accounts"`
	TotalCurrentBalance decimal.Decimal      `json:"totalCurrentBalance"`
	TotalBanks          int                  `json:"totalBanks"`
	Failures            []InstitutionFailure `json:"failures,omitempty"`
}

// PartialError returns a *PartialAggregationError when some institutions
// failed, or nil.
func (r *Result) PartialError() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &PartialAggregationError{Failures: r.Failures}
}

// PartialAggregationError lists institutions that were skipped.
type PartialAggregationError struct {
	Failures []InstitutionFailure
}

func (e *PartialAggregationError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = fmt.Sprintf("%s (%s)", f.InstitutionName, f.Reason)
	}
	return fmt.Sprintf("could not refresh %d institution(s): %s", len(e.Failures), strings.Join(names, ", "))
}

func (e *PartialAggregationError) Is(target error) bool {
	return target == errs.ErrPartialAggregation
}

// TransactionsResult holds recent transactions across institutions.
type TransactionsResult struct {
	Transactions []Transaction        `json:"transactions"`
	Failures     []InstitutionFailure `json:"failures,omitempty"`
}

// sumAvailable totals current balances of fresh accounts only.
func sumAvailable(accounts []Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		if a.Status == StatusAvailable {
			total = total.Add(a.CurrentBalance)
		}
	}
	return total
}
