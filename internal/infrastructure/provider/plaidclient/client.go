// Package plaidclient adapts the Plaid API to provider.Client.
package plaidclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/plaid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"horizon/internal/infrastructure/provider"
)

const dateLayout = "2006-01-02"

// Config holds the credentials and link options for the Plaid API.
type Config struct {
	ClientID     string
	Secret       string
	Environment  string
	ClientName   string
	Language     string
	CountryCodes []string
	Products     []string
	Timeout      time.Duration
}

// Client implements provider.Client on top of plaid-go.
type Client struct {
	api          *plaid.APIClient
	clientName   string
	language     string
	countryCodes []plaid.CountryCode
	products     []plaid.Products
}

var _ provider.Client = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	env, err := environment(cfg.Environment)
	if err != nil {
		return nil, err
	}

	countryCodes := make([]plaid.CountryCode, 0, len(cfg.CountryCodes))
	for _, cc := range cfg.CountryCodes {
		code, err := plaid.NewCountryCodeFromValue(cc)
		if err != nil {
			return nil, fmt.Errorf("invalid country code %q: %w", cc, err)
		}
		countryCodes = append(countryCodes, *code)
	}

	products := make([]plaid.Products, 0, len(cfg.Products))
	for _, p := range cfg.Products {
		product, err := plaid.NewProductsFromValue(p)
		if err != nil {
			return nil, fmt.Errorf("invalid product %q: %w", p, err)
		}
		products = append(products, *product)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	configuration.UseEnvironment(env)
	configuration.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Client{
		api:          plaid.NewAPIClient(configuration),
		clientName:   cfg.ClientName,
		language:     cfg.Language,
		countryCodes: countryCodes,
		products:     products,
	}, nil
}

func environment(name string) (plaid.Environment, error) {
	switch name {
	case "", "sandbox":
		return plaid.Sandbox, nil
	case "production":
		return plaid.Production, nil
	default:
		return "", fmt.Errorf("unsupported PLAID_ENV %q", name)
	}
}

func (c *Client) CreateLinkToken(ctx context.Context, req provider.LinkTokenRequest) (*provider.LinkToken, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: req.ClientUserID}
	request := plaid.NewLinkTokenCreateRequest(c.clientName, c.language, c.countryCodes, user)
	request.SetProducts(c.products)

	resp, httpResp, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return nil, classify(httpResp, err)
	}

	return &provider.LinkToken{
		Token:     resp.GetLinkToken(),
		ExpiresAt: resp.GetExpiration(),
	}, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*provider.ExchangeResult, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)

	resp, httpResp, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return nil, classify(httpResp, err)
	}

	return &provider.ExchangeResult{
		AccessToken: resp.GetAccessToken(),
		ItemID:      resp.GetItemId(),
	}, nil
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]provider.Account, error) {
	request := plaid.NewAccountsBalanceGetRequest(accessToken)

	resp, httpResp, err := c.api.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*request).Execute()
	if err != nil {
		return nil, classify(httpResp, err)
	}

	accounts := make([]provider.Account, 0, len(resp.GetAccounts()))
	for _, a := range resp.GetAccounts() {
		balances := a.GetBalances()
		account := provider.Account{
			ID:       a.GetAccountId(),
			Name:     a.GetName(),
			Mask:     a.GetMask(),
			Type:     string(a.GetType()),
			Subtype:  string(a.GetSubtype()),
			Currency: balances.GetIsoCurrencyCode(),
			Current:  amount(float64(balances.GetCurrent())),
		}
		if v, ok := balances.GetAvailableOk(); ok && v != nil {
			available := amount(float64(*v))
			account.Available = &available
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (c *Client) GetTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]provider.Transaction, error) {
	request := plaid.NewTransactionsGetRequest(accessToken, start.Format(dateLayout), end.Format(dateLayout))

	resp, httpResp, err := c.api.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	if err != nil {
		return nil, classify(httpResp, err)
	}

	txs := make([]provider.Transaction, 0, len(resp.GetTransactions()))
	for _, t := range resp.GetTransactions() {
		date, err := time.Parse(dateLayout, t.GetDate())
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction date %q: %w", t.GetDate(), err)
		}
		txs = append(txs, provider.Transaction{
			ID:        t.GetTransactionId(),
			AccountID: t.GetAccountId(),
			Name:      t.GetName(),
			Amount:    amount(float64(t.GetAmount())),
			Currency:  t.GetIsoCurrencyCode(),
			Date:      date,
			Pending:   t.GetPending(),
		})
	}
	return txs, nil
}

func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	request := plaid.NewItemRemoveRequest(accessToken)

	_, httpResp, err := c.api.PlaidApi.ItemRemove(ctx).ItemRemoveRequest(*request).Execute()
	if err != nil {
		return classify(httpResp, err)
	}
	return nil
}

// amount rounds to cents to drop binary float noise from the API model.
func amount(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// errorBody is the JSON error envelope returned by the Plaid API.
type errorBody struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// classify maps Plaid error codes onto the provider error kinds.
func classify(httpResp *http.Response, err error) error {
	var body errorBody
	var apiErr interface{ Body() []byte }
	if errors.As(err, &apiErr) {
		_ = json.Unmarshal(apiErr.Body(), &body)
	}

	switch body.ErrorCode {
	case "INVALID_PUBLIC_TOKEN", "INVALID_ACCESS_TOKEN", "INVALID_LINK_TOKEN":
		return fmt.Errorf("%s: %w", body.ErrorMessage, provider.ErrInvalidToken)
	case "ITEM_LOGIN_REQUIRED", "ITEM_NOT_FOUND", "ACCESS_NOT_GRANTED", "USER_PERMISSION_REVOKED":
		return fmt.Errorf("%s: %w", body.ErrorMessage, provider.ErrCredentialRevoked)
	}

	if httpResp != nil {
		return fmt.Errorf("plaid returned status %d (%s): %w", httpResp.StatusCode, body.ErrorCode, err)
	}
	return fmt.Errorf("plaid request failed: %w", err)
}
