// Package bankapi is the HTTP client for the bank data provider. Access is
// authorized by an opaque per-connection token obtained during the user's
// bank enrollment; a 401 or 403 means the grant expired and the user must
// reconnect.
package bankapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrExpiredGrant is returned when the provider rejects the access token.
// Callers fall back to cached data and flag the account for reconnection.
var ErrExpiredGrant = errors.New("bank access grant expired")

type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ ClientInterface = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Account is a bank or credit account as the provider reports it.
type Account struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`    // "depository" or "credit"
	Subtype     string      `json:"subtype"` // "checking", "savings", "credit_card", ...
	Currency    string      `json:"currency"`
	LastFour    string      `json:"last_four"`
	Status      string      `json:"status"`
	Institution Institution `json:"institution"`
}

type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsCredit reports whether the account carries debt rather than assets.
func (a *Account) IsCredit() bool {
	return a.Type == "credit"
}

// Balance carries the provider's balance figures. The API returns amounts
// as decimal strings.
type Balance struct {
	AccountID       string `json:"account_id"`
	AvailableString string `json:"available"`
	LedgerString    string `json:"ledger"`
}

// Available returns the available balance as a float64.
func (b *Balance) Available() (float64, error) {
	return parseAmount(b.AvailableString)
}

// Ledger returns the ledger (current) balance as a float64.
func (b *Balance) Ledger() (float64, error) {
	return parseAmount(b.LedgerString)
}

// Transaction is one posted or pending transaction.
type Transaction struct {
	ID           string             `json:"id"`
	AccountID    string             `json:"account_id"`
	Date         string             `json:"date"` // YYYY-MM-DD
	Description  string             `json:"description"`
	AmountString string             `json:"amount"`
	Status       string             `json:"status"`
	Details      TransactionDetails `json:"details"`
}

type TransactionDetails struct {
	Category     string        `json:"category"`
	Counterparty *Counterparty `json:"counterparty"`
}

type Counterparty struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Amount returns the transaction amount as a float64. Outflows are
// negative in the provider's convention.
func (t *Transaction) Amount() (float64, error) {
	return parseAmount(t.AmountString)
}

// ParsedDate returns the transaction date.
func (t *Transaction) ParsedDate() (time.Time, error) {
	d, err := time.Parse("2006-01-02", t.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse transaction date '%s': %w", t.Date, err)
	}
	return d, nil
}

// MerchantName returns the counterparty name when the provider supplies
// one, else empty.
func (t *Transaction) MerchantName() string {
	if t.Details.Counterparty != nil {
		return t.Details.Counterparty.Name
	}
	return ""
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", s, err)
	}
	return v, nil
}

// ListAccounts returns all accounts under the access token's enrollment.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, accessToken, "/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetAccount returns one account.
func (c *Client) GetAccount(ctx context.Context, accessToken, accountID string) (*Account, error) {
	var account Account
	path := "/accounts/" + url.PathEscape(accountID)
	if err := c.get(ctx, accessToken, path, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetBalances returns the live balances of one account.
func (c *Client) GetBalances(ctx context.Context, accessToken, accountID string) (*Balance, error) {
	var balance Balance
	path := "/accounts/" + url.PathEscape(accountID) + "/balances"
	if err := c.get(ctx, accessToken, path, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetTransactions returns the transaction history of one account, newest
// first as the provider orders it.
func (c *Client) GetTransactions(ctx context.Context, accessToken, accountID string) ([]Transaction, error) {
	var transactions []Transaction
	path := "/accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := c.get(ctx, accessToken, path, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// The provider authenticates with the access token as basic-auth
	// username and an empty password.
	req.SetBasicAuth(accessToken, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bank provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrExpiredGrant
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bank provider returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
