// Package dashboard merges bank, brokerage and crypto account data into the
// single unified view the UI renders.
package dashboard

import (
	"context"
	"time"
)

// Error classes for a provider side of the merge. The dashboard never hard
// fails; these tell the UI why a side is missing or degraded.
const (
	ErrClassNotConnected = "not_connected"
	ErrClassAuthFailed   = "auth_failed"
	ErrClassFetchFailed  = "fetch_failed"
)

// ConnectedAccount is the unified, provider-agnostic account shape.
// BalanceAmount follows the net-worth sign convention: assets are
// non-negative, credit debt is negative. AmountOwed carries the positive
// display value for credit accounts.
type ConnectedAccount struct {
	ID                string    `json:"id"`
	Provider          string    `json:"provider"`    // "bank", "brokerage" or "crypto"
	AccountType       string    `json:"accountType"` // "bank", "credit" or "investment"
	DisplayName       string    `json:"displayName"`
	InstitutionName   string    `json:"institutionName"`
	BalanceAmount     float64   `json:"balanceAmount"`
	Currency          string    `json:"currency"`
	Cash              *float64  `json:"cash,omitempty"`
	HoldingsValue     *float64  `json:"holdingsValue,omitempty"`
	BuyingPower       *float64  `json:"buyingPower,omitempty"`
	AmountOwed        *float64  `json:"amountOwed,omitempty"`
	NeedsReconnection bool      `json:"needsReconnection"`
	PercentOfTotal    float64   `json:"percentOfTotal"` // derived at read time, never persisted
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Totals are the derived aggregates. TotalAssets excludes credit debt;
// TotalBalance is net worth (debt subtracts).
type Totals struct {
	TotalAssets     float64 `json:"totalAssets"`
	TotalBalance    float64 `json:"totalBalance"`
	BankAssets      float64 `json:"bankAssets"`
	InvestmentValue float64 `json:"investmentValue"`
	CryptoValue     float64 `json:"cryptoValue"`
	TotalDebt       float64 `json:"totalDebt"` // positive display value
}

// ConnectionStatus reports the health of each merge side.
type ConnectionStatus struct {
	BankError      string `json:"bankError,omitempty"`
	BrokerageError string `json:"brokerageError,omitempty"`
	Message        string `json:"message,omitempty"`
}

// View is the full dashboard payload. It is always renderable: on total
// failure Accounts is an empty slice and Message explains why.
type View struct {
	Accounts         []ConnectedAccount `json:"accounts"`
	Totals           Totals             `json:"totals"`
	ConnectionStatus ConnectionStatus   `json:"connectionStatus"`
	AsOf             time.Time          `json:"asOf"`
}

// Holding is one position inside a brokerage account. CurrentValue and
// ProfitLoss are always recomputed from quantity and prices, never trusted
// from upstream.
type Holding struct {
	AccountID    string  `json:"accountId"`
	Symbol       string  `json:"symbol"`
	Description  string  `json:"description,omitempty"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"averageCost"`
	CurrentPrice float64 `json:"currentPrice"`
	CurrentValue float64 `json:"currentValue"`
	ProfitLoss   float64 `json:"profitLoss"`
}

// HoldingRepository persists the latest holdings snapshot per account.
type HoldingRepository interface {
	ReplaceForAccount(ctx context.Context, accountID string, holdings []Holding) error
	ListByAccountID(ctx context.Context, accountID string) ([]Holding, error)
}
