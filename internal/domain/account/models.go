// Package account holds locally linked bank and credit accounts and the
// tier-limited linking flow.
package account

import "time"

// BankAccount is one linked bank or credit account. AccessToken is the
// provider grant for live fetches; the repository encrypts it at rest.
// LastBalance is a cache written back after every successful live fetch and
// served when the grant has expired.
type BankAccount struct {
	ID                string    `json:"id"`
	UserID            int64     `json:"userId"`
	ProviderAccountID string    `json:"providerAccountId"`
	Name              string    `json:"name"`
	AccountType       string    `json:"accountType"` // "depository" or "credit"
	Subtype           string    `json:"subtype"`
	InstitutionName   string    `json:"institutionName"`
	Currency          string    `json:"currency"`
	AccessToken       string    `json:"-"`
	LastBalance       float64   `json:"lastBalance"`
	LastBalanceAt     time.Time `json:"lastBalanceAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// IsCredit reports whether the account carries debt rather than assets.
func (a *BankAccount) IsCredit() bool {
	return a.AccountType == "credit"
}

type CreateParams struct {
	ID                string
	UserID            int64
	ProviderAccountID string
	Name              string
	AccountType       string
	Subtype           string
	InstitutionName   string
	Currency          string
	AccessToken       string
}

// LinkAccountParams is one account in a linking batch.
type LinkAccountParams struct {
	ProviderAccountID string `json:"providerAccountId"`
	Name              string `json:"name"`
	AccountType       string `json:"accountType"`
	Subtype           string `json:"subtype"`
	InstitutionName   string `json:"institutionName"`
	Currency          string `json:"currency"`
	AccessToken       string `json:"accessToken"`
}

// LinkReport is the outcome of a linking batch. Batches over the tier limit
// are partially accepted: accounts fill the remaining slots in input order
// and the rest are rejected, with both numbers reported.
type LinkReport struct {
	AccountsSaved    int            `json:"accountsSaved"`
	AccountsRejected int            `json:"accountsRejected"`
	Duplicates       int            `json:"duplicates"`
	Accounts         []*BankAccount `json:"accounts"`
}
