// Package transaction serves bank transaction history. Live fetches are
// persisted so history stays available when a bank grant expires.
package transaction

import "time"

type Transaction struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"userId"`
	AccountID    string    `json:"accountId"`
	Date         time.Time `json:"date"`
	Description  string    `json:"description"`
	MerchantName string    `json:"merchantName,omitempty"`
	Amount       float64   `json:"amount"` // negative for outflows
	Category     string    `json:"category,omitempty"`
	Status       string    `json:"status,omitempty"`
}

type UpsertParams struct {
	ID           string
	UserID       int64
	AccountID    string
	Date         time.Time
	Description  string
	MerchantName string
	Amount       float64
	Category     string
	Status       string
}
