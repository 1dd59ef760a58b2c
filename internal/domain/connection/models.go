// Package connection reconciles the provider's brokerage authorizations
// into local connection records.
package connection

import "time"

// Health classifies a connection for the UI. It is derived at read time,
// never stored.
type Health string

const (
	HealthConnected    Health = "CONNECTED"
	HealthDisconnected Health = "DISCONNECTED"
	HealthDisabled     Health = "DISABLED"
)

// Connection is one brokerage authorization as known locally.
type Connection struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"userId"`
	AuthorizationID string    `json:"authorizationId"`
	InstitutionName string    `json:"institutionName"`
	Disabled        bool      `json:"disabled"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	LastSyncAt      time.Time `json:"lastSyncAt"`
}

// HealthAt classifies the connection relative to now. A connection the
// provider flags disabled is DISABLED regardless of sync age; one whose
// last successful sync is older than staleAfter is DISCONNECTED.
func (c *Connection) HealthAt(now time.Time, staleAfter time.Duration) Health {
	if c.Disabled {
		return HealthDisabled
	}
	if now.Sub(c.LastSyncAt) > staleAfter {
		return HealthDisconnected
	}
	return HealthConnected
}

type UpsertParams struct {
	UserID          int64
	AuthorizationID string
	InstitutionName string
	Disabled        bool
}
