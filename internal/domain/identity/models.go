// Package identity owns the mapping between internal users and their
// provider-side aggregator registration. Creating that registration is the
// one operation in the system needing true mutual exclusion: the provider
// allows one identity per user reference, and a duplicate create attempt
// leaves local and provider state diverged.
package identity

import "time"

// Identity is the credential-store row for one user. ProviderSecret is
// encrypted at rest by the repository; in-memory values are plaintext and
// must never be logged.
type Identity struct {
	ID             int64
	UserID         int64
	ProviderUserID string
	ProviderSecret string
	CreatedAt      time.Time
	RotatedAt      *time.Time
}
