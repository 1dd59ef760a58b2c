package user

import (
	"time"
)

// Tier is the subscription tier controlling how many external connections a
// user may hold.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// ParseTier normalizes a stored tier string; unknown values fall back to free.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierBasic, TierPro, TierPremium:
		return Tier(s)
	default:
		return TierFree
	}
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash *string   `json:"-"`
	Tier         Tier      `json:"tier"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash *string
	Tier         Tier
}

type UpdateUserParams struct {
	Name *string
	Tier *Tier
}
