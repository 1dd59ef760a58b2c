// Package policy holds the tier-based connection limit rules. The limits are
// consulted by both the bank-linking and brokerage-linking flows before any
// new connection is persisted.
package policy

import "flint/internal/domain/user"

// Unlimited is returned as the limit for tiers with no connection cap.
const Unlimited = -1

var tierLimits = map[user.Tier]int{
	user.TierFree:    2,
	user.TierBasic:   3,
	user.TierPro:     5,
	user.TierPremium: Unlimited,
}

// AccountLimit returns the maximum number of external connections for a
// tier. Admins are always unlimited regardless of tier.
func AccountLimit(tier user.Tier, isAdmin bool) int {
	if isAdmin {
		return Unlimited
	}
	limit, ok := tierLimits[tier]
	if !ok {
		return tierLimits[user.TierFree]
	}
	return limit
}

// RemainingSlots returns how many new connections a user may still add.
// Unlimited tiers report Unlimited.
func RemainingSlots(tier user.Tier, isAdmin bool, existing int) int {
	limit := AccountLimit(tier, isAdmin)
	if limit == Unlimited {
		return Unlimited
	}
	remaining := limit - existing
	if remaining < 0 {
		return 0
	}
	return remaining
}
