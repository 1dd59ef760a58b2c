package policy

import (
	"testing"

	"flint/internal/domain/user"
)

func TestAccountLimit(t *testing.T) {
	tests := []struct {
		name    string
		tier    user.Tier
		isAdmin bool
		want    int
	}{
		{"free", user.TierFree, false, 2},
		{"basic", user.TierBasic, false, 3},
		{"pro", user.TierPro, false, 5},
		{"premium unlimited", user.TierPremium, false, Unlimited},
		{"admin on free tier unlimited", user.TierFree, true, Unlimited},
		{"unknown tier falls back to free", user.Tier("enterprise"), false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AccountLimit(tt.tier, tt.isAdmin)
			if got != tt.want {
				t.Errorf("AccountLimit(%q, %v) = %d, want %d", tt.tier, tt.isAdmin, got, tt.want)
			}
		})
	}
}

func TestRemainingSlots(t *testing.T) {
	tests := []struct {
		name     string
		tier     user.Tier
		isAdmin  bool
		existing int
		want     int
	}{
		{"free with one existing", user.TierFree, false, 1, 1},
		{"free at limit", user.TierFree, false, 2, 0},
		{"free over limit clamps to zero", user.TierFree, false, 3, 0},
		{"premium always unlimited", user.TierPremium, false, 100, Unlimited},
		{"admin always unlimited", user.TierBasic, true, 100, Unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemainingSlots(tt.tier, tt.isAdmin, tt.existing)
			if got != tt.want {
				t.Errorf("RemainingSlots(%q, %v, %d) = %d, want %d", tt.tier, tt.isAdmin, tt.existing, got, tt.want)
			}
		})
	}
}
