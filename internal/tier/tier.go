// Package tier derives a customer's loyalty tier from their point balance.
package tier

import "github.com/dukerupert/loyalty/internal/model"

// Default thresholds applied when a merchant leaves a tier unset (zero).
const (
	DefaultBronze   = 0
	DefaultSilver   = 1000
	DefaultGold     = 5000
	DefaultPlatinum = 15000
)

// Thresholds holds the minimum balance for each tier.
type Thresholds struct {
	Bronze   int
	Silver   int
	Gold     int
	Platinum int
}

// FromMerchant reads the merchant's configured thresholds.
func FromMerchant(m *model.Merchant) Thresholds {
	return Thresholds{
		Bronze:   m.TierBronze,
		Silver:   m.TierSilver,
		Gold:     m.TierGold,
		Platinum: m.TierPlatinum,
	}
}

// WithDefaults replaces unset (zero or negative) thresholds with the defaults.
func (t Thresholds) WithDefaults() Thresholds {
	if t.Bronze <= 0 {
		t.Bronze = DefaultBronze
	}
	if t.Silver <= 0 {
		t.Silver = DefaultSilver
	}
	if t.Gold <= 0 {
		t.Gold = DefaultGold
	}
	if t.Platinum <= 0 {
		t.Platinum = DefaultPlatinum
	}
	return t
}

// Calculate returns the highest tier whose threshold is at or below points.
// Tiers are checked platinum first; anything below silver is bronze.
func Calculate(points int, t Thresholds) model.Tier {
	t = t.WithDefaults()
	switch {
	case points >= t.Platinum:
		return model.TierPlatinum
	case points >= t.Gold:
		return model.TierGold
	case points >= t.Silver:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}

// Rank orders tiers for comparison: bronze 0 through platinum 3.
// Unknown values rank as bronze.
func Rank(t model.Tier) int {
	switch t {
	case model.TierSilver:
		return 1
	case model.TierGold:
		return 2
	case model.TierPlatinum:
		return 3
	default:
		return 0
	}
}
