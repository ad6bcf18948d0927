package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rule names as stored in a merchant's loyalty settings.
const (
	RulePurchase                = "purchasePoints"
	RulePurchaseAmountThreshold = "purchaseAmountThresholdPoints"
	RuleFeedbackShipping        = "feedbackShippingPoints"
	RuleBirthday                = "birthdayPoints"
	RuleRatingApp               = "ratingAppPoints"
	RuleProfileCompletion       = "profileCompletionPoints"
	RuleRepeatPurchase          = "repeatPurchasePoints"
	RuleWelcome                 = "welcomePoints"
	RuleInstallApp              = "installAppPoints"
	RuleShareReferral           = "shareReferralPoints"
)

// RuleNames lists every rule a merchant can configure.
var RuleNames = []string{
	RulePurchase,
	RulePurchaseAmountThreshold,
	RuleFeedbackShipping,
	RuleBirthday,
	RuleRatingApp,
	RuleProfileCompletion,
	RuleRepeatPurchase,
	RuleWelcome,
	RuleInstallApp,
	RuleShareReferral,
}

// Rule is a single merchant-configured point rule.
type Rule struct {
	Enabled         bool             `json:"enabled"`
	Points          int              `json:"points"`
	ThresholdAmount *decimal.Decimal `json:"thresholdAmount,omitempty"`
}

// LoyaltySettings maps rule names to their configuration.
type LoyaltySettings map[string]Rule

// Rule returns the named rule and whether it is configured and enabled.
func (s LoyaltySettings) Rule(name string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	r, ok := s[name]
	if !ok || !r.Enabled {
		return Rule{}, false
	}
	return r, true
}

// NotificationSettings holds the merchant's per-event customer notification flags.
type NotificationSettings struct {
	EarnNewPoints         bool `json:"earnNewPoints"`
	EarnNewCoupon         bool `json:"earnNewCoupon"`
	EarnNewCouponForShare bool `json:"earnNewCouponForShare"`
	Birthday              bool `json:"birthday"`
}

type Merchant struct {
	ID                    int64                 `json:"id"`
	ExternalID            string                `json:"external_id"`
	Name                  string                `json:"name"`
	Username              string                `json:"username"`
	Domain                string                `json:"domain"`
	LoyaltySettings       LoyaltySettings       `json:"loyalty_settings"`
	PointsPerCurrencyUnit decimal.Decimal       `json:"points_per_currency_unit"`
	RewardThreshold       int                   `json:"reward_threshold"`
	TierBronze            int                   `json:"tier_bronze"`
	TierSilver            int                   `json:"tier_silver"`
	TierGold              int                   `json:"tier_gold"`
	TierPlatinum          int                   `json:"tier_platinum"`
	CustomersPoints       int                   `json:"customers_points"`
	NotificationSettings  *NotificationSettings `json:"notification_settings"`
	WebhookSecretHash     string                `json:"-"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// StoreLink is the storefront URL used in customer-facing messages.
func (m *Merchant) StoreLink() string {
	if m.Domain != "" {
		return m.Domain
	}
	return "https://" + m.Username + ".salla.sa"
}

// CurrencyUnit returns the purchase divisor, falling back to 1 when unset or invalid.
func (m *Merchant) CurrencyUnit() decimal.Decimal {
	if !m.PointsPerCurrencyUnit.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return m.PointsPerCurrencyUnit
}
