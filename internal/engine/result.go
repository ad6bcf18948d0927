package engine

import (
	"time"

	"github.com/dukerupert/loyalty/internal/ledger"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/notify"
)

type CouponRef struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	RewardID  int64      `json:"reward_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Result summarizes what one event did. A zero Result (apart from EventID)
// means the event was a no-op.
type Result struct {
	EventID        string           `json:"event_id"`
	Event          string           `json:"event"`
	PointsAwarded  int              `json:"points_awarded"`
	PointsDeducted int              `json:"points_deducted"`
	Balance        int              `json:"balance"`
	TierChanged    bool             `json:"tier_changed"`
	OldTier        model.Tier       `json:"old_tier,omitempty"`
	NewTier        model.Tier       `json:"new_tier,omitempty"`
	CouponsIssued  []CouponRef      `json:"coupons_issued"`
	Notifications  []notify.Content `json:"notifications"`
}

// track folds one ledger change into the result. Across several changes the
// tier transition runs from the first old tier to the last new tier.
func (r *Result) track(ch ledger.Change) {
	if r.OldTier == "" {
		r.OldTier = ch.OldTier
	}
	r.NewTier = ch.NewTier
	r.TierChanged = r.OldTier != r.NewTier
	r.Balance = ch.NewBalance
}
