package model

import "time"

type Reward struct {
	ID          int64      `json:"id"`
	MerchantID  int64      `json:"merchant_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Active      bool       `json:"is_active"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Usable reports whether the reward can back a new coupon at now.
func (r *Reward) Usable(now time.Time) bool {
	if !r.Active {
		return false
	}
	return r.ExpiryDate == nil || r.ExpiryDate.After(now)
}

// RewardPolicy selects which active reward backs a new coupon when a
// merchant has several.
type RewardPolicy string

const (
	RewardPolicyOldest          RewardPolicy = "oldest"
	RewardPolicyNewest          RewardPolicy = "newest"
	RewardPolicyExpiringSoonest RewardPolicy = "expiring_soonest"
)

// ParseRewardPolicy returns the named policy, defaulting to oldest.
func ParseRewardPolicy(s string) RewardPolicy {
	switch RewardPolicy(s) {
	case RewardPolicyNewest:
		return RewardPolicyNewest
	case RewardPolicyExpiringSoonest:
		return RewardPolicyExpiringSoonest
	default:
		return RewardPolicyOldest
	}
}

type Coupon struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	CustomerID int64      `json:"customer_id"`
	MerchantID int64      `json:"merchant_id"`
	RewardID   int64      `json:"reward_id"`
	IsRedeemed bool       `json:"is_redeemed"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// SelectReward picks the reward that backs a new coupon under policy,
// ignoring inactive and expired rewards. rewards must be in creation order.
// It returns nil when none is usable.
func SelectReward(rewards []Reward, policy RewardPolicy, now time.Time) *Reward {
	var usable []*Reward
	for i := range rewards {
		if rewards[i].Usable(now) {
			usable = append(usable, &rewards[i])
		}
	}
	if len(usable) == 0 {
		return nil
	}

	switch policy {
	case RewardPolicyNewest:
		return usable[len(usable)-1]
	case RewardPolicyExpiringSoonest:
		var best *Reward
		for _, r := range usable {
			if r.ExpiryDate == nil {
				continue
			}
			if best == nil || r.ExpiryDate.Before(*best.ExpiryDate) {
				best = r
			}
		}
		if best != nil {
			return best
		}
		return usable[0]
	default:
		return usable[0]
	}
}
