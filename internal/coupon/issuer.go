// Package coupon mints one coupon per reward-threshold multiple a customer's
// balance passes.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/notify"
	"github.com/dukerupert/loyalty/internal/store"
)

type RewardFinder interface {
	FindActive(ctx context.Context, merchantID int64, policy model.RewardPolicy) (*model.Reward, error)
}

type Store interface {
	Create(ctx context.Context, code string, customerID, merchantID, rewardID int64, expiresAt *time.Time) (*model.Coupon, error)
}

type ActivityLog interface {
	Append(ctx context.Context, a *model.Activity) (*model.Activity, error)
}

// Notifier is satisfied by *notify.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, c *notify.Content)
	Alert(ctx context.Context, a notify.Alert)
}

const maxCodeAttempts = 5

type Issuer struct {
	rewards    RewardFinder
	coupons    Store
	activities ActivityLog
	notifier   Notifier
	policy     model.RewardPolicy
	generate   func() (string, error)
	logger     *slog.Logger
}

type Option func(*Issuer)

func WithPolicy(p model.RewardPolicy) Option {
	return func(i *Issuer) { i.policy = p }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(f func() (string, error)) Option {
	return func(i *Issuer) { i.generate = f }
}

func NewIssuer(rewards RewardFinder, coupons Store, activities ActivityLog, notifier Notifier, logger *slog.Logger, opts ...Option) *Issuer {
	i := &Issuer{
		rewards:    rewards,
		coupons:    coupons,
		activities: activities,
		notifier:   notifier,
		policy:     model.RewardPolicyOldest,
		generate:   GenerateCode,
		logger:     logger.With("component", "coupon"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Crossings returns how many multiples of threshold lie in (prev, curr].
func Crossings(prev, curr, threshold int) int {
	if threshold <= 0 || curr <= prev {
		return 0
	}
	if prev < 0 {
		prev = 0
	}
	return curr/threshold - prev/threshold
}

// CheckAndIssue issues coupons for the thresholds crossed by an award that
// has already been applied to customer. Each crossing is attempted on its
// own; failures are logged and never undo the award. The only error
// returned is context cancellation.
func (i *Issuer) CheckAndIssue(ctx context.Context, merchant *model.Merchant, customer *model.Customer, pointsJustAwarded int) ([]model.Coupon, error) {
	if pointsJustAwarded <= 0 || merchant.RewardThreshold <= 0 {
		return nil, nil
	}

	n := Crossings(customer.Points-pointsJustAwarded, customer.Points, merchant.RewardThreshold)
	if n == 0 {
		return nil, nil
	}

	log := i.logger.With("merchant_id", merchant.ID, "customer_id", customer.ID)
	log.Info("reward threshold crossed", "crossings", n, "threshold", merchant.RewardThreshold)

	var issued []model.Coupon
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return issued, err
		}

		c, err := i.issueOne(ctx, merchant, customer)
		if err != nil {
			log.Error("issue coupon", "crossing", k+1, "error", err)
			continue
		}
		if c != nil {
			issued = append(issued, *c)
		}
	}
	return issued, nil
}

func (i *Issuer) issueOne(ctx context.Context, merchant *model.Merchant, customer *model.Customer) (*model.Coupon, error) {
	reward, err := i.rewards.FindActive(ctx, merchant.ID, i.policy)
	if err != nil {
		return nil, fmt.Errorf("find active reward: %w", err)
	}
	if reward == nil {
		i.logger.Warn("no active reward for threshold crossing", "merchant_id", merchant.ID, "customer_id", customer.ID)
		i.notifier.Alert(ctx, notify.NoRewardAlert(merchant, customer))
		return nil, nil
	}

	c, err := i.create(ctx, merchant, customer, reward)
	if err != nil {
		return nil, err
	}

	if _, err := i.activities.Append(ctx, &model.Activity{
		CustomerID: customer.ID,
		MerchantID: merchant.ID,
		Event:      model.EventCouponGenerated,
		Points:     0,
		Metadata:   map[string]any{"couponCode": c.Code, "rewardId": reward.ID},
	}); err != nil {
		// The coupon exists; losing the marker only affects the audit view.
		i.logger.Error("record coupon activity", "coupon_code", c.Code, "error", err)
	}

	i.notifier.Notify(ctx, notify.Build(model.EventCouponGenerated, merchant, customer, 0,
		notify.Details{RewardID: reward.ID, CouponCode: c.Code}))
	i.notifier.Alert(ctx, notify.CouponAlert(merchant, customer, c.Code))

	i.logger.Info("coupon issued", "merchant_id", merchant.ID, "customer_id", customer.ID,
		"reward_id", reward.ID, "coupon_code", c.Code)
	return c, nil
}

// create inserts the coupon, drawing a fresh code when one collides.
func (i *Issuer) create(ctx context.Context, merchant *model.Merchant, customer *model.Customer, reward *model.Reward) (*model.Coupon, error) {
	for attempt := 1; ; attempt++ {
		code, err := i.generate()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		c, err := i.coupons.Create(ctx, code, customer.ID, merchant.ID, reward.ID, reward.ExpiryDate)
		if errors.Is(err, store.ErrDuplicateCode) && attempt < maxCodeAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create coupon: %w", err)
		}
		return c, nil
	}
}
