// Package engine turns inbound loyalty events into ledger writes, coupon
// issuance and customer notifications according to each merchant's rules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/dukerupert/loyalty/internal/ledger"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMerchantNotFound = errors.New("merchant not found")
	ErrCustomerNotFound = ledger.ErrCustomerNotFound
)

type MerchantRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Merchant, error)
}

type CustomerRepository interface {
	Get(ctx context.Context, merchantID, id int64) (*model.Customer, error)
}

// Ledger is satisfied by *ledger.Ledger.
type Ledger interface {
	Award(ctx context.Context, merchant *model.Merchant, customerID int64, points int, event string, metadata map[string]any) (*ledger.AwardResult, error)
	Deduct(ctx context.Context, merchant *model.Merchant, customerID int64, points int, event string, metadata map[string]any) (*ledger.DeductResult, error)
}

// CouponIssuer is satisfied by *coupon.Issuer.
type CouponIssuer interface {
	CheckAndIssue(ctx context.Context, merchant *model.Merchant, customer *model.Customer, pointsJustAwarded int) ([]model.Coupon, error)
}

// Notifier is satisfied by *notify.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, c *notify.Content)
}

// Feed receives live activity for dashboards. *websocket.Hub satisfies it.
type Feed interface {
	Publish(merchantID int64, entity, action string, id int64, extra map[string]any)
}

// flatRules maps events that award a fixed amount to the rule holding it.
var flatRules = map[string]string{
	model.EventFeedback:          model.RuleFeedbackShipping,
	model.EventBirthday:          model.RuleBirthday,
	model.EventRating:            model.RuleRatingApp,
	model.EventProfileCompletion: model.RuleProfileCompletion,
	model.EventRepeatPurchase:    model.RuleRepeatPurchase,
	model.EventWelcome:           model.RuleWelcome,
	model.EventInstallApp:        model.RuleInstallApp,
	model.EventShareReferral:     model.RuleShareReferral,
}

// Supported reports whether the engine has a rule for the event name.
func Supported(name string) bool {
	if name == model.EventPurchase || name == model.EventPointsDeduction {
		return true
	}
	_, ok := flatRules[name]
	return ok
}

type Engine struct {
	merchants MerchantRepository
	customers CustomerRepository
	ledger    Ledger
	coupons   CouponIssuer
	notifier  Notifier
	feed      Feed
	logger    *slog.Logger
}

type Option func(*Engine)

func WithFeed(f Feed) Option {
	return func(e *Engine) { e.feed = f }
}

func New(merchants MerchantRepository, customers CustomerRepository, l Ledger, coupons CouponIssuer, notifier Notifier, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		merchants: merchants,
		customers: customers,
		ledger:    l,
		coupons:   coupons,
		notifier:  notifier,
		logger:    logger.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessEvent applies the merchant's rules to ev. Unknown events and
// disabled rules are no-ops. Only a missing merchant or customer, a payload
// of the wrong type, or a failed ledger write is returned as an error;
// coupon and notification problems are logged.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) (*Result, error) {
	res := &Result{EventID: uuid.NewString(), Event: ev.Name}
	log := e.logger.With("event", ev.Name, "event_id", res.EventID, "merchant_id", ev.MerchantID, "customer_id", ev.CustomerID)

	merchant, err := e.merchants.GetByID(ctx, ev.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	if merchant == nil {
		log.Warn("merchant not found")
		return nil, ErrMerchantNotFound
	}

	customer, err := e.customers.Get(ctx, merchant.ID, ev.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		log.Warn("customer not found")
		return nil, ErrCustomerNotFound
	}

	p := &processing{Engine: e, ctx: ctx, merchant: merchant, customer: customer, res: res, log: log}

	switch {
	case ev.Name == model.EventPurchase:
		err = p.purchase(ev.Payload)
	case ev.Name == model.EventPointsDeduction:
		err = p.deduction(ev.Payload)
	case flatRules[ev.Name] != "":
		err = p.flat(ev.Name, flatRules[ev.Name], ev.Payload)
	default:
		log.Info("unknown event ignored")
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// processing holds the state of one ProcessEvent call.
type processing struct {
	*Engine
	ctx      context.Context
	merchant *model.Merchant
	customer *model.Customer
	res      *Result
	log      *slog.Logger
}

func (p *processing) metadata(payload Payload) map[string]any {
	m := map[string]any{}
	if payload != nil {
		m = payload.Metadata()
	}
	m["eventId"] = p.res.EventID
	return m
}

func (p *processing) purchase(payload Payload) error {
	pp, ok := payload.(PurchasePayload)
	if !ok {
		return fmt.Errorf("%w: purchase needs PurchasePayload, got %T", ErrInvalidPayload, payload)
	}
	rules := p.merchant.LoyaltySettings

	if _, ok := rules.Rule(model.RulePurchase); ok {
		points := PurchasePoints(pp.Amount, p.merchant.CurrencyUnit())
		if points > 0 {
			if err := p.award(model.EventPurchase, points, p.metadata(pp)); err != nil {
				return err
			}
		}
	}

	if rule, ok := rules.Rule(model.RulePurchaseAmountThreshold); ok {
		if rule.ThresholdAmount != nil && pp.Amount.GreaterThanOrEqual(*rule.ThresholdAmount) && rule.Points > 0 {
			meta := p.metadata(pp)
			meta["thresholdAmount"] = rule.ThresholdAmount.String()
			if err := p.award(model.EventPurchaseThreshold, rule.Points, meta); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *processing) flat(event, ruleName string, payload Payload) error {
	rule, ok := p.merchant.LoyaltySettings.Rule(ruleName)
	if !ok || rule.Points <= 0 {
		p.log.Debug("rule disabled", "rule", ruleName)
		return nil
	}
	return p.award(event, rule.Points, p.metadata(payload))
}

func (p *processing) deduction(payload Payload) error {
	dp, ok := payload.(DeductionPayload)
	if !ok {
		return fmt.Errorf("%w: pointsDeduction needs DeductionPayload, got %T", ErrInvalidPayload, payload)
	}
	if dp.PointsDeducted <= 0 {
		return nil
	}

	dr, err := p.ledger.Deduct(p.ctx, p.merchant, p.customer.ID, dp.PointsDeducted, model.EventPointsDeduction, p.metadata(dp))
	if err != nil {
		return err
	}
	p.customer = dr.Customer
	p.res.PointsDeducted += dr.ActualDeducted
	p.res.track(dr.Change)
	p.publish(dr.Change)

	if dr.ActualDeducted > 0 {
		p.notify(notify.Build(model.EventPointsDeduction, p.merchant, dr.Customer, dr.ActualDeducted,
			notify.Details{Reason: dp.Reason}))
	}
	return nil
}

func (p *processing) award(event string, points int, meta map[string]any) error {
	ar, err := p.ledger.Award(p.ctx, p.merchant, p.customer.ID, points, event, meta)
	if err != nil {
		return err
	}
	p.customer = ar.Customer
	p.res.PointsAwarded += points
	p.res.track(ar.Change)
	p.publish(ar.Change)

	p.notify(notify.Build(event, p.merchant, ar.Customer, points, notify.Details{}))

	issued, err := p.coupons.CheckAndIssue(p.ctx, p.merchant, ar.Customer, points)
	if err != nil {
		p.log.Error("coupon issuance interrupted", "error", err)
	}
	for _, c := range issued {
		p.res.CouponsIssued = append(p.res.CouponsIssued, CouponRef{ID: c.ID, Code: c.Code, RewardID: c.RewardID, ExpiresAt: c.ExpiresAt})
		if p.feed != nil {
			p.feed.Publish(p.merchant.ID, "coupon", "issued", c.ID, map[string]any{
				"customer_id": c.CustomerID,
				"code":        c.Code,
			})
		}
	}
	return nil
}

func (p *processing) notify(c *notify.Content) {
	if c == nil {
		return
	}
	p.res.Notifications = append(p.res.Notifications, *c)
	p.notifier.Notify(p.ctx, c)
}

func (p *processing) publish(ch ledger.Change) {
	if p.feed == nil {
		return
	}
	p.feed.Publish(p.merchant.ID, "activity", "created", ch.Activity.ID, map[string]any{
		"customer_id": ch.Customer.ID,
		"event":       ch.Activity.Event,
		"points":      ch.Activity.Points,
		"balance":     ch.NewBalance,
	})
	if ch.TierChanged {
		p.feed.Publish(p.merchant.ID, "customer", "tier_changed", ch.Customer.ID, map[string]any{
			"old_tier": ch.OldTier,
			"new_tier": ch.NewTier,
		})
	}
}

var maxPoints = decimal.NewFromInt(math.MaxInt32)

// PurchasePoints is the per-unit award for amount: floor(amount / unit),
// clamped to ±math.MaxInt32.
func PurchasePoints(amount, unit decimal.Decimal) int {
	if !unit.IsPositive() {
		unit = decimal.NewFromInt(1)
	}
	pts := amount.Div(unit).Floor()
	switch {
	case pts.GreaterThan(maxPoints):
		return math.MaxInt32
	case pts.LessThan(maxPoints.Neg()):
		return -math.MaxInt32
	}
	return int(pts.IntPart())
}
