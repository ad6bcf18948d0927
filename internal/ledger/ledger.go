// Package ledger applies signed point deltas to customer balances. It is the
// only writer of Customer.Points and Customer.Tier.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/store"
	"github.com/dukerupert/loyalty/internal/tier"
	"github.com/sethvargo/go-retry"
)

var (
	ErrInvalidPoints    = errors.New("points must be positive")
	ErrCustomerNotFound = errors.New("customer not found")
)

// Store is the persistence the ledger needs. *store.CustomerStore satisfies it.
type Store interface {
	Get(ctx context.Context, merchantID, id int64) (*model.Customer, error)
	ListByMerchant(ctx context.Context, merchantID int64) ([]model.Customer, error)
	ApplyPoints(ctx context.Context, ch store.PointsChange) (*store.PointsResult, error)
}

// AuditLog sums the activity trail. *store.ActivityStore satisfies it.
type AuditLog interface {
	SumByCustomer(ctx context.Context, merchantID int64) (map[int64]int, error)
}

const (
	defaultMaxRetries = 5
	defaultBackoff    = 10 * time.Millisecond
)

type Ledger struct {
	store  Store
	audit  AuditLog
	locks  *keyedMutex
	logger *slog.Logger

	maxRetries uint64
	backoff    time.Duration
}

type Option func(*Ledger)

// WithRetry bounds how often a write that lost a compare-and-swap race is
// retried, and the pause between attempts.
func WithRetry(maxRetries uint64, backoff time.Duration) Option {
	return func(l *Ledger) {
		l.maxRetries = maxRetries
		if backoff > 0 {
			l.backoff = backoff
		}
	}
}

func New(s Store, audit AuditLog, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:      s,
		audit:      audit,
		locks:      newKeyedMutex(),
		logger:     logger.With("component", "ledger"),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Change describes a committed balance change.
type Change struct {
	Customer        *model.Customer
	Activity        *model.Activity
	PreviousBalance int
	NewBalance      int
	OldTier         model.Tier
	NewTier         model.Tier
	TierChanged     bool
	MerchantPoints  int
}

type AwardResult struct {
	Change
}

type DeductResult struct {
	Change
	Requested      int
	ActualDeducted int
}

// Award adds points to a customer's balance and the merchant aggregate and
// records the activity with the requested amount.
func (l *Ledger) Award(ctx context.Context, merchant *model.Merchant, customerID int64, points int, event string, metadata map[string]any) (*AwardResult, error) {
	if points <= 0 {
		return nil, fmt.Errorf("award %d: %w", points, ErrInvalidPoints)
	}

	ch, err := l.apply(ctx, merchant, customerID, event, metadata, func(int) int { return points })
	if err != nil {
		return nil, err
	}

	l.logger.Info("points awarded",
		"merchant_id", merchant.ID, "customer_id", customerID, "event", event,
		"points", points, "balance", ch.NewBalance)
	l.logTierChange(merchant.ID, ch)
	return &AwardResult{Change: *ch}, nil
}

// Deduct removes up to points from a customer's balance, clamping at zero.
// A deduction against an empty balance still records a zero-point activity.
func (l *Ledger) Deduct(ctx context.Context, merchant *model.Merchant, customerID int64, points int, event string, metadata map[string]any) (*DeductResult, error) {
	if points <= 0 {
		return nil, fmt.Errorf("deduct %d: %w", points, ErrInvalidPoints)
	}

	ch, err := l.apply(ctx, merchant, customerID, event, metadata, func(balance int) int {
		return -min(points, balance)
	})
	if err != nil {
		return nil, err
	}

	actual := ch.PreviousBalance - ch.NewBalance
	l.logger.Info("points deducted",
		"merchant_id", merchant.ID, "customer_id", customerID, "event", event,
		"requested", points, "deducted", actual, "balance", ch.NewBalance)
	l.logTierChange(merchant.ID, ch)
	return &DeductResult{Change: *ch, Requested: points, ActualDeducted: actual}, nil
}

// apply runs one read-compute-write cycle under the customer's lock. The
// store's conditional update catches writers outside this process; a lost
// race re-reads the balance and recomputes the delta.
func (l *Ledger) apply(ctx context.Context, merchant *model.Merchant, customerID int64, event string, metadata map[string]any, delta func(balance int) int) (*Change, error) {
	unlock := l.locks.Lock(customerKey{merchantID: merchant.ID, customerID: customerID})
	defer unlock()

	thresholds := tier.FromMerchant(merchant)
	var out *Change

	backoff := retry.WithMaxRetries(l.maxRetries, retry.NewConstant(l.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := l.store.Get(ctx, merchant.ID, customerID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrCustomerNotFound
		}

		d := delta(c.Points)
		newTier := tier.Calculate(c.Points+d, thresholds)

		res, err := l.store.ApplyPoints(ctx, store.PointsChange{
			MerchantID:     merchant.ID,
			CustomerID:     customerID,
			ExpectedPoints: c.Points,
			Delta:          d,
			Tier:           newTier,
			Event:          event,
			Metadata:       metadata,
		})
		if errors.Is(err, store.ErrConflict) {
			l.logger.Debug("balance changed underneath write, retrying",
				"merchant_id", merchant.ID, "customer_id", customerID)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		oldTier := c.Tier
		if oldTier == "" {
			oldTier = model.TierBronze
		}
		out = &Change{
			Customer:        res.Customer,
			Activity:        res.Activity,
			PreviousBalance: c.Points,
			NewBalance:      res.Customer.Points,
			OldTier:         oldTier,
			NewTier:         res.Customer.Tier,
			TierChanged:     oldTier != res.Customer.Tier,
			MerchantPoints:  res.MerchantPoints,
		}
		return nil
	})
	if errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s for customer %d: %w", event, customerID, err)
	}

	return out, nil
}

func (l *Ledger) logTierChange(merchantID int64, ch *Change) {
	if !ch.TierChanged {
		return
	}
	l.logger.Info("customer tier changed",
		"merchant_id", merchantID, "customer_id", ch.Customer.ID,
		"old_tier", ch.OldTier, "new_tier", ch.NewTier)
}

// Drift is a customer whose stored balance disagrees with the activity trail.
type Drift struct {
	CustomerID int64 `json:"customer_id"`
	Balance    int   `json:"balance"`
	AuditSum   int   `json:"audit_sum"`
}

// Reconcile compares every customer's balance against the sum of their
// recorded activity deltas and returns the mismatches.
func (l *Ledger) Reconcile(ctx context.Context, merchantID int64) ([]Drift, error) {
	customers, err := l.store.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	sums, err := l.audit.SumByCustomer(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	var drift []Drift
	for _, c := range customers {
		if sum := sums[c.ID]; sum != c.Points {
			drift = append(drift, Drift{CustomerID: c.ID, Balance: c.Points, AuditSum: sum})
		}
	}
	if len(drift) > 0 {
		l.logger.Warn("ledger drift detected", "merchant_id", merchantID, "customers", len(drift))
	}
	return drift, nil
}
