package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
)

type CouponStore struct {
	db *sql.DB
}

func NewCouponStore(db *sql.DB) *CouponStore {
	return &CouponStore{db: db}
}

const couponCols = `id, code, customer_id, merchant_id, reward_id, is_redeemed, issued_at, expires_at`

func scanCoupon(sc scanner) (*model.Coupon, error) {
	var c model.Coupon
	var redeemed int
	var expires sql.NullTime
	err := sc.Scan(&c.ID, &c.Code, &c.CustomerID, &c.MerchantID, &c.RewardID, &redeemed, &c.IssuedAt, &expires)
	if err != nil {
		return nil, err
	}
	c.IsRedeemed = redeemed != 0
	c.ExpiresAt = timePtr(expires)
	return &c, nil
}

// Create inserts an unredeemed coupon. A code collision returns ErrDuplicateCode.
func (s *CouponStore) Create(ctx context.Context, code string, customerID, merchantID, rewardID int64, expiresAt *time.Time) (*model.Coupon, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO coupons (code, customer_id, merchant_id, reward_id, expires_at) VALUES (?, ?, ?, ?, ?)`,
		code, customerID, merchantID, rewardID, nullTime(expiresAt),
	)
	if isUniqueViolation(err, "coupons.code") {
		return nil, ErrDuplicateCode
	}
	if err != nil {
		return nil, fmt.Errorf("insert coupon: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	c, err := scanCoupon(s.db.QueryRowContext(ctx, `SELECT `+couponCols+` FROM coupons WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read coupon: %w", err)
	}
	return c, nil
}

func (s *CouponStore) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx, `SELECT `+couponCols+` FROM coupons WHERE code = ?`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return c, nil
}

// ListByCustomer returns a customer's coupons, newest first.
func (s *CouponStore) ListByCustomer(ctx context.Context, merchantID, customerID int64) ([]model.Coupon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+couponCols+` FROM coupons WHERE merchant_id = ? AND customer_id = ? ORDER BY id DESC`,
		merchantID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func (s *CouponStore) CountByCustomer(ctx context.Context, customerID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupons WHERE customer_id = ?`, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count coupons: %w", err)
	}
	return n, nil
}
