package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
)

type CustomerStore struct {
	db *sql.DB
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

const customerCols = `id, merchant_id, external_id, name, email, phone, date_of_birth, points, tier, order_count, created_at, updated_at`

func scanCustomer(sc scanner) (*model.Customer, error) {
	var c model.Customer
	var dob sql.NullTime
	var tier string

	err := sc.Scan(
		&c.ID, &c.MerchantID, &c.ExternalID, &c.Name, &c.Email, &c.Phone, &dob,
		&c.Points, &tier, &c.OrderCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.DateOfBirth = timePtr(dob)
	c.Tier = model.Tier(tier)
	return &c, nil
}

// NewCustomer holds the profile fields captured when a customer is first seen.
type NewCustomer struct {
	ExternalID  string
	Name        string
	Email       string
	Phone       string
	DateOfBirth *time.Time
	OrderCount  int
}

// Create inserts a customer with a zero balance at bronze tier.
func (s *CustomerStore) Create(ctx context.Context, merchantID int64, nc NewCustomer) (*model.Customer, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (merchant_id, external_id, name, email, phone, date_of_birth, order_count, tier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		merchantID, nc.ExternalID, nc.Name, nc.Email, nc.Phone, nullTime(nc.DateOfBirth), nc.OrderCount, string(model.TierBronze),
	)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, merchantID, id)
}

// Get returns the customer only if it belongs to the merchant.
func (s *CustomerStore) Get(ctx context.Context, merchantID, id int64) (*model.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerCols+` FROM customers WHERE id = ? AND merchant_id = ?`, id, merchantID,
	)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *CustomerStore) GetByExternalID(ctx context.Context, merchantID int64, externalID string) (*model.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerCols+` FROM customers WHERE merchant_id = ? AND external_id = ?`, merchantID, externalID,
	)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by external id: %w", err)
	}
	return c, nil
}

// ListByMerchant returns all of a merchant's customers, highest balance first.
func (s *CustomerStore) ListByMerchant(ctx context.Context, merchantID int64) ([]model.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customerCols+` FROM customers WHERE merchant_id = ? ORDER BY points DESC, id ASC`, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (s *CustomerStore) IncrementOrderCount(ctx context.Context, merchantID, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE customers SET order_count = order_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND merchant_id = ?`,
		id, merchantID,
	)
	if err != nil {
		return fmt.Errorf("increment order count: %w", err)
	}
	return nil
}

// PointsChange is one ledger write. Delta is the signed amount actually
// applied; ExpectedPoints is the balance the caller read before computing it.
type PointsChange struct {
	MerchantID     int64
	CustomerID     int64
	ExpectedPoints int
	Delta          int
	Tier           model.Tier
	Event          string
	Metadata       map[string]any
}

// PointsResult is the committed state after a PointsChange.
type PointsResult struct {
	Customer       *model.Customer
	Activity       *model.Activity
	MerchantPoints int
}

// ApplyPoints commits a balance change, the merchant aggregate, and the
// matching activity record in one transaction. The balance update only
// succeeds if the stored balance still equals ExpectedPoints; otherwise
// ErrConflict is returned and nothing is written.
func (s *CustomerStore) ApplyPoints(ctx context.Context, ch PointsChange) (*PointsResult, error) {
	if ch.ExpectedPoints+ch.Delta < 0 {
		return nil, fmt.Errorf("apply points: balance %d cannot absorb %d", ch.ExpectedPoints, ch.Delta)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE customers SET points = points + ?, tier = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND merchant_id = ? AND points = ?`,
		ch.Delta, string(ch.Tier), ch.CustomerID, ch.MerchantID, ch.ExpectedPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("update customer points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE merchants SET customers_points = MAX(0, customers_points + ?), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		ch.Delta, ch.MerchantID,
	); err != nil {
		return nil, fmt.Errorf("update merchant points: %w", err)
	}

	act, err := insertActivity(ctx, tx, &model.Activity{
		CustomerID: ch.CustomerID,
		MerchantID: ch.MerchantID,
		Event:      ch.Event,
		Points:     ch.Delta,
		Metadata:   ch.Metadata,
	})
	if err != nil {
		return nil, err
	}

	var merchantPoints int
	if err := tx.QueryRowContext(ctx,
		`SELECT customers_points FROM merchants WHERE id = ?`, ch.MerchantID,
	).Scan(&merchantPoints); err != nil {
		return nil, fmt.Errorf("read merchant points: %w", err)
	}

	c, err := scanCustomer(tx.QueryRowContext(ctx,
		`SELECT `+customerCols+` FROM customers WHERE id = ?`, ch.CustomerID,
	))
	if err != nil {
		return nil, fmt.Errorf("read customer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit points: %w", err)
	}

	return &PointsResult{Customer: c, Activity: act, MerchantPoints: merchantPoints}, nil
}
