package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
)

// ActivityStore is the append-only loyalty audit log. It has no update or
// delete methods and the table rejects updates.
type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

const activityCols = `id, customer_id, merchant_id, event, points, metadata, created_at`

type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanActivity(sc scanner) (*model.Activity, error) {
	var a model.Activity
	var meta string
	if err := sc.Scan(&a.ID, &a.CustomerID, &a.MerchantID, &a.Event, &a.Points, &meta, &a.CreatedAt); err != nil {
		return nil, err
	}
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	a.Metadata = m
	return &a, nil
}

func insertActivity(ctx context.Context, q queryExecer, a *model.Activity) (*model.Activity, error) {
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return nil, err
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO loyalty_activities (customer_id, merchant_id, event, points, metadata) VALUES (?, ?, ?, ?, ?)`,
		a.CustomerID, a.MerchantID, a.Event, a.Points, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	out, err := scanActivity(q.QueryRowContext(ctx, `SELECT `+activityCols+` FROM loyalty_activities WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	return out, nil
}

// Append records an activity that does not move the balance, such as a
// coupon-generation marker.
func (s *ActivityStore) Append(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	return insertActivity(ctx, s.db, a)
}

// ListByCustomer returns a customer's activity, newest first.
func (s *ActivityStore) ListByCustomer(ctx context.Context, merchantID, customerID int64, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityCols+` FROM loyalty_activities
		 WHERE merchant_id = ? AND customer_id = ? ORDER BY id DESC LIMIT ?`,
		merchantID, customerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities by customer: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

// ListAfter returns a merchant's activity with id > afterID in id order.
func (s *ActivityStore) ListAfter(ctx context.Context, merchantID, afterID int64, limit int) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityCols+` FROM loyalty_activities
		 WHERE merchant_id = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		merchantID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities after %d: %w", afterID, err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

// SumByCustomer returns the net signed points recorded per customer.
func (s *ActivityStore) SumByCustomer(ctx context.Context, merchantID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, COALESCE(SUM(points), 0) FROM loyalty_activities
		 WHERE merchant_id = ? GROUP BY customer_id`,
		merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("sum activities: %w", err)
	}
	defer rows.Close()

	sums := make(map[int64]int)
	for rows.Next() {
		var id int64
		var sum int
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("scan activity sum: %w", err)
		}
		sums[id] = sum
	}
	return sums, rows.Err()
}

func scanActivities(rows *sql.Rows) ([]model.Activity, error) {
	var out []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// HasEventSince reports whether the customer has an activity for event
// recorded at or after since.
func (s *ActivityStore) HasEventSince(ctx context.Context, merchantID, customerID int64, event string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loyalty_activities
		 WHERE merchant_id = ? AND customer_id = ? AND event = ? AND created_at >= ?`,
		merchantID, customerID, event, since.UTC().Format(time.DateTime),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check activity since: %w", err)
	}
	return n > 0, nil
}
