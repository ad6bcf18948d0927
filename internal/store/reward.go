package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(sc scanner) (*model.Reward, error) {
	var r model.Reward
	var active int
	var expiry sql.NullTime

	err := sc.Scan(&r.ID, &r.MerchantID, &r.Title, &r.Description, &active, &expiry, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	r.ExpiryDate = timePtr(expiry)
	return &r, nil
}

const rewardCols = `id, merchant_id, title, description, active, expiry_date, created_at`

func (s *RewardStore) Create(ctx context.Context, merchantID int64, title, description string, active bool, expiry *time.Time) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (merchant_id, title, description, active, expiry_date) VALUES (?, ?, ?, ?, ?)`,
		merchantID, title, description, boolToInt(active), nullTime(expiry),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, merchantID, id)
}

func (s *RewardStore) GetByID(ctx context.Context, merchantID, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ? AND merchant_id = ?`, id, merchantID)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns all of a merchant's rewards, active first, then by title.
func (s *RewardStore) List(ctx context.Context, merchantID int64) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE merchant_id = ? ORDER BY active DESC, title ASC`, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()
	return scanRewards(rows)
}

// ListActive returns a merchant's active rewards in creation order.
func (s *RewardStore) ListActive(ctx context.Context, merchantID int64) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE merchant_id = ? AND active = 1 ORDER BY id ASC`, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active rewards: %w", err)
	}
	defer rows.Close()
	return scanRewards(rows)
}

// FindActive returns the reward that should back a new coupon under policy,
// or nil when the merchant has no active, unexpired reward.
func (s *RewardStore) FindActive(ctx context.Context, merchantID int64, policy model.RewardPolicy) (*model.Reward, error) {
	rewards, err := s.ListActive(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return model.SelectReward(rewards, policy, time.Now()), nil
}

func (s *RewardStore) Update(ctx context.Context, merchantID, id int64, title, description string, active bool, expiry *time.Time) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET title = ?, description = ?, active = ?, expiry_date = ? WHERE id = ? AND merchant_id = ?`,
		title, description, boolToInt(active), nullTime(expiry), id, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, merchantID, id)
}

func scanRewards(rows *sql.Rows) ([]model.Reward, error) {
	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// Delete removes a reward. Rewards that already back coupons cannot be
// deleted; deactivate them instead.
func (s *RewardStore) Delete(ctx context.Context, merchantID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ? AND merchant_id = ?`, id, merchantID)
	if isForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}
