package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/tier"
	"github.com/shopspring/decimal"
)

type MerchantStore struct {
	db *sql.DB
}

func NewMerchantStore(db *sql.DB) *MerchantStore {
	return &MerchantStore{db: db}
}

const merchantCols = `id, external_id, name, username, domain, loyalty_settings, points_per_currency_unit,
	reward_threshold, tier_bronze, tier_silver, tier_gold, tier_platinum, customers_points,
	notification_settings, webhook_secret_hash, created_at, updated_at`

func scanMerchant(sc scanner) (*model.Merchant, error) {
	var m model.Merchant
	var settings string
	var notif sql.NullString

	err := sc.Scan(
		&m.ID, &m.ExternalID, &m.Name, &m.Username, &m.Domain, &settings, &m.PointsPerCurrencyUnit,
		&m.RewardThreshold, &m.TierBronze, &m.TierSilver, &m.TierGold, &m.TierPlatinum, &m.CustomersPoints,
		&notif, &m.WebhookSecretHash, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.LoyaltySettings = model.LoyaltySettings{}
	if err := json.Unmarshal([]byte(settings), &m.LoyaltySettings); err != nil {
		return nil, fmt.Errorf("unmarshal loyalty settings: %w", err)
	}
	if notif.Valid && notif.String != "" {
		var ns model.NotificationSettings
		if err := json.Unmarshal([]byte(notif.String), &ns); err != nil {
			return nil, fmt.Errorf("unmarshal notification settings: %w", err)
		}
		m.NotificationSettings = &ns
	}
	return &m, nil
}

func marshalNotificationSettings(ns *model.NotificationSettings) (sql.NullString, error) {
	if ns == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ns)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal notification settings: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Create inserts a merchant with its rule configuration. CustomersPoints
// always starts at zero.
func (s *MerchantStore) Create(ctx context.Context, m *model.Merchant) (*model.Merchant, error) {
	settings, err := json.Marshal(nonNilSettings(m.LoyaltySettings))
	if err != nil {
		return nil, fmt.Errorf("marshal loyalty settings: %w", err)
	}
	notif, err := marshalNotificationSettings(m.NotificationSettings)
	if err != nil {
		return nil, err
	}
	ppu := m.PointsPerCurrencyUnit
	if ppu.IsZero() {
		ppu = decimal.NewFromInt(1)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO merchants (external_id, name, username, domain, loyalty_settings, points_per_currency_unit,
			reward_threshold, tier_bronze, tier_silver, tier_gold, tier_platinum, notification_settings, webhook_secret_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ExternalID, m.Name, m.Username, m.Domain, string(settings), ppu.String(),
		m.RewardThreshold, m.TierBronze, m.TierSilver, m.TierGold, m.TierPlatinum, notif, m.WebhookSecretHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert merchant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MerchantStore) GetByID(ctx context.Context, id int64) (*model.Merchant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+merchantCols+` FROM merchants WHERE id = ?`, id)
	m, err := scanMerchant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	return m, nil
}

// GetByExternalID looks a merchant up by the store platform's identifier.
func (s *MerchantStore) GetByExternalID(ctx context.Context, externalID string) (*model.Merchant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+merchantCols+` FROM merchants WHERE external_id = ?`, externalID)
	m, err := scanMerchant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant by external id: %w", err)
	}
	return m, nil
}

func (s *MerchantStore) List(ctx context.Context) ([]model.Merchant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+merchantCols+` FROM merchants ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	defer rows.Close()

	var merchants []model.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		merchants = append(merchants, *m)
	}
	return merchants, rows.Err()
}

// LoyaltyConfig is the merchant-editable part of the rule configuration.
type LoyaltyConfig struct {
	Settings              model.LoyaltySettings
	PointsPerCurrencyUnit decimal.Decimal
	RewardThreshold       int
	TierBronze            int
	TierSilver            int
	TierGold              int
	TierPlatinum          int
}

func (s *MerchantStore) UpdateLoyaltyConfig(ctx context.Context, id int64, cfg LoyaltyConfig) (*model.Merchant, error) {
	settings, err := json.Marshal(nonNilSettings(cfg.Settings))
	if err != nil {
		return nil, fmt.Errorf("marshal loyalty settings: %w", err)
	}
	ppu := cfg.PointsPerCurrencyUnit
	if !ppu.IsPositive() {
		ppu = decimal.NewFromInt(1)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE merchants SET loyalty_settings = ?, points_per_currency_unit = ?, reward_threshold = ?,
			tier_bronze = ?, tier_silver = ?, tier_gold = ?, tier_platinum = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(settings), ppu.String(), cfg.RewardThreshold,
		cfg.TierBronze, cfg.TierSilver, cfg.TierGold, cfg.TierPlatinum, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update loyalty config: %w", err)
	}

	// Stored tiers must follow the new thresholds.
	t := tier.Thresholds{
		Bronze:   cfg.TierBronze,
		Silver:   cfg.TierSilver,
		Gold:     cfg.TierGold,
		Platinum: cfg.TierPlatinum,
	}.WithDefaults()
	_, err = tx.ExecContext(ctx,
		`UPDATE customers SET tier = CASE
			WHEN points >= ? THEN ?
			WHEN points >= ? THEN ?
			WHEN points >= ? THEN ?
			ELSE ? END
		 WHERE merchant_id = ?`,
		t.Platinum, string(model.TierPlatinum),
		t.Gold, string(model.TierGold),
		t.Silver, string(model.TierSilver),
		string(model.TierBronze), id,
	)
	if err != nil {
		return nil, fmt.Errorf("recompute customer tiers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit loyalty config: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MerchantStore) UpdateNotificationSettings(ctx context.Context, id int64, ns *model.NotificationSettings) (*model.Merchant, error) {
	notif, err := marshalNotificationSettings(ns)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE merchants SET notification_settings = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		notif, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update notification settings: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SetWebhookSecretHash stores the bcrypt hash used to verify inbound webhooks.
func (s *MerchantStore) SetWebhookSecretHash(ctx context.Context, id int64, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE merchants SET webhook_secret_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		hash, id,
	)
	if err != nil {
		return fmt.Errorf("set webhook secret: %w", err)
	}
	return nil
}

func nonNilSettings(s model.LoyaltySettings) model.LoyaltySettings {
	if s == nil {
		return model.LoyaltySettings{}
	}
	return s
}
