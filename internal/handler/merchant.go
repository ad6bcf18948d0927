package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/ledger"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/store"
	"github.com/dukerupert/loyalty/internal/tier"
	"github.com/shopspring/decimal"
)

type MerchantHandler struct {
	merchantStore *store.MerchantStore
	ledger        *ledger.Ledger
	logger        *slog.Logger
}

func NewMerchantHandler(ms *store.MerchantStore, l *ledger.Ledger, logger *slog.Logger) *MerchantHandler {
	return &MerchantHandler{merchantStore: ms, ledger: l, logger: logger}
}

type loyaltyConfig struct {
	LoyaltySettings       model.LoyaltySettings `json:"loyalty_settings"`
	PointsPerCurrencyUnit decimal.Decimal       `json:"points_per_currency_unit"`
	RewardThreshold       int                   `json:"reward_threshold"`
	TierBronze            int                   `json:"tier_bronze"`
	TierSilver            int                   `json:"tier_silver"`
	TierGold              int                   `json:"tier_gold"`
	TierPlatinum          int                   `json:"tier_platinum"`
	CustomersPoints       int                   `json:"customers_points"`
}

func configOf(m *model.Merchant) loyaltyConfig {
	settings := m.LoyaltySettings
	if settings == nil {
		settings = model.LoyaltySettings{}
	}
	return loyaltyConfig{
		LoyaltySettings:       settings,
		PointsPerCurrencyUnit: m.CurrencyUnit(),
		RewardThreshold:       m.RewardThreshold,
		TierBronze:            m.TierBronze,
		TierSilver:            m.TierSilver,
		TierGold:              m.TierGold,
		TierPlatinum:          m.TierPlatinum,
		CustomersPoints:       m.CustomersPoints,
	}
}

// GetSettings handles GET /api/merchants/{merchant}/settings
func (h *MerchantHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configOf(auth.Merchant(r.Context())))
}

// UpdateSettings handles PUT /api/merchants/{merchant}/settings
func (h *MerchantHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	merchant := auth.Merchant(r.Context())

	var req loyaltyConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := validateConfig(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.merchantStore.UpdateLoyaltyConfig(r.Context(), merchant.ID, store.LoyaltyConfig{
		Settings:              req.LoyaltySettings,
		PointsPerCurrencyUnit: req.PointsPerCurrencyUnit,
		RewardThreshold:       req.RewardThreshold,
		TierBronze:            req.TierBronze,
		TierSilver:            req.TierSilver,
		TierGold:              req.TierGold,
		TierPlatinum:          req.TierPlatinum,
	})
	if err != nil {
		h.logger.Error("update loyalty config", "merchant_id", merchant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, configOf(updated))
}

func validateConfig(c loyaltyConfig) string {
	known := make(map[string]bool, len(model.RuleNames))
	for _, name := range model.RuleNames {
		known[name] = true
	}
	for name, rule := range c.LoyaltySettings {
		if !known[name] {
			return "unknown rule " + name
		}
		if rule.Points < 0 {
			return name + ": points must be >= 0"
		}
		if rule.ThresholdAmount != nil && rule.ThresholdAmount.IsNegative() {
			return name + ": thresholdAmount must be >= 0"
		}
	}
	if c.PointsPerCurrencyUnit.IsNegative() {
		return "points_per_currency_unit must be >= 0"
	}
	if c.RewardThreshold < 0 {
		return "reward_threshold must be >= 0"
	}
	for _, t := range []int{c.TierBronze, c.TierSilver, c.TierGold, c.TierPlatinum} {
		if t < 0 {
			return "tier thresholds must be >= 0"
		}
	}
	// Zero tiers fall back to the defaults, so compare what will be in effect.
	t := tier.Thresholds{
		Bronze:   c.TierBronze,
		Silver:   c.TierSilver,
		Gold:     c.TierGold,
		Platinum: c.TierPlatinum,
	}.WithDefaults()
	if t.Bronze >= t.Silver || t.Silver >= t.Gold || t.Gold >= t.Platinum {
		return "tier thresholds must ascend"
	}
	return ""
}

// UpdateNotifications handles PUT /api/merchants/{merchant}/notifications.
// A null body turns customer notifications off.
func (h *MerchantHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	merchant := auth.Merchant(r.Context())

	var ns *model.NotificationSettings
	if err := json.NewDecoder(r.Body).Decode(&ns); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := h.merchantStore.UpdateNotificationSettings(r.Context(), merchant.ID, ns)
	if err != nil {
		h.logger.Error("update notification settings", "merchant_id", merchant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notification settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notification_settings": updated.NotificationSettings})
}

// RotateSecret handles POST /api/merchants/{merchant}/secret. The new
// secret is returned once and only its hash is kept.
func (h *MerchantHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	merchant := auth.Merchant(r.Context())

	secret, hash, err := auth.NewSecret()
	if err != nil {
		h.logger.Error("generate webhook secret", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}
	if err := h.merchantStore.SetWebhookSecretHash(r.Context(), merchant.ID, hash); err != nil {
		h.logger.Error("store webhook secret", "merchant_id", merchant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store secret")
		return
	}
	h.logger.Info("webhook secret rotated", "merchant_id", merchant.ID)
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// Reconcile handles GET /api/merchants/{merchant}/reconcile
func (h *MerchantHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	merchant := auth.Merchant(r.Context())

	drift, err := h.ledger.Reconcile(r.Context(), merchant.ID)
	if err != nil {
		h.logger.Error("reconcile", "merchant_id", merchant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reconcile")
		return
	}
	if drift == nil {
		drift = []ledger.Drift{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drift": drift})
}
