package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/store"
	"github.com/dukerupert/loyalty/internal/websocket"
)

type RewardHandler struct {
	rewardStore *store.RewardStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewardStore: rs, hub: hub, logger: logger}
}

func (h *RewardHandler) publish(merchantID int64, action string, id int64) {
	if h.hub != nil {
		h.hub.Publish(merchantID, "reward", action, id, nil)
	}
}

type rewardRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Active      *bool      `json:"is_active"`
	ExpiryDate  *time.Time `json:"expiry_date"`
}

func (req *rewardRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	return ""
}

func (req *rewardRequest) active() bool {
	return req.Active == nil || *req.Active
}

// Create handles POST /api/merchants/{merchant}/rewards. Rewards are
// active unless is_active is false.
func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchantID := auth.MerchantID(r.Context())

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	reward, err := h.rewardStore.Create(r.Context(), merchantID, req.Title, req.Description, req.active(), req.ExpiryDate)
	if err != nil {
		h.logger.Error("create reward", "merchant_id", merchantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reward")
		return
	}

	h.publish(merchantID, "created", reward.ID)
	writeJSON(w, http.StatusCreated, reward)
}

// List handles GET /api/merchants/{merchant}/rewards
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardStore.List(r.Context(), auth.MerchantID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rewards")
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

// Update handles PUT /api/merchants/{merchant}/rewards/{id}
func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	merchantID := auth.MerchantID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.rewardStore.GetByID(r.Context(), merchantID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reward")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}

	reward, err := h.rewardStore.Update(r.Context(), merchantID, id, req.Title, req.Description, active, req.ExpiryDate)
	if err != nil {
		h.logger.Error("update reward", "merchant_id", merchantID, "reward_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reward")
		return
	}

	h.publish(merchantID, "updated", id)
	writeJSON(w, http.StatusOK, reward)
}

// Delete handles DELETE /api/merchants/{merchant}/rewards/{id}. Rewards
// that already back coupons are rejected with 409.
func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	merchantID := auth.MerchantID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.rewardStore.GetByID(r.Context(), merchantID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reward")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}

	err = h.rewardStore.Delete(r.Context(), merchantID, id)
	if errors.Is(err, store.ErrInUse) {
		writeError(w, http.StatusConflict, "reward has issued coupons; deactivate it instead")
		return
	}
	if err != nil {
		h.logger.Error("delete reward", "merchant_id", merchantID, "reward_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reward")
		return
	}

	h.publish(merchantID, "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
