package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/store"
)

type CustomerHandler struct {
	customerStore *store.CustomerStore
	activityStore *store.ActivityStore
	couponStore   *store.CouponStore
	logger        *slog.Logger
}

func NewCustomerHandler(cs *store.CustomerStore, as *store.ActivityStore, cps *store.CouponStore, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{customerStore: cs, activityStore: as, couponStore: cps, logger: logger}
}

// List handles GET /api/merchants/{merchant}/customers
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customerStore.ListByMerchant(r.Context(), auth.MerchantID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}
	if customers == nil {
		customers = []model.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

// customer loads the {id} customer for the authenticated merchant, writing
// the error response itself when it cannot.
func (h *CustomerHandler) customer(w http.ResponseWriter, r *http.Request) *model.Customer {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	c, err := h.customerStore.Get(r.Context(), auth.MerchantID(r.Context()), id)
	if err != nil {
		h.logger.Error("get customer", "customer_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get customer")
		return nil
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return nil
	}
	return c
}

// Get handles GET /api/merchants/{merchant}/customers/{id}
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	if c := h.customer(w, r); c != nil {
		writeJSON(w, http.StatusOK, c)
	}
}

// Activity handles GET /api/merchants/{merchant}/customers/{id}/activity?limit=N
func (h *CustomerHandler) Activity(w http.ResponseWriter, r *http.Request) {
	c := h.customer(w, r)
	if c == nil {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	acts, err := h.activityStore.ListByCustomer(r.Context(), c.MerchantID, c.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}
	if acts == nil {
		acts = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, acts)
}

// Coupons handles GET /api/merchants/{merchant}/customers/{id}/coupons
func (h *CustomerHandler) Coupons(w http.ResponseWriter, r *http.Request) {
	c := h.customer(w, r)
	if c == nil {
		return
	}

	coupons, err := h.couponStore.ListByCustomer(r.Context(), c.MerchantID, c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list coupons")
		return
	}
	if coupons == nil {
		coupons = []model.Coupon{}
	}
	writeJSON(w, http.StatusOK, coupons)
}
