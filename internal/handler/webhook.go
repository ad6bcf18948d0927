package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/engine"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/store"
)

// Store platform webhook event names.
const (
	HookOrderCreated    = "order.created"
	HookOrderUpdated    = "order.updated"
	HookOrderDeleted    = "order.deleted"
	HookOrderRefunded   = "order.refunded"
	HookCustomerCreated = "customer.created"
	HookCustomerLogin   = "customer.login"
	HookFeedbackCreated = "app.feedback.created"
	HookReviewAdded     = "review.added"
	HookProductCreated  = "product.created"
	HookProductUpdated  = "product.updated"
	HookAppInstalled    = "app.installed"
)

// acknowledged are accepted but carry nothing for the loyalty program.
var acknowledged = map[string]bool{
	HookOrderUpdated:   true,
	HookProductCreated: true,
	HookProductUpdated: true,
	HookAppInstalled:   true,
}

// EventProcessor is satisfied by *engine.Engine.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev engine.Event) (*engine.Result, error)
}

type WebhookHandler struct {
	customerStore *store.CustomerStore
	activityStore *store.ActivityStore
	engine        EventProcessor
	now           func() time.Time
	logger        *slog.Logger
}

func NewWebhookHandler(cs *store.CustomerStore, as *store.ActivityStore, e EventProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{customerStore: cs, activityStore: as, engine: e, now: time.Now, logger: logger}
}

type webhookRequest struct {
	Event    string          `json:"event"`
	Merchant flexString      `json:"merchant"`
	Data     json.RawMessage `json:"data"`
}

type webhookResponse struct {
	Message string           `json:"message"`
	Event   string           `json:"event"`
	Results []*engine.Result `json:"results"`
}

// errNotFound marks a webhook that names a customer this merchant does not have.
var errNotFound = errors.New("customer not found")

// Receive handles POST /webhooks/{merchant}. The merchant has already been
// authenticated by middleware.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	merchant := auth.Merchant(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Merchant != "" && string(req.Merchant) != merchant.ExternalID {
		writeError(w, http.StatusBadRequest, "merchant mismatch")
		return
	}

	log := h.logger.With("hook", req.Event, "merchant_id", merchant.ID)

	var (
		results []*engine.Result
		err     error
	)
	switch req.Event {
	case HookOrderCreated:
		results, err = h.orderCreated(r.Context(), merchant, req.Data)
	case HookCustomerCreated:
		results, err = h.customerCreated(r.Context(), merchant, req.Data)
	case HookCustomerLogin:
		results, err = h.customerLogin(r.Context(), merchant, req.Data)
	case HookOrderDeleted:
		results, err = h.orderChanged(r.Context(), merchant, req.Data, model.ReasonOrderDeleted)
	case HookOrderRefunded:
		results, err = h.orderChanged(r.Context(), merchant, req.Data, model.ReasonOrderRefunded)
	case HookFeedbackCreated:
		results, err = h.feedbackCreated(r.Context(), merchant, req.Data)
	case HookReviewAdded:
		results, err = h.reviewAdded(r.Context(), merchant, req.Data)
	default:
		if acknowledged[req.Event] {
			log.Debug("webhook acknowledged")
			writeJSON(w, http.StatusOK, webhookResponse{Message: "acknowledged", Event: req.Event, Results: []*engine.Result{}})
			return
		}
		log.Warn("unknown webhook event")
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown event type",
			"event": req.Event,
		})
		return
	}

	switch {
	case errors.Is(err, errNotFound), errors.Is(err, engine.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "customer not found")
		return
	case errors.Is(err, errBadPayload), errors.Is(err, engine.ErrInvalidPayload):
		log.Warn("bad webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error("process webhook", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	if results == nil {
		results = []*engine.Result{}
	}
	writeJSON(w, http.StatusOK, webhookResponse{Message: "processed", Event: req.Event, Results: results})
}

var errBadPayload = errors.New("invalid webhook data")

func decodeData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", errBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// upsertCustomer returns the stored customer for pc, creating it when the
// merchant has not seen it yet.
func (h *WebhookHandler) upsertCustomer(ctx context.Context, merchant *model.Merchant, pc platformCustomer, orders int) (*model.Customer, bool, error) {
	if pc.ID == "" {
		return nil, false, fmt.Errorf("%w: customer id is required", errBadPayload)
	}
	c, err := h.customerStore.GetByExternalID(ctx, merchant.ID, string(pc.ID))
	if err != nil {
		return nil, false, err
	}
	if c != nil {
		return c, false, nil
	}

	nc := store.NewCustomer{
		ExternalID: string(pc.ID),
		Name:       pc.displayName(),
		Email:      pc.Email,
		Phone:      pc.phone(),
		OrderCount: orders,
	}
	if pc.DateOfBirth != "" {
		if dob, err := parseDate(pc.DateOfBirth); err == nil {
			nc.DateOfBirth = &dob
		} else {
			h.logger.Debug("ignoring unparseable date of birth", "value", pc.DateOfBirth)
		}
	}
	c, err = h.customerStore.Create(ctx, merchant.ID, nc)
	if err != nil {
		return nil, false, err
	}
	h.logger.Info("customer created", "merchant_id", merchant.ID, "customer_id", c.ID)
	return c, true, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (h *WebhookHandler) process(ctx context.Context, merchant *model.Merchant, c *model.Customer, name string, p engine.Payload) (*engine.Result, error) {
	return h.engine.ProcessEvent(ctx, engine.Event{Name: name, MerchantID: merchant.ID, CustomerID: c.ID, Payload: p})
}

// welcome awards welcome points to a customer seen for the first time. A
// failure is logged and does not fail the webhook.
func (h *WebhookHandler) welcome(ctx context.Context, merchant *model.Merchant, c *model.Customer, source string) *engine.Result {
	res, err := h.process(ctx, merchant, c, model.EventWelcome, engine.GenericPayload{Fields: map[string]string{"source": source}})
	if err != nil {
		h.logger.Error("award welcome points", "merchant_id", merchant.ID, "customer_id", c.ID, "error", err)
		return nil
	}
	return res
}

func (h *WebhookHandler) orderCreated(ctx context.Context, merchant *model.Merchant, data json.RawMessage) ([]*engine.Result, error) {
	var order orderCreated
	if err := decodeData(data, &order); err != nil {
		return nil, err
	}

	c, created, err := h.upsertCustomer(ctx, merchant, order.Customer, 1)
	if err != nil {
		return nil, err
	}

	var results []*engine.Result
	if created {
		if res := h.welcome(ctx, merchant, c, "order_created_webhook"); res != nil {
			results = append(results, res)
		}
	} else if err := h.customerStore.IncrementOrderCount(ctx, merchant.ID, c.ID); err != nil {
		return nil, err
	}

	res, err := h.process(ctx, merchant, c, model.EventPurchase, engine.PurchasePayload{
		OrderID:     string(order.ID),
		Amount:      order.Amounts.Total.Decimal,
		Currency:    order.Currency,
		ReferenceID: string(order.ReferenceID),
	})
	if err != nil {
		return nil, err
	}
	return append(results, res), nil
}

func (h *WebhookHandler) customerCreated(ctx context.Context, merchant *model.Merchant, data json.RawMessage) ([]*engine.Result, error) {
	var pc platformCustomer
	if err := decodeData(data, &pc); err != nil {
		return nil, err
	}
	c, created, err := h.upsertCustomer(ctx, merchant, pc, 0)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	if res := h.welcome(ctx, merchant, c, "customer_created_webhook"); res != nil {
		return []*engine.Result{res}, nil
	}
	return nil, nil
}

// customerLogin awards birthday points on the customer's first login of
// their birthday each year.
func (h *WebhookHandler) customerLogin(ctx context.Context, merchant *model.Merchant, data json.RawMessage) ([]*engine.Result, error) {
	var login customerLogin
	if err := decodeData(data, &login); err != nil {
		return nil, err
	}
	c, err := h.existingCustomer(ctx, merchant, string(login.Customer.ID))
	if err != nil {
		return nil, err
	}

	today := h.now()
	if !c.IsBirthday(today) {
		return nil, nil
	}

	startOfYear := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
	seen, err := h.activityStore.HasEventSince(ctx, merchant.ID, c.ID, model.EventBirthday, startOfYear)
	if err != nil {
		return nil, err
	}
	if seen {
		h.logger.Debug("birthday already rewarded this year", "merchant_id", merchant.ID, "customer_id", c.ID)
		return nil, nil
	}

	res, err := h.process(ctx, merchant, c, model.EventBirthday, engine.BirthdayPayload{Date: today})
	if err != nil {
		return nil, err
	}
	return []*engine.Result{res}, nil
}

// orderChanged turns a deleted or refunded order into a deduction worth the
// points the amount would have earned.
func (h *WebhookHandler) orderChanged(ctx context.Context, merchant *model.Merchant, data json.RawMessage, reason string) ([]*engine.Result, error) {
	var order orderChange
	if err := decodeData(data, &order); err != nil {
		return nil, err
	}
	c, err := h.existingCustomer(ctx, merchant, order.customerID())
	if err != nil {
		return nil, err
	}

	amount := order.Total.Decimal
	if reason == model.ReasonOrderRefunded && order.RefundAmount.IsPositive() {
		amount = order.RefundAmount.Decimal
	}
	if !amount.IsPositive() {
		return nil, nil
	}

	points := engine.PurchasePoints(amount, merchant.CurrencyUnit())
	if points <= 0 {
		return nil, nil
	}

	res, err := h.process(ctx, merchant, c, model.EventPointsDeduction, engine.DeductionPayload{
		OrderID:        string(order.ID),
		Amount:         amount,
		PointsDeducted: points,
		Reason:         reason,
		OriginalEvent:  reason,
	})
	if err != nil {
		return nil, err
	}
	return []*engine.Result{res}, nil
}

func (h *WebhookHandler) feedbackCreated(ctx context.Context, merchant *model.Merchant, data json.RawMessage) ([]*engine.Result, error) {
	var fb feedbackCreated
	if err := decodeData(data, &fb); err != nil {
		return nil, err
	}
	c, err := h.existingCustomer(ctx, merchant, string(fb.CustomerID))
	if err != nil {
		return nil, err
	}
	res, err := h.process(ctx, merchant, c, model.EventFeedback, engine.GenericPayload{Fields: map[string]string{
		"feedbackId": string(fb.ID),
		"rating":     string(fb.Rating),
	}})
	if err != nil {
		return nil, err
	}
	return []*engine.Result{res}, nil
}

func (h *WebhookHandler) reviewAdded(ctx context.Context, merchant *model.Merchant, data json.RawMessage) ([]*engine.Result, error) {
	var review reviewAdded
	if err := decodeData(data, &review); err != nil {
		return nil, err
	}
	c, err := h.existingCustomer(ctx, merchant, string(review.Customer.ID))
	if err != nil {
		return nil, err
	}
	fields := map[string]string{"rating": string(review.Rating)}
	if review.ID != "" {
		fields["reviewId"] = string(review.ID)
	}
	if review.Product != nil && review.Product.ID != "" {
		fields["productId"] = string(review.Product.ID)
	}
	res, err := h.process(ctx, merchant, c, model.EventRating, engine.GenericPayload{Fields: fields})
	if err != nil {
		return nil, err
	}
	return []*engine.Result{res}, nil
}

func (h *WebhookHandler) existingCustomer(ctx context.Context, merchant *model.Merchant, externalID string) (*model.Customer, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: customer id is required", errBadPayload)
	}
	c, err := h.customerStore.GetByExternalID(ctx, merchant.ID, externalID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errNotFound
	}
	return c, nil
}
