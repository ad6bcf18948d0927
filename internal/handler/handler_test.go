package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/coupon"
	"github.com/dukerupert/loyalty/internal/database"
	"github.com/dukerupert/loyalty/internal/engine"
	"github.com/dukerupert/loyalty/internal/ledger"
	"github.com/dukerupert/loyalty/internal/logging"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/notify"
	"github.com/dukerupert/loyalty/internal/store"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *notify.Content) {}
func (nopNotifier) Alert(context.Context, notify.Alert)     {}

type testEnv struct {
	merchants  *store.MerchantStore
	customers  *store.CustomerStore
	activities *store.ActivityStore
	rewards    *store.RewardStore
	coupons    *store.CouponStore
	push       *store.PushStore
	ledger     *ledger.Ledger
	engine     *engine.Engine
	merchant   *model.Merchant
}

func setupEnv(t *testing.T, settings model.LoyaltySettings) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	env := &testEnv{
		merchants:  store.NewMerchantStore(db),
		customers:  store.NewCustomerStore(db),
		activities: store.NewActivityStore(db),
		rewards:    store.NewRewardStore(db),
		coupons:    store.NewCouponStore(db),
		push:       store.NewPushStore(db),
	}
	env.ledger = ledger.New(env.customers, env.activities, logger)
	issuer := coupon.NewIssuer(env.rewards, env.coupons, env.activities, nopNotifier{}, logger)
	env.engine = engine.New(env.merchants, env.customers, env.ledger, issuer, nopNotifier{}, logger)

	env.merchant, err = env.merchants.Create(context.Background(), &model.Merchant{
		ExternalID:           "1305146709",
		Name:                 "Coffee House",
		Username:             "coffeehouse",
		LoyaltySettings:      settings,
		NotificationSettings: &model.NotificationSettings{EarnNewPoints: true},
	})
	require.NoError(t, err)
	return env
}

// asMerchant attaches the environment's merchant the way RequireMerchant does.
func (e *testEnv) asMerchant(req *http.Request, admin bool) *http.Request {
	return req.WithContext(auth.WithMerchant(req.Context(), auth.MerchantContext{Merchant: e.merchant, Admin: admin}))
}

func (e *testEnv) customer(t *testing.T, externalID string, points int) *model.Customer {
	t.Helper()
	ctx := context.Background()
	c, err := e.customers.Create(ctx, e.merchant.ID, store.NewCustomer{ExternalID: externalID, Name: "Sara", Email: "sara@example.com"})
	require.NoError(t, err)
	if points > 0 {
		_, err := e.ledger.Award(ctx, e.merchant, c.ID, points, "seed", nil)
		require.NoError(t, err)
	}
	return c
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// serve routes req through a mux registered with pattern, as the merchant.
func (e *testEnv) serve(pattern string, h http.HandlerFunc, req *http.Request, admin bool) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, e.asMerchant(req, admin))
	return rec
}
