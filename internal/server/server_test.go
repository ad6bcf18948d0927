package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/config"
	"github.com/dukerupert/loyalty/internal/database"
	"github.com/dukerupert/loyalty/internal/logging"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router      http.Handler
	srv         *Server
	merchant    *model.Merchant
	secret      string
	adminSecret string
}

func setupServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adminSecret, adminHash, err := auth.NewSecret()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.AdminTokenHash = adminHash
	if mutate != nil {
		mutate(cfg)
	}
	srv := New(db, cfg, logging.Discard())
	t.Cleanup(srv.Dispatcher().Wait)

	secret, hash, err := auth.NewSecret()
	require.NoError(t, err)
	m, err := srv.MerchantStore().Create(context.Background(), &model.Merchant{
		ExternalID: "1305146709",
		Name:       "Coffee House",
		LoyaltySettings: model.LoyaltySettings{
			model.RulePurchase: {Enabled: true},
		},
		WebhookSecretHash: hash,
	})
	require.NoError(t, err)

	return &testServer{router: srv.Router(), srv: srv, merchant: m, secret: secret, adminSecret: adminSecret}
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

const orderCreated = `{
	"event": "order.created",
	"merchant": 1305146709,
	"data": {"id": 1, "amounts": {"total": {"amount": 42}}, "customer": {"id": 7, "first_name": "Sara"}}
}`

func TestHealth(t *testing.T) {
	ts := setupServer(t, nil)
	rec := ts.do("GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhookThroughRouter(t *testing.T) {
	ts := setupServer(t, nil)

	rec := ts.do("POST", "/webhooks/1305146709", "", orderCreated)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do("POST", "/webhooks/999", ts.secret, orderCreated)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do("POST", "/webhooks/1305146709", ts.secret, orderCreated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do("GET", "/api/merchants/1305146709/customers", ts.secret, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var customers []model.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &customers))
	require.Len(t, customers, 1)
	assert.Equal(t, 42, customers[0].Points)
}

func TestAdminRoutes(t *testing.T) {
	ts := setupServer(t, nil)

	rec := ts.do("GET", "/api/merchants/1305146709/reconcile", ts.secret, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do("GET", "/api/merchants/1305146709/reconcile", ts.adminSecret, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do("GET", "/api/merchants/1305146709/settings", ts.adminSecret, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRateLimit(t *testing.T) {
	ts := setupServer(t, func(c *config.Config) { c.WebhookRateLimit = 1 })

	rec := ts.do("POST", "/webhooks/1305146709", ts.secret, orderCreated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do("POST", "/webhooks/1305146709", ts.secret, orderCreated)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRejectedWebhooksDoNotSpendMerchantQuota(t *testing.T) {
	ts := setupServer(t, func(c *config.Config) { c.WebhookRateLimit = 5 })

	for i := 0; i < 5; i++ {
		rec := ts.do("POST", "/webhooks/1305146709", "not-the-secret", orderCreated)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := ts.do("POST", "/webhooks/1305146709", ts.secret, orderCreated)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPushRoutesNeedVAPIDKeys(t *testing.T) {
	ts := setupServer(t, nil)
	rec := ts.do("GET", "/api/push/vapid-key", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts = setupServer(t, func(c *config.Config) {
		c.Push.VAPIDPublicKey = "pub"
		c.Push.VAPIDPrivateKey = "priv"
	})
	rec = ts.do("GET", "/api/push/vapid-key", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"public_key":"pub"}`, rec.Body.String())
}
