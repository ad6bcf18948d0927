package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/dukerupert/loyalty/internal/engine"
	"github.com/dukerupert/loyalty/internal/logging"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessEventEndpoint(t *testing.T) {
	env := setupEnv(t, model.LoyaltySettings{model.RulePurchase: {Enabled: true}})
	c := env.customer(t, "555", 0)
	h := NewEventHandler(env.engine, logging.Discard())

	body := `{"event":"purchase","customer_id":` + strconv.FormatInt(c.ID, 10) + `,"payload":{"amount":"64.9","orderId":77}}`
	rec := env.serve("POST /e/{merchant}", h.Process, httptest.NewRequest("POST", "/e/1305146709", strings.NewReader(body)), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res engine.Result
	decodeBody(t, rec, &res)
	assert.Equal(t, 64, res.PointsAwarded)
	assert.Equal(t, 64, res.Balance)
}

func TestProcessEventErrors(t *testing.T) {
	env := setupEnv(t, nil)
	c := env.customer(t, "555", 0)
	h := NewEventHandler(env.engine, logging.Discard())
	id := strconv.FormatInt(c.ID, 10)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unsupported", `{"event":"cartAbandoned","customer_id":` + id + `}`, http.StatusBadRequest},
		{"missing customer id", `{"event":"welcome"}`, http.StatusBadRequest},
		{"bad amount", `{"event":"purchase","customer_id":` + id + `,"payload":{"amount":"lots"}}`, http.StatusBadRequest},
		{"unknown customer", `{"event":"welcome","customer_id":9999}`, http.StatusNotFound},
		{"invalid json", `[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.serve("POST /e/{merchant}", h.Process, httptest.NewRequest("POST", "/e/1305146709", strings.NewReader(tt.body)), true)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
