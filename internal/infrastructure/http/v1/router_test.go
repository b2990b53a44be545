package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/domain/fuelcards"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/infrastructure/http/v1/handlers"
	"fleetledger/internal/infrastructure/http/v1/middleware"
	"fleetledger/internal/ledgertest"
	"fleetledger/pkg/logger"
)

type missCache struct{}

func (missCache) Get(context.Context, stock.BalanceKey) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}
func (missCache) Set(context.Context, stock.BalanceKey, decimal.Decimal) error { return nil }
func (missCache) Delete(context.Context, ...stock.BalanceKey) error          { return nil }

type server struct {
	env    *ledgertest.Env
	org    ledgertest.Org
	router *gin.Engine
	tokens *middleware.JWTService
	token  string
}

func newServer(t *testing.T, checks map[string]handlers.HealthCheck) *server {
	t.Helper()
	env := ledgertest.New()
	org := env.NewOrg()
	tokens := middleware.NewJWTService("test-secret", time.Hour)

	router := NewRouter(RouterConfig{
		Logger:       logger.Nop(),
		Tokens:       tokens,
		HealthChecks: checks,
		Registry:     env.Registry,
		Movements:    env.Movements,
		Balances:     env.Balances,
		Cached:       stock.NewCachedBalances(env.Balances, missCache{}),
		Storno:       env.Storno,
		Rules:        env.Rules,
		Engine:       env.Engine,
		Recalculator: fuelcards.NewRecalculator(env.Store.Directory(), env.Store.Locations(), env.Balances),
	})

	token, err := tokens.IssueToken("dispatcher", org.ID)
	require.NoError(t, err)
	return &server{env: env, org: org, router: router, tokens: tokens, token: token}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doAs(t, s.token, method, path, body)
}

func (s *server) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *server) location(t *testing.T, kind, ownerID string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/stock/locations/"+kind, map[string]string{"ownerId": ownerID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		ID string `json:"id"`
	}](t, w).ID
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newServer(t, nil)

	w := s.doAs(t, "", http.MethodGet, "/api/v1/stock/locations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[map[string]any](t, w)["code"])

	w = s.doAs(t, "garbage", http.MethodGet, "/api/v1/stock/locations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_PostTransferAndReadBalances(t *testing.T) {
	s := newServer(t, nil)
	wh := s.location(t, "warehouse", s.org.Warehouse.String())
	tank := s.location(t, "vehicle-tank", s.org.Vehicle.String())

	// Repeating registration returns the same location.
	assert.Equal(t, wh, s.location(t, "warehouse", s.org.Warehouse.String()))

	w := s.do(t, http.MethodPost, "/api/v1/stock/movements/income", map[string]any{
		"stockLocationId": wh,
		"stockItemId":     s.org.Item.String(),
		"quantity":        "100.5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	income := decode[stock.Movement](t, w)
	assert.Equal(t, stock.MovementIncome, income.Type)

	w = s.do(t, http.MethodPost, "/api/v1/stock/movements/transfer", map[string]any{
		"fromStockLocationId": wh,
		"toStockLocationId":   tank,
		"stockItemId":         s.org.Item.String(),
		"quantity":            40,
		"documentType":        "WAYBILL",
		"documentId":          "wb-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/stock/balance?locationId="+wh+"&stockItemId="+s.org.Item.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, ledgertest.Qty("60.5").Equal(decode[struct {
		Balance decimal.Decimal `json:"balance"`
	}](t, w).Balance))

	w = s.do(t, http.MethodGet, "/api/v1/stock/balance/current?locationId="+tank+"&stockItemId="+s.org.Item.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, ledgertest.Qty("40").Equal(decode[struct {
		Balance decimal.Decimal `json:"balance"`
	}](t, w).Balance))

	w = s.do(t, http.MethodGet, "/api/v1/stock/balances?stockItemId="+s.org.Item.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	balances := decode[struct {
		Items []stock.LocationBalance `json:"items"`
	}](t, w).Items
	require.Len(t, balances, 2)
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Balance)
	}
	assert.True(t, ledgertest.Qty("100.5").Equal(total))

	w = s.do(t, http.MethodGet, "/api/v1/stock/movements/"+income.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/stock/movements?documentType=WAYBILL&documentId=wb-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Items []stock.Movement `json:"items"`
	}](t, w).Items, 1)
}

func TestRouter_StornoRestoresBalance(t *testing.T) {
	s := newServer(t, nil)
	wh := s.location(t, "warehouse", s.org.Warehouse.String())

	w := s.do(t, http.MethodPost, "/api/v1/stock/movements/expense", map[string]any{
		"stockLocationId": wh,
		"stockItemId":     s.org.Item.String(),
		"quantity":        "12.25",
		"documentType":    "WAYBILL",
		"documentId":      "wb-7",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	storno := map[string]string{"documentType": "WAYBILL", "documentId": "wb-7", "reason": "entered twice"}
	w = s.do(t, http.MethodPost, "/api/v1/stock/storno", storno)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[stock.StornoResult](t, w)
	assert.Equal(t, 1, res.Count)
	assert.False(t, res.AlreadyReversed)

	w = s.do(t, http.MethodPost, "/api/v1/stock/storno", storno)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[stock.StornoResult](t, w).AlreadyReversed)

	w = s.do(t, http.MethodGet, "/api/v1/stock/balance?locationId="+wh+"&stockItemId="+s.org.Item.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[struct {
		Balance decimal.Decimal `json:"balance"`
	}](t, w).Balance.IsZero())
}

func TestRouter_Validation(t *testing.T) {
	s := newServer(t, nil)
	wh := s.location(t, "warehouse", s.org.Warehouse.String())

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{
			name:  "too many fractional digits",
			path:  "/api/v1/stock/movements/income",
			body:  map[string]any{"stockLocationId": wh, "stockItemId": s.org.Item.String(), "quantity": "1.0001"},
			field: "quantity",
		},
		{
			name:  "malformed location id",
			path:  "/api/v1/stock/movements/income",
			body:  map[string]any{"stockLocationId": "nope", "stockItemId": s.org.Item.String(), "quantity": "1"},
			field: "stockLocationId",
		},
		{
			name:  "unknown location type",
			path:  "/api/v1/stock/locations/barrel",
			body:  map[string]any{"ownerId": s.org.Warehouse.String()},
			field: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decode[map[string]any](t, w)
			assert.Equal(t, "VALIDATION_ERROR", body["code"])
			assert.Equal(t, tt.field, body["details"].(map[string]any)["field"])
		})
	}

	w := s.do(t, http.MethodGet, "/api/v1/stock/statement?locationId="+wh+"&stockItemId="+s.org.Item.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ForeignLocationIsNotFound(t *testing.T) {
	s := newServer(t, nil)
	other := s.env.NewOrg()
	foreign := s.env.WarehouseLoc(t, other)

	w := s.do(t, http.MethodGet, "/api/v1/stock/balance?locationId="+foreign.ID.String()+"&stockItemId="+other.Item.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/stock/locations/"+foreign.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_TopUp(t *testing.T) {
	s := newServer(t, nil)
	wh := s.env.WarehouseLoc(t, s.org)
	s.env.Income(t, s.org, wh.ID, "500", time.Now().Add(-48*time.Hour))

	w := s.do(t, http.MethodPost, "/api/v1/topup/rules", map[string]any{
		"fuelCardId":   s.org.Card.String(),
		"stockItemId":  s.org.Item.String(),
		"scheduleType": "DAILY",
		"amountLiters": "50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/topup/run", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	operator, err := s.tokens.IssueToken("ops", s.org.ID, RoleOperator)
	require.NoError(t, err)
	w = s.doAs(t, operator, http.MethodPost, "/api/v1/topup/run", map[string]any{"batchSize": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["toppedUp"])

	w = s.do(t, http.MethodGet, "/api/v1/topup/cards/"+s.org.Card.String()+"/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Items []map[string]any `json:"items"`
	}](t, w).Items, 1)

	w = s.do(t, http.MethodPost, "/api/v1/fuel-cards/recalculate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["updated"])
}

func TestRouter_Health(t *testing.T) {
	s := newServer(t, map[string]handlers.HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	w := s.doAs(t, "", http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.doAs(t, "", http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decode[map[string]any](t, w)["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Contains(t, checks["redis"], "connection refused")
}
