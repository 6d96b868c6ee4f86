package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accountmart-api/internal/handler"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixedRate struct{}

func (fixedRate) Rate(context.Context) decimal.Decimal { return decimal.RequireFromString("34.5") }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func (c *apiClient) do(method, path, token string, body interface{}) (*http.Response, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func (c *apiClient) data(env envelope, dst interface{}) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(env.Data, dst))
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	store := repository.NewMemoryStore()

	tokens, err := service.NewTokenService("router-test", time.Hour, nil)
	require.NoError(t, err)
	auth, err := service.NewAuthService(store, tokens, nil, service.AuthConfig{
		Operator:   service.OperatorCredentials{Username: "admin", Password: "admin-pass"},
		BcryptCost: bcrypt.MinCost,
	}, nil)
	require.NoError(t, err)

	catalog := service.NewCatalogService(store, nil)
	purchases := service.NewPurchaseService(store, nil, nil)
	payments := service.NewPaymentService(store, fixedRate{}, nil, nil)
	admin := service.NewAdminService(store, nil)

	r := New(Config{
		Handler:         handler.New(store, "accountmart-api", "test"),
		AuthHandler:     handler.NewAuthHandler(auth),
		CatalogHandler:  handler.NewCatalogHandler(catalog),
		PurchaseHandler: handler.NewPurchaseHandler(purchases),
		PaymentHandler:  handler.NewPaymentHandler(payments),
		AdminHandler: handler.NewAdminHandler(handler.AdminConfig{
			Admin:  admin,
			Auth:   auth,
			Store:  store,
			DBType: "memory",
		}),
		Verifier: auth,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ID      string          `json:"id"`
		Balance decimal.Decimal `json:"balance"`
	} `json:"user"`
}

func TestRouter_PublicEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/status", "/api/health", "/api/ready", "/api/categories", "/api/payments/payout-address"} {
		resp, env := api.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.True(t, env.Success, path)
	}

	resp, env := api.do(http.MethodGet, "/api/categories/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRouter_AuthFlow(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@example.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess session
	api.data(env, &sess)
	require.NotEmpty(t, sess.Token)

	resp, env = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_IDENTITY", env.Error.Code)

	resp, env = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "nope123"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIAL", env.Error.Code)

	resp, _ = api.do(http.MethodGet, "/api/user/profile", sess.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = api.do(http.MethodGet, "/api/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_SESSION", env.Error.Code)

	resp, env = api.do(http.MethodGet, "/api/admin/stats", sess.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	resp, env = api.do(http.MethodPost, "/api/auth/login", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestRouter_MarketplaceFlow(t *testing.T) {
	api := newTestAPI(t)

	_, env := api.do(http.MethodPost, "/api/admin/login", "", map[string]string{"username": "admin", "password": "admin-pass"})
	var op session
	api.data(env, &op)
	require.NotEmpty(t, op.Token)

	_, env = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "buyer@example.com", "password": "secret123"})
	var buyer session
	api.data(env, &buyer)

	// Stock a category.
	resp, env := api.do(http.MethodPost, "/api/admin/categories", op.Token, map[string]string{"name": "steam"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cat struct {
		ID string `json:"id"`
	}
	api.data(env, &cat)
	for _, payload := range []string{"acc-1", "acc-2"} {
		resp, _ = api.do(http.MethodPost, "/api/admin/items", op.Token, map[string]interface{}{
			"category_id": cat.ID, "payload": payload, "price": "50",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// Buying without balance fails.
	resp, env = api.do(http.MethodPost, "/api/purchases", buyer.Token, map[string]interface{}{"category_id": cat.ID, "quantity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_BALANCE", env.Error.Code)

	// Top up through the payment workflow.
	resp, env = api.do(http.MethodPost, "/api/payments", buyer.Token, map[string]interface{}{"amount": 100, "address": "wallet-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var pr struct {
		ID           string          `json:"id"`
		AmountTarget decimal.Decimal `json:"amount_target"`
		Status       string          `json:"status"`
	}
	api.data(env, &pr)
	assert.True(t, decimal.RequireFromString("3450").Equal(pr.AmountTarget))
	assert.Equal(t, "pending", pr.Status)

	resp, _ = api.do(http.MethodPut, "/api/admin/payments/"+pr.ID+"/approve", op.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = api.do(http.MethodPut, "/api/admin/payments/"+pr.ID+"/approve", op.Token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE_TRANSITION", env.Error.Code)

	// Too many.
	resp, env = api.do(http.MethodPost, "/api/purchases", buyer.Token, map[string]interface{}{"category_id": cat.ID, "quantity": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_INVENTORY", env.Error.Code)

	resp, env = api.do(http.MethodPost, "/api/purchases", buyer.Token, map[string]interface{}{"category_id": cat.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Purchased  int             `json:"purchased"`
		NewBalance decimal.Decimal `json:"new_balance"`
		Records    []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	api.data(env, &out)
	assert.Equal(t, 2, out.Purchased)
	assert.True(t, decimal.RequireFromString("3350").Equal(out.NewBalance))
	require.Len(t, out.Records, 2)

	// Export is a plain-text attachment.
	resp, _ = api.do(http.MethodGet, "/api/purchases/"+out.Records[0].ID+"/export", buyer.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	resp, _ = api.do(http.MethodDelete, "/api/purchases/"+out.Records[0].ID, buyer.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, env = api.do(http.MethodGet, "/api/admin/stats", op.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		Market struct {
			SoldItems int64 `json:"sold_items"`
		} `json:"market"`
		DBType string `json:"db_type"`
	}
	api.data(env, &stats)
	assert.EqualValues(t, 2, stats.Market.SoldItems)
	assert.Equal(t, "memory", stats.DBType)

	resp, env = api.do(http.MethodGet, "/api/admin/sales?days=3", op.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sales []json.RawMessage
	api.data(env, &sales)
	assert.Len(t, sales, 3)

	resp, _ = api.do(http.MethodGet, "/api/admin/activity?limit=abc", op.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = api.do(http.MethodGet, "/api/admin/activity?limit=5", op.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
