package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/metrics"
	"automatpos/backend/internal/service"
	"automatpos/backend/internal/store/memory"
)

const (
	colaID  = 3
	gummyID = 8
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(zap.NewNop())
	svc := service.New(repo, service.Options{}, nil)
	auth := NewAuthManager("test-secret-key-with-enough-bytes", time.Hour, repo, nil)

	return New(svc, auth, "*", WithMetrics(metrics.New()))
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newClient(t *testing.T, api *API, username, password string) *client {
	t.Helper()
	c := &client{t: t, handler: api.Handler()}
	if username != "" {
		var login domain.LoginResponse
		res := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: username, Password: password})
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		decodeData(t, res, &login)
		c.token = login.AccessToken
	}
	var csrf struct {
		Token string `json:"csrf_token"`
	}
	decodeData(t, c.do(http.MethodGet, "/api/v1/auth/csrf-token", nil), &csrf)
	c.csrf = csrf.Token
	return c
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var env response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.False(t, env.Success)
	var body errorResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeData(t, rec, &body)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLoginFailure(t *testing.T) {
	c := newClient(t, newTestAPI(t), "", "")

	res := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "unauthorized", decodeError(t, res).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c := newClient(t, newTestAPI(t), "", "")

	res := c.do(http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	c.token = "not-a-jwt"
	res = c.do(http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestProductEndpoints(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")
	admin := newClient(t, api, "admin", "admin123")

	var products []domain.Product
	res := cashier.do(http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decodeData(t, res, &products)
	assert.Len(t, products, 6)

	create := domain.ProductCreateRequest{Barcode: "4000000000073", Name: "Iced Tea", PriceCents: 190, InitialStock: 20}
	res = cashier.do(http.MethodPost, "/api/v1/products", create)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "permission_denied", decodeError(t, res).Code)

	res = admin.do(http.MethodPost, "/api/v1/products", create)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = admin.do(http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{PriceCents: -5})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	body := decodeError(t, res)
	assert.Equal(t, "validation_error", body.Code)
	assert.Len(t, body.Details["problems"], 2)

	var check domain.BarcodeCheck
	res = cashier.do(http.MethodGet, "/api/v1/products/barcode/4000000000073", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decodeData(t, res, &check)
	assert.True(t, check.Found)

	var low []domain.Product
	res = cashier.do(http.MethodGet, "/api/v1/products/low-stock", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decodeData(t, res, &low)
	require.Len(t, low, 1)
	assert.Equal(t, int64(gummyID), low[0].ID)
}

func TestScanEndpoint(t *testing.T) {
	cashier := newClient(t, newTestAPI(t), "cashier", "cashier123")

	var result domain.ScanResult
	res := cashier.do(http.MethodPost, "/api/v1/scans", domain.ScanRequest{Barcode: "4000000000011", Action: domain.ScanRestock, Quantity: 2})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decodeData(t, res, &result)
	assert.Equal(t, 50, result.NewStock)

	res = cashier.do(http.MethodPost, "/api/v1/scans", domain.ScanRequest{Barcode: "4000000000066", Action: domain.ScanSell, Quantity: 99})
	require.Equal(t, http.StatusConflict, res.Code)
	body := decodeError(t, res)
	assert.Equal(t, "insufficient_stock", body.Code)
	assert.Len(t, body.Details["items"], 1)
}

func TestSessionFlowThroughFinalize(t *testing.T) {
	cashier := newClient(t, newTestAPI(t), "cashier", "cashier123")

	var session domain.SalesSession
	res := cashier.do(http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	decodeData(t, res, &session)
	assert.Equal(t, domain.SessionActive, session.Status)

	// A second session while the lock is fresh is refused.
	res = cashier.do(http.MethodPost, "/api/v1/sessions", domain.CreateSessionRequest{Notes: "again"})
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "user_already_locked", decodeError(t, res).Code)

	base := fmt.Sprintf("/api/v1/sessions/%d", session.ID)
	res = cashier.do(http.MethodPost, base+"/items", domain.AddSessionItemRequest{ProductID: colaID, Quantity: 2})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decodeData(t, res, &session)
	assert.Equal(t, int64(350), session.TotalGrossCents)

	res = cashier.do(http.MethodPost, base+"/heartbeat", nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = cashier.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = cashier.do(http.MethodGet, base+"/activity", nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	var sale domain.FinalizeSaleResponse
	res = cashier.do(http.MethodPost, "/api/v1/sales/finalize", map[string]any{
		"session_id":             session.ID,
		"payment_method":         "cash",
		"payment_received_cents": 500,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	decodeData(t, res, &sale)
	assert.Equal(t, session.ID, sale.SessionID)
	assert.Equal(t, int64(350), sale.TotalCents)
	assert.Equal(t, int64(150), sale.ChangeCents)
	assert.True(t, strings.HasPrefix(sale.ReceiptNumber, "AMP-"))

	res = cashier.do(http.MethodPost, "/api/v1/sales/finalize", map[string]any{
		"session_id":     session.ID,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "invalid_session_state", decodeError(t, res).Code)
}

func TestRemoveSessionItem(t *testing.T) {
	cashier := newClient(t, newTestAPI(t), "cashier", "cashier123")

	var session domain.SalesSession
	decodeData(t, cashier.do(http.MethodPost, "/api/v1/sessions", nil), &session)
	base := fmt.Sprintf("/api/v1/sessions/%d", session.ID)
	res := cashier.do(http.MethodPost, base+"/items", domain.AddSessionItemRequest{Barcode: "4000000000011"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = cashier.do(http.MethodDelete, base+"/items/99999", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "item_not_found", decodeError(t, res).Code)

	res = cashier.do(http.MethodDelete, base+"/items/abc", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	csrf := cashier.csrf
	cashier.csrf = ""
	res = cashier.do(http.MethodDelete, base+"/items/1", nil)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "csrf_invalid", decodeError(t, res).Code)
	cashier.csrf = csrf
}

func TestSessionErrorsMapToStatus(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")
	admin := newClient(t, api, "admin", "admin123")

	res := cashier.do(http.MethodGet, "/api/v1/sessions/424242", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "session_not_found", decodeError(t, res).Code)

	res = cashier.do(http.MethodGet, "/api/v1/sessions/abc", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = cashier.do(http.MethodPost, "/api/v1/sessions/424242/merge", domain.MergeRequest{SourceSessionID: 424243})
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "sessions_not_found", decodeError(t, res).Code)

	var session domain.SalesSession
	decodeData(t, cashier.do(http.MethodPost, "/api/v1/sessions", nil), &session)
	base := fmt.Sprintf("/api/v1/sessions/%d", session.ID)

	res = cashier.do(http.MethodPost, base+"/split", domain.SplitRequest{})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "no_items_specified", decodeError(t, res).Code)

	res = cashier.do(http.MethodPost, base+"/transfer", domain.TransferRequest{FromUserID: 2, ToUserID: 1})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = cashier.do(http.MethodPost, base+"/recover", nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "not_recoverable", decodeError(t, res).Code)

	res = cashier.do(http.MethodPost, base+"/interrupt", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var recovered domain.RecoveredSession
	res = cashier.do(http.MethodPost, base+"/recover", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decodeData(t, res, &recovered)
	assert.Equal(t, domain.SessionActive, recovered.Session.Status)

	var activity []domain.SessionActivity
	res = admin.do(http.MethodGet, base+"/activity", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decodeData(t, res, &activity)
	assert.NotEmpty(t, activity)
}

func TestFinalizeCartValidation(t *testing.T) {
	cashier := newClient(t, newTestAPI(t), "cashier", "cashier123")

	res := cashier.do(http.MethodPost, "/api/v1/sales/finalize", map[string]any{
		"items":          []map[string]any{{"product_id": 0, "quantity": 0}},
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	body := decodeError(t, res)
	assert.Equal(t, "validation_error", body.Code)
	assert.NotEmpty(t, body.Details["problems"])

	res = cashier.do(http.MethodPost, "/api/v1/sales/finalize", map[string]any{
		"items":          []map[string]any{{"product_id": colaID, "quantity": 1}},
		"payment_method": "voucher",
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid_payment_method", decodeError(t, res).Code)

	res = cashier.do(http.MethodPost, "/api/v1/sales/finalize", map[string]any{"surprise": true})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "bad_request", decodeError(t, res).Code)
}

func TestAnalyticsAndCleanupAreAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")
	admin := newClient(t, api, "admin", "admin123")

	res := cashier.do(http.MethodPost, "/api/v1/sales/finalize", map[string]any{
		"items":          []map[string]any{{"product_id": colaID, "quantity": 1}},
		"payment_method": "card",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = cashier.do(http.MethodGet, "/api/v1/sales/analytics", nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	var analytics domain.SalesAnalytics
	res = admin.do(http.MethodGet, "/api/v1/sales/analytics?period=today", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decodeData(t, res, &analytics)
	assert.Equal(t, 1, analytics.Totals.SessionCount)
	assert.Equal(t, int64(175), analytics.Totals.GrossCents)

	res = admin.do(http.MethodGet, "/api/v1/sales/analytics?period=custom&from=2024-03-05&to=2024-03-01", nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = cashier.do(http.MethodPost, "/api/v1/maintenance/cleanup", nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	var cleanup domain.CleanupResult
	res = admin.do(http.MethodPost, "/api/v1/maintenance/cleanup", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decodeData(t, res, &cleanup)
	assert.Equal(t, domain.CleanupResult{}, cleanup)
}

func TestMetricsEndpointReportsRoutes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `automatpos_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrValidation, http.StatusUnprocessableEntity},
		{service.ErrInvalidPaymentMethod, http.StatusBadRequest},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrSessionAccessDenied, http.StatusForbidden},
		{service.ErrSessionMismatch, http.StatusForbidden},
		{service.ErrTargetUserNotFound, http.StatusNotFound},
		{service.ErrMaxSessionsExceeded, http.StatusConflict},
		{service.ErrTargetUserLocked, http.StatusConflict},
		{service.ErrNotRecoverable, http.StatusUnprocessableEntity},
		{service.ErrDatabase, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
