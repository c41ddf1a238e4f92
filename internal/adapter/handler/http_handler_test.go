package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/fulfillment/internal/adapter/handler"
	"github.com/rl1809/fulfillment/internal/adapter/storage"
	"github.com/rl1809/fulfillment/internal/app"
	"github.com/rl1809/fulfillment/internal/core/domain"
)

// keyCache only honours idempotency keys; order details are never cached.
type keyCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *keyCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *keyCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *keyCache) GetOrderDetails(context.Context, string) (*domain.OrderDetails, error) {
	return nil, nil
}

func (c *keyCache) SetOrderDetails(context.Context, domain.OrderDetails) error { return nil }

func (c *keyCache) InvalidateOrder(context.Context, string, int) error { return nil }

func newServices(t *testing.T) (handler.Services, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	stock := 10
	store.SeedProduct(domain.Product{
		ID: "P1", SKU: "SKU-P1", Name: "Widget", Price: decimal.RequireFromString("1000"),
		Currency: "USD", Type: domain.ProductTypePhysical, InventoryCount: &stock, Status: domain.ProductStatusActive,
	})
	store.SeedProduct(domain.Product{
		ID: "EVT", SKU: "SKU-EVT", Name: "Concert - VIP", Price: decimal.RequireFromString("50"),
		Currency: "USD", Type: domain.ProductTypeEvent, Status: domain.ProductStatusActive,
	})

	svc, err := app.New(app.Options{
		Store:    store,
		Cache:    &keyCache{keys: map[string]bool{}},
		TaxLabel: "VAT",
		TaxRate:  decimal.RequireFromString("0.10"),
		Currency: "USD",
	})
	require.NoError(t, err)
	return svc, store
}

func newRouter(t *testing.T) (http.Handler, *storage.MemoryStore) {
	t.Helper()
	svc, store := newServices(t)
	return handler.NewHTTPHandler(svc, nil).Routes(), store
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func orderBody(quantity int) map[string]any {
	return map[string]any{
		"customerId": "c-1",
		"items":      []map[string]any{{"productId": "P1", "quantity": quantity}},
		"shippingAddress": map[string]any{
			"line1": "1 Main St", "city": "Springfield", "country": "US",
		},
		"paymentMethod": "card",
	}
}

func TestHealthCheck(t *testing.T) {
	h, _ := newRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHTTPProcessSale(t *testing.T) {
	h, store := newRouter(t)

	status, env := do(t, h, http.MethodPost, "/v1/sales/process", map[string]any{
		"customerId": "c-1",
		"items":      []map[string]any{{"productId": "P1", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.True(t, env.Success)
	assert.Equal(t, "sale processed", env.Message)

	var sale domain.Sale
	require.NoError(t, json.Unmarshal(env.Data, &sale))
	assert.True(t, sale.SubtotalAmount.Equal(decimal.RequireFromString("3000")))
	assert.True(t, sale.TaxAmount.Equal(decimal.RequireFromString("300")))
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("3300")))
	assert.True(t, strings.HasPrefix(sale.TransactionID, "TXN-"))

	p, _ := store.Product("P1")
	assert.Equal(t, 7, *p.InventoryCount)

	status, env = do(t, h, http.MethodGet, "/v1/sales/"+sale.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "sale found", env.Message)
}

func TestHTTPErrorMapping(t *testing.T) {
	h, _ := newRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name: "missing items", method: http.MethodPost, path: "/v1/sales/process",
			body:       map[string]any{"customerId": "c-1"},
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation_error",
		},
		{
			name: "zero quantity", method: http.MethodPost, path: "/v1/sales/process",
			body:       map[string]any{"customerId": "c-1", "items": []map[string]any{{"productId": "P1", "quantity": 0}}},
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation_error",
		},
		{
			name: "insufficient stock", method: http.MethodPost, path: "/v1/orders",
			body:       orderBody(11),
			wantStatus: http.StatusBadRequest, wantCode: "insufficient_inventory",
		},
		{
			name: "unknown order", method: http.MethodGet, path: "/v1/orders/missing",
			wantStatus: http.StatusNotFound, wantCode: "order_not_found",
		},
		{
			name: "unknown delivery status", method: http.MethodPatch, path: "/v1/deliveries/d-1/status",
			body:       map[string]any{"status": "lost"},
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation_error",
		},
		{
			name: "ticket for physical product", method: http.MethodPost, path: "/v1/tickets",
			body:       map[string]any{"productId": "P1", "userId": "u-1"},
			wantStatus: http.StatusBadRequest, wantCode: "product_not_event",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status, env.Message)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestHTTPValidationMessageNamesField(t *testing.T) {
	h, _ := newRouter(t)
	body := orderBody(1)
	body["shippingAddress"] = map[string]any{"line1": "1 Main St", "country": "US"}

	status, env := do(t, h, http.MethodPost, "/v1/orders", body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, env.Message, "shippingAddress")
	assert.Contains(t, env.Message, "city")
}

func TestHTTPOrderLifecycle(t *testing.T) {
	h, store := newRouter(t)

	status, env := do(t, h, http.MethodPost, "/v1/orders", orderBody(3))
	require.Equal(t, http.StatusCreated, status, env.Message)
	var created struct {
		Order    domain.Order    `json:"order"`
		Delivery domain.Delivery `json:"delivery"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, domain.OrderStatusPending, created.Order.Status)
	assert.True(t, strings.HasPrefix(created.Delivery.TrackingNumber, "TRK-"))

	orderPath := "/v1/orders/" + created.Order.ID
	status, env = do(t, h, http.MethodPatch, orderPath+"/status", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_transition", env.Code)

	status, env = do(t, h, http.MethodPost, orderPath+"/cancel", map[string]any{"reason": "changed mind"})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, "order cancelled", env.Message)

	p, _ := store.Product("P1")
	assert.Equal(t, 10, *p.InventoryCount)

	status, env = do(t, h, http.MethodPost, orderPath+"/cancel", map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "already_cancelled", env.Code)

	status, env = do(t, h, http.MethodGet, "/v1/customers/c-1/orders", nil)
	require.Equal(t, http.StatusOK, status)
	var orders []domain.Order
	require.NoError(t, json.Unmarshal(env.Data, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusCancelled, orders[0].Status)
}

func TestHTTPIdempotencyKeyHeader(t *testing.T) {
	h, _ := newRouter(t)

	status, _ := do(t, h, http.MethodPost, "/v1/orders", orderBody(1), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, status)

	status, env := do(t, h, http.MethodPost, "/v1/orders", orderBody(1), "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_request", env.Code)
}

func TestHTTPDeliveriesAndTickets(t *testing.T) {
	h, _ := newRouter(t)

	status, env := do(t, h, http.MethodPost, "/v1/deliveries", map[string]any{
		"address": map[string]any{"line1": "5 Elm", "city": "Ogdenville", "country": "US"},
		"urgency": "express",
		"price":   "9.99",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var d domain.Delivery
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.True(t, d.AdHoc())
	assert.True(t, d.Price.Equal(decimal.RequireFromString("9.99")))

	path := "/v1/deliveries/" + d.ID
	status, env = do(t, h, http.MethodPatch, path+"/status", map[string]any{"status": "picked_up", "location": "Depot"})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = do(t, h, http.MethodPost, path+"/tracking", map[string]any{"description": "Left depot"})
	require.Equal(t, http.StatusOK, status, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Len(t, d.TrackingEvents, 3)

	status, env = do(t, h, http.MethodPost, "/v1/tickets", map[string]any{"productId": "EVT", "userId": "u-1"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var ticket domain.Ticket
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, domain.DefaultTicketType, ticket.TicketType)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
}

func TestHTTPRefundSale(t *testing.T) {
	h, _ := newRouter(t)
	status, env := do(t, h, http.MethodPost, "/v1/sales/process", map[string]any{
		"customerId": "c-1",
		"items":      []map[string]any{{"productId": "EVT", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var sale domain.Sale
	require.NoError(t, json.Unmarshal(env.Data, &sale))

	status, env = do(t, h, http.MethodPost, "/v1/sales/"+sale.ID+"/refund", map[string]any{"amount": 500, "reason": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, env.Code)
}
