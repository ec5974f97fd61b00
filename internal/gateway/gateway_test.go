package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ModeSelection(t *testing.T) {
	t.Run("mock outside production", func(t *testing.T) {
		gw, err := New(Config{Mode: "mock", AppEnv: "development"})
		require.NoError(t, err)
		assert.IsType(t, &MockGateway{}, gw)
	})

	t.Run("mock refused in production", func(t *testing.T) {
		_, err := New(Config{Mode: "MOCK", AppEnv: "production"})
		assert.ErrorIs(t, err, ErrMockInProduction)
	})

	t.Run("http requires credentials", func(t *testing.T) {
		_, err := New(Config{Mode: "http", BaseURL: "https://pay.example.com"})
		assert.Error(t, err)
	})

	t.Run("default is http", func(t *testing.T) {
		gw, err := New(Config{BaseURL: "https://pay.example.com", KeyID: "k", KeySecret: "s"})
		require.NoError(t, err)
		assert.IsType(t, &HTTPGateway{}, gw)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := New(Config{Mode: "carrier-pigeon"})
		assert.Error(t, err)
	})
}

func TestHTTPGateway_VerifySignature(t *testing.T) {
	gw := NewHTTPGateway("https://pay.example.com", "key", "secret", nil)
	good := SignHex("secret", "order_1", "pay_1")

	assert.True(t, gw.VerifySignature("order_1", "pay_1", good))
	assert.False(t, gw.VerifySignature("order_1", "pay_2", good))
	assert.False(t, gw.VerifySignature("order_1", "pay_1", SignHex("other", "order_1", "pay_1")))
	assert.False(t, gw.VerifySignature("order_1", "pay_1", "not-hex"))
	assert.False(t, gw.VerifySignature("", "pay_1", good))
}

func TestHTTPGateway_CreateOrder(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":12345,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "key", "secret", srv.Client())
	order, err := gw.CreateOrder(context.Background(), decimal.RequireFromString("123.45"), "INR", "job-1")
	require.NoError(t, err)

	assert.Equal(t, "order_abc", order.ID)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("123.45")))
	assert.Equal(t, "INR", order.Currency)
	assert.EqualValues(t, 12345, received["amount"])
	assert.Equal(t, "job-1", received["receipt"])
}

func TestHTTPGateway_CreateOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "key", "secret", srv.Client())
	_, err := gw.CreateOrder(context.Background(), decimal.NewFromInt(1), "INR", "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestHTTPGateway_FetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/orders/order_abc":
			_, _ = w.Write([]byte(`{"id":"order_abc","amount":100,"currency":"INR","receipt":"job-1","status":"paid"}`))
		case "/orders/order_broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"order does not exist"}}`))
		}
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "key", "secret", srv.Client())

	order, err := gw.FetchOrder(context.Background(), "order_abc")
	require.NoError(t, err)
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "job-1", order.Reference)

	_, err = gw.FetchOrder(context.Background(), "order_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = gw.FetchOrder(context.Background(), "")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = gw.FetchOrder(context.Background(), "order_broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOrderNotFound)
}

func TestMockGateway(t *testing.T) {
	gw := NewMockGateway()
	order, err := gw.CreateOrder(context.Background(), decimal.NewFromInt(50), "USD", "ref")
	require.NoError(t, err)
	assert.Contains(t, order.ID, "order_mock_")
	assert.True(t, gw.VerifySignature("a", "b", "c"))

	fetched, err := gw.FetchOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, *order, *fetched)

	_, err = gw.FetchOrder(context.Background(), "order_unknown")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
