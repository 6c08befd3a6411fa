package utmify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api-credentials/orders", r.URL.Path)
		assert.Equal(t, "utm-token", r.Header.Get("x-api-token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"OK":true}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})

	resp, err := c.SendOrder(context.Background(), "utm-token", Order{
		OrderID:       "subscription_user-1_1700000000000",
		Platform:      "FunnelBot",
		PaymentMethod: "pix",
		Status:        "approved",
		CreatedAt:     "2025-01-10 12:00:00",
		Products:      []Product{{ID: "pro", Name: "Pro", Quantity: 1, PriceInCents: 4990}},
	})

	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "subscription_user-1_1700000000000", got["orderId"])
	assert.Equal(t, "approved", got["status"])
}

func TestClient_SendOrder_NonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	resp, err := New(Config{BaseURL: srv.URL, Timeout: time.Second}).SendOrder(context.Background(), "bad", Order{})

	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Body, "invalid token")
}

func TestClient_SendOrder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{BaseURL: "http://127.0.0.1:1"}).SendOrder(ctx, "t", Order{})

	assert.ErrorIs(t, err, context.Canceled)
}
