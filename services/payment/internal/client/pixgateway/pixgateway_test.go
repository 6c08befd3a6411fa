package pixgateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/funnel-payments/services/payment/internal/domain"
)

func TestClient_CreatePix(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("sk_test:x")), r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":987654,"status":"waiting_payment","amount":4990,
			"pix":{"qrcode":"00020126PIX","qrcode_base64":"aW1n","expiration_date":"2025-01-10T12:30:00Z"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, SecretKey: "sk_test", PostbackURL: "https://api.local/webhooks/pix-gateway", Timeout: time.Second}, nil)

	charge, err := c.CreatePix(context.Background(), CreatePixRequest{
		AmountCents: 4990,
		ExternalID:  "subscription_user-1_1700000000000",
		Customer:    Customer{Name: "Maria Silva", Email: "m@x.com"},
		Items:       []Item{{Title: "Pro", UnitPrice: 4990, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, "987654", charge.ID)
	assert.Equal(t, int64(4990), charge.AmountCents)
	assert.Equal(t, "00020126PIX", charge.PixCode)
	require.NotNil(t, charge.ExpiresAt)

	assert.Equal(t, "pix", got["payment_method"])
	assert.Equal(t, float64(4990), got["amount"])
	assert.Equal(t, "https://api.local/webhooks/pix-gateway", got["postback_url"])
}

func TestClient_CreatePix_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"customer.name inválido"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, SecretKey: "sk", Timeout: time.Second}, nil)

	_, err := c.CreatePix(context.Background(), CreatePixRequest{AmountCents: 100})

	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ProviderName, ue.Provider)
	assert.Equal(t, http.StatusUnprocessableEntity, ue.StatusCode)
	assert.Contains(t, ue.Body, "customer.name")
}
