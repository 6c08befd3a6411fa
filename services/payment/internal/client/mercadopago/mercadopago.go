// Package mercadopago — клиент Mercado Pago Payments API.
// Запросы выполняются с OAuth токеном конкретного продавца.
package mercadopago

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"example.com/funnel-payments/pkg/circuitbreaker"
	"example.com/funnel-payments/services/payment/internal/client"
)

// ProviderName — имя провайдера в логах, метриках и ошибках.
const ProviderName = "mercadopago"

// DefaultBaseURL — production API.
const DefaultBaseURL = "https://api.mercadopago.com"

// Config — настройки клиента.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Payer — плательщик.
type Payer struct {
	Email          string
	FirstName      string
	DocumentType   string // CPF / CNPJ
	DocumentNumber string
}

// CreatePixRequest — создание PIX платежа.
type CreatePixRequest struct {
	AmountCents       int64
	Description       string
	ExternalReference string
	NotificationURL   string
	Payer             Payer
}

// Payment — платёж Mercado Pago.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	AmountCents       int64
	ExternalReference string
	DateApproved      *time.Time
	QRCode            string
	QRCodeBase64      string
	ExpiresAt         *time.Time
}

type identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type payerBody struct {
	Email          string          `json:"email"`
	FirstName      string          `json:"first_name,omitempty"`
	Identification *identification `json:"identification,omitempty"`
}

type createBody struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	ExternalReference string      `json:"external_reference"`
	NotificationURL   string      `json:"notification_url,omitempty"`
	Payer             payerBody   `json:"payer"`
}

type paymentResponse struct {
	ID                 any             `json:"id"`
	Status             string          `json:"status"`
	StatusDetail       string          `json:"status_detail"`
	TransactionAmount  decimal.Decimal `json:"transaction_amount"`
	ExternalReference  string          `json:"external_reference"`
	DateApproved       string          `json:"date_approved"`
	DateOfExpiration   string          `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// Client — HTTP клиент Mercado Pago.
type Client struct {
	baseURL string
	http    *http.Client
}

// New создаёт клиент. httpClient nil — клиент с circuit breaker и таймаутом из cfg.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = circuitbreaker.NewHTTPClient(ProviderName, cfg.Timeout)
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(base, "/"), http: httpClient}
}

// CreatePix создаёт PIX платёж от имени продавца. ExternalReference служит
// ключом идемпотентности на стороне Mercado Pago.
func (c *Client) CreatePix(ctx context.Context, accessToken string, req CreatePixRequest) (*Payment, error) {
	body := createBody{
		TransactionAmount: json.Number(CentsToReais(req.AmountCents).StringFixed(2)),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		Payer: payerBody{
			Email:     req.Payer.Email,
			FirstName: req.Payer.FirstName,
		},
	}
	if req.Payer.DocumentNumber != "" {
		body.Payer.Identification = &identification{Type: req.Payer.DocumentType, Number: req.Payer.DocumentNumber}
	}

	headers := map[string]string{
		"Authorization":     "Bearer " + accessToken,
		"X-Idempotency-Key": req.ExternalReference,
	}

	var resp paymentResponse
	if err := client.DoJSON(ctx, c.http, ProviderName, http.MethodPost, c.baseURL+"/v1/payments", headers, body, &resp); err != nil {
		return nil, err
	}
	return resp.toPayment(), nil
}

// GetPayment загружает актуальное состояние платежа.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var resp paymentResponse
	if err := client.DoJSON(ctx, c.http, ProviderName, http.MethodGet,
		c.baseURL+"/v1/payments/"+url.PathEscape(paymentID), headers, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toPayment(), nil
}

func (r *paymentResponse) toPayment() *Payment {
	p := &Payment{
		ID:                cast.ToString(r.ID),
		Status:            r.Status,
		StatusDetail:      r.StatusDetail,
		AmountCents:       ReaisToCents(r.TransactionAmount),
		ExternalReference: r.ExternalReference,
		DateApproved:      parseTime(r.DateApproved),
		QRCode:            r.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64:      r.PointOfInteraction.TransactionData.QRCodeBase64,
		ExpiresAt:         parseTime(r.DateOfExpiration),
	}
	return p
}

// CentsToReais переводит центаво в реалы.
func CentsToReais(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ReaisToCents переводит реалы в центаво с округлением.
func ReaisToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// parseTime разбирает даты вида 2025-01-10T08:30:00.000-04:00.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
