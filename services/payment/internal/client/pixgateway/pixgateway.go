// Package pixgateway — клиент прямого PIX шлюза.
package pixgateway

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"

	"example.com/funnel-payments/pkg/circuitbreaker"
	"example.com/funnel-payments/services/payment/internal/client"
)

// ProviderName — имя провайдера в логах, метриках и ошибках.
const ProviderName = "pixgateway"

// Config — настройки клиента.
type Config struct {
	BaseURL     string
	SecretKey   string
	PostbackURL string
	Timeout     time.Duration
}

// Customer — покупатель в запросе шлюза.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// Item — позиция заказа.
type Item struct {
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CreatePixRequest — создание PIX платежа. Суммы в центаво.
type CreatePixRequest struct {
	AmountCents int64
	ExternalID  string
	Customer    Customer
	Items       []Item
}

// Charge — созданный платёж.
type Charge struct {
	ID           string
	Status       string
	AmountCents  int64
	PixCode      string
	QRCodeBase64 string
	ExpiresAt    *time.Time
}

type createBody struct {
	Amount        int64    `json:"amount"`
	PaymentMethod string   `json:"payment_method"`
	ExternalID    string   `json:"external_id"`
	PostbackURL   string   `json:"postback_url,omitempty"`
	Customer      Customer `json:"customer"`
	Items         []Item   `json:"items"`
}

type chargeResponse struct {
	ID     any    `json:"id"` // число или строка, в зависимости от версии API
	Status string `json:"status"`
	Amount any    `json:"amount"`
	Pix    struct {
		QRCode         string `json:"qrcode"`
		QRCodeBase64   string `json:"qrcode_base64"`
		ExpirationDate string `json:"expiration_date"`
	} `json:"pix"`
}

// Client — HTTP клиент шлюза.
type Client struct {
	cfg  Config
	http *http.Client
}

// New создаёт клиент. httpClient nil — клиент с circuit breaker и таймаутом из cfg.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = circuitbreaker.NewHTTPClient(ProviderName, cfg.Timeout)
	}
	return &Client{cfg: cfg, http: httpClient}
}

// CreatePix создаёт PIX платёж. Ошибка провайдера — *domain.UpstreamError.
func (c *Client) CreatePix(ctx context.Context, req CreatePixRequest) (*Charge, error) {
	body := createBody{
		Amount:        req.AmountCents,
		PaymentMethod: "pix",
		ExternalID:    req.ExternalID,
		PostbackURL:   c.cfg.PostbackURL,
		Customer:      req.Customer,
		Items:         req.Items,
	}

	var resp chargeResponse
	if err := client.DoJSON(ctx, c.http, ProviderName, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/transactions",
		map[string]string{"Authorization": c.authHeader()}, body, &resp); err != nil {
		return nil, err
	}

	charge := &Charge{
		ID:           cast.ToString(resp.ID),
		Status:       resp.Status,
		AmountCents:  cast.ToInt64(resp.Amount),
		PixCode:      resp.Pix.QRCode,
		QRCodeBase64: resp.Pix.QRCodeBase64,
	}
	if t, err := time.Parse(time.RFC3339, resp.Pix.ExpirationDate); err == nil {
		utc := t.UTC()
		charge.ExpiresAt = &utc
	}
	return charge, nil
}

// authHeader — Basic base64(secret_key:x).
func (c *Client) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.cfg.SecretKey+":x"))
}
