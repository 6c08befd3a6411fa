// Package utmify — клиент UTMify Orders API (атрибуция продаж).
package utmify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ProviderName — имя в логах, метриках и ошибках.
const ProviderName = "utmify"

// DefaultBaseURL — production API.
const DefaultBaseURL = "https://api.utmify.com.br"

// DateLayout — формат дат UTMify (UTC).
const DateLayout = "2006-01-02 15:04:05"

// Config — настройки клиента.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Customer — покупатель.
type Customer struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
	Document *string `json:"document"`
	Country  string  `json:"country,omitempty"`
}

// Product — позиция заказа.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	PlanID       *string `json:"planId"`
	PlanName     *string `json:"planName"`
	Quantity     int     `json:"quantity"`
	PriceInCents int64   `json:"priceInCents"`
}

// TrackingParameters — UTM метки заказа.
type TrackingParameters struct {
	Src         *string `json:"src"`
	Sck         *string `json:"sck"`
	UTMSource   *string `json:"utm_source"`
	UTMCampaign *string `json:"utm_campaign"`
	UTMMedium   *string `json:"utm_medium"`
	UTMContent  *string `json:"utm_content"`
	UTMTerm     *string `json:"utm_term"`
}

// Commission — суммы в центаво.
type Commission struct {
	TotalPriceInCents     int64 `json:"totalPriceInCents"`
	GatewayFeeInCents     int64 `json:"gatewayFeeInCents"`
	UserCommissionInCents int64 `json:"userCommissionInCents"`
}

// Order — заказ в формате UTMify.
type Order struct {
	OrderID            string             `json:"orderId"`
	Platform           string             `json:"platform"`
	PaymentMethod      string             `json:"paymentMethod"`
	Status             string             `json:"status"`
	CreatedAt          string             `json:"createdAt"`
	ApprovedDate       *string            `json:"approvedDate"`
	RefundedAt         *string            `json:"refundedAt"`
	Customer           Customer           `json:"customer"`
	Products           []Product          `json:"products"`
	TrackingParameters TrackingParameters `json:"trackingParameters"`
	Commission         Commission         `json:"commission"`
	IsTest             bool               `json:"isTest,omitempty"`
}

// Response — ответ UTMify. Не-2xx не считается ошибкой вызова:
// решение принимает ретранслятор.
type Response struct {
	StatusCode int
	Body       string
}

// OK — 2xx ответ.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client — клиент на fasthttp.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
}

// New создаёт клиент.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                ProviderName,
			MaxConnsPerHost:     32,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// SendOrder отправляет заказ с токеном продавца. Ошибка возвращается только
// при сетевом сбое или отмене ctx.
func (c *Client) SendOrder(ctx context.Context, apiToken string, order Order) (*Response, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("utmify: ошибка сериализации заказа: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/api-credentials/orders")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("x-api-token", apiToken)
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("utmify: ошибка запроса: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}, nil
}
