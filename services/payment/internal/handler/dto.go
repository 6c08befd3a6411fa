package handler

import (
	"time"

	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/service"
)

// === Request DTOs ===

// BuyerRequest — данные покупателя.
type BuyerRequest struct {
	Name     string `json:"name" binding:"max=255"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone" binding:"max=32"`
	Document string `json:"document" binding:"omitempty,br_document"`
}

// UTMRequest — параметры атрибуции.
type UTMRequest struct {
	Source   *string `json:"utm_source"`
	Medium   *string `json:"utm_medium"`
	Campaign *string `json:"utm_campaign"`
	Content  *string `json:"utm_content"`
	Term     *string `json:"utm_term"`
	Src      *string `json:"src"`
	Sck      *string `json:"sck"`
}

// CreatePaymentRequest — покупка подписки или товара маркетплейса.
type CreatePaymentRequest struct {
	ProductType string       `json:"product_type" binding:"required,purchasable"`
	ProductID   string       `json:"product_id"`
	PlanSlug    string       `json:"plan_slug"`
	Buyer       BuyerRequest `json:"buyer"`
	UTM         UTMRequest   `json:"utm"`
}

// Действия POST /api/v1/mercadopago/payments.
const (
	ActionCreatePix   = "create_pix"
	ActionCheckStatus = "check_status"
	ActionTrackEvent  = "track_event"
)

// MercadoPagoPaymentRequest — create_pix или check_status.
type MercadoPagoPaymentRequest struct {
	Action    string       `json:"action" binding:"required,oneof=create_pix check_status"`
	FunnelID  string       `json:"funnel_id" binding:"required_if=Action create_pix"`
	ProductID string       `json:"product_id" binding:"required_if=Action create_pix"`
	LeadID    string       `json:"lead_id" binding:"required_if=Action create_pix"`
	PaymentID string       `json:"payment_id" binding:"required_if=Action check_status"`
	Buyer     BuyerRequest `json:"buyer"`
	UTM       UTMRequest   `json:"utm"`
}

// TrackEventRequest — ретрансляция события в UTMify.
type TrackEventRequest struct {
	Action    string `json:"action" binding:"required,eq=track_event"`
	PaymentID string `json:"payment_id" binding:"required"`
	UserID    string `json:"user_id"`
	EventType string `json:"event_type" binding:"required"`
}

// SweepRequest — ручной запуск напоминаний. Тело необязательно.
type SweepRequest struct {
	ReminderMinutes int `json:"reminder_minutes" binding:"min=0,max=10080"`
}

// === Response DTOs ===

// PixResponse — данные для оплаты.
type PixResponse struct {
	Code         string     `json:"code"`
	QRCodeBase64 string     `json:"qrcode_base64,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// PaymentResponse — ответ инициации.
type PaymentResponse struct {
	ID         string       `json:"id,omitempty"`
	ExternalID string       `json:"external_id,omitempty"`
	Status     string       `json:"status"`
	Pix        *PixResponse `json:"pix,omitempty"`
	Amount     int64        `json:"amount"`
	Free       bool         `json:"free,omitempty"`
}

// PaymentStatusResponse — ответ check_status.
type PaymentStatusResponse struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	DeliveryStatus string     `json:"delivery_status"`
	Amount         int64      `json:"amount"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

// TrackEventResponse — ответ ретранслятора, всегда 200.
type TrackEventResponse struct {
	OK      bool   `json:"ok"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
	Details string `json:"details,omitempty"`
}

// SweepResponse — итог прохода напоминаний.
type SweepResponse struct {
	OK       bool `json:"ok"`
	Reminded int  `json:"reminded"`
	Errors   int  `json:"errors"`
	Total    int  `json:"total"`
}

// === Преобразования ===

func (b BuyerRequest) toDomain() domain.Buyer {
	return domain.Buyer{
		Name:     b.Name,
		Email:    b.Email,
		Phone:    b.Phone,
		Document: onlyDigits(b.Document),
	}
}

func (u UTMRequest) toDomain() domain.UTM {
	return domain.UTM{
		Source:   u.Source,
		Medium:   u.Medium,
		Campaign: u.Campaign,
		Content:  u.Content,
		Term:     u.Term,
		Src:      u.Src,
		Sck:      u.Sck,
	}
}

func paymentToResponse(r *service.PaymentResult) PaymentResponse {
	resp := PaymentResponse{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Status:     r.Status,
		Amount:     r.AmountCents,
		Free:       r.Free,
	}
	if r.Pix != nil {
		resp.Pix = &PixResponse{
			Code:         r.Pix.Code,
			QRCodeBase64: r.Pix.QRCodeBase64,
			ExpiresAt:    r.Pix.ExpiresAt,
		}
	}
	return resp
}

func statusToResponse(p *domain.Payment) PaymentStatusResponse {
	return PaymentStatusResponse{
		ID:             p.ID,
		Status:         string(p.Status),
		DeliveryStatus: string(p.DeliveryStatus),
		Amount:         p.AmountCents,
		PaidAt:         p.PaidAt,
		DeliveredAt:    p.DeliveredAt,
	}
}
