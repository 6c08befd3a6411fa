// Package repository содержит GORM реализацию хранилищ платёжного конвейера.
package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"example.com/funnel-payments/services/payment/internal/domain"
)

// =============================================================================
// Платежи (transactions / funnel_payments)
// =============================================================================

// PaymentModel — строка transactions или funnel_payments. Таблица выбирается
// по провайдеру через db.Table, поэтому TableName не задан.
type PaymentModel struct {
	ID                string     `gorm:"column:id;primaryKey"`
	Provider          string     `gorm:"column:provider"`
	ProviderPaymentID string     `gorm:"column:provider_payment_id"`
	ExternalID        string     `gorm:"column:external_id"`
	UserID            string     `gorm:"column:user_id"`
	ProductType       string     `gorm:"column:product_type"`
	ProductID         string     `gorm:"column:product_id"`
	ProductName       string     `gorm:"column:product_name"`
	AmountCents       int64      `gorm:"column:amount_cents"`
	Currency          string     `gorm:"column:currency"`
	BuyerName         string     `gorm:"column:buyer_name"`
	BuyerEmail        string     `gorm:"column:buyer_email"`
	BuyerPhone        string     `gorm:"column:buyer_phone"`
	BuyerDocument     string     `gorm:"column:buyer_document"`
	Status            string     `gorm:"column:status"`
	DeliveryStatus    string     `gorm:"column:delivery_status"`
	DeliveredAt       *time.Time `gorm:"column:delivered_at"`
	RemindedAt        *time.Time `gorm:"column:reminded_at"`
	PaidAt            *time.Time `gorm:"column:paid_at"`
	PixCode           *string    `gorm:"column:pix_code"`
	PixQRCodeBase64   *string    `gorm:"column:pix_qrcode_base64"`
	PixExpiresAt      *time.Time `gorm:"column:pix_expires_at"`
	FunnelID          *string    `gorm:"column:funnel_id"`
	LeadID            *string    `gorm:"column:lead_id"`
	UTMSource         *string    `gorm:"column:utm_source"`
	UTMMedium         *string    `gorm:"column:utm_medium"`
	UTMCampaign       *string    `gorm:"column:utm_campaign"`
	UTMContent        *string    `gorm:"column:utm_content"`
	UTMTerm           *string    `gorm:"column:utm_term"`
	Src               *string    `gorm:"column:src"`
	Sck               *string    `gorm:"column:sck"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (m *PaymentModel) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:                m.ID,
		Provider:          domain.Provider(m.Provider),
		ProviderPaymentID: m.ProviderPaymentID,
		ExternalID:        m.ExternalID,
		UserID:            m.UserID,
		ProductType:       domain.ProductType(m.ProductType),
		ProductID:         m.ProductID,
		ProductName:       m.ProductName,
		AmountCents:       m.AmountCents,
		Currency:          m.Currency,
		Buyer: domain.Buyer{
			Name:     m.BuyerName,
			Email:    m.BuyerEmail,
			Phone:    m.BuyerPhone,
			Document: m.BuyerDocument,
		},
		Status:         domain.Status(m.Status),
		DeliveryStatus: domain.DeliveryStatus(m.DeliveryStatus),
		DeliveredAt:    m.DeliveredAt,
		RemindedAt:     m.RemindedAt,
		PaidAt:         m.PaidAt,
		Pix: domain.Pix{
			Code:         deref(m.PixCode),
			QRCodeBase64: deref(m.PixQRCodeBase64),
			ExpiresAt:    m.PixExpiresAt,
		},
		FunnelID: m.FunnelID,
		LeadID:   m.LeadID,
		UTM: domain.UTM{
			Source:   m.UTMSource,
			Medium:   m.UTMMedium,
			Campaign: m.UTMCampaign,
			Content:  m.UTMContent,
			Term:     m.UTMTerm,
			Src:      m.Src,
			Sck:      m.Sck,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func paymentModelFromDomain(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:                p.ID,
		Provider:          string(p.Provider),
		ProviderPaymentID: p.ProviderPaymentID,
		ExternalID:        p.ExternalID,
		UserID:            p.UserID,
		ProductType:       string(p.ProductType),
		ProductID:         p.ProductID,
		ProductName:       p.ProductName,
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		BuyerName:         p.Buyer.Name,
		BuyerEmail:        p.Buyer.Email,
		BuyerPhone:        p.Buyer.Phone,
		BuyerDocument:     p.Buyer.Document,
		Status:            string(p.Status),
		DeliveryStatus:    string(p.DeliveryStatus),
		DeliveredAt:       p.DeliveredAt,
		RemindedAt:        p.RemindedAt,
		PaidAt:            p.PaidAt,
		PixCode:           nullable(p.Pix.Code),
		PixQRCodeBase64:   nullable(p.Pix.QRCodeBase64),
		PixExpiresAt:      p.Pix.ExpiresAt,
		FunnelID:          p.FunnelID,
		LeadID:            p.LeadID,
		UTMSource:         p.UTM.Source,
		UTMMedium:         p.UTM.Medium,
		UTMCampaign:       p.UTM.Campaign,
		UTMContent:        p.UTM.Content,
		UTMTerm:           p.UTM.Term,
		Src:               p.UTM.Src,
		Sck:               p.UTM.Sck,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

// =============================================================================
// Каталог
// =============================================================================

// PlanModel — строка subscription_plans.
type PlanModel struct {
	ID         string `gorm:"column:id;primaryKey"`
	Slug       string `gorm:"column:slug"`
	Name       string `gorm:"column:name"`
	PriceCents int64  `gorm:"column:price_cents"`
	IsActive   bool   `gorm:"column:is_active"`
}

func (PlanModel) TableName() string { return "subscription_plans" }

// ItemModel — строка tiktok_accounts или models.
type ItemModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	SellerID      string     `gorm:"column:seller_id"`
	Title         string     `gorm:"column:title"`
	PriceCents    int64      `gorm:"column:price_cents"`
	IsSold        bool       `gorm:"column:is_sold"`
	BuyerID       *string    `gorm:"column:buyer_id"`
	SoldAt        *time.Time `gorm:"column:sold_at"`
	ReservedBy    *string    `gorm:"column:reserved_by"`
	ReservedUntil *time.Time `gorm:"column:reserved_until"`
}

// FunnelProductModel — строка funnel_products.
type FunnelProductModel struct {
	ID              string  `gorm:"column:id;primaryKey"`
	FunnelID        string  `gorm:"column:funnel_id"`
	Name            string  `gorm:"column:name"`
	PriceCents      int64   `gorm:"column:price_cents"`
	DeliveryType    string  `gorm:"column:delivery_type"`
	DeliveryLink    *string `gorm:"column:delivery_link"`
	DeliveryMessage *string `gorm:"column:delivery_message"`
	IsActive        bool    `gorm:"column:is_active"`
}

func (FunnelProductModel) TableName() string { return "funnel_products" }

// funnelRow — результат JOIN funnels + telegram_bots.
type funnelRow struct {
	ID       string  `gorm:"column:id"`
	UserID   string  `gorm:"column:user_id"`
	Name     string  `gorm:"column:name"`
	BotToken *string `gorm:"column:bot_token"`
}

// LeadModel — строка funnel_leads.
type LeadModel struct {
	ID        string  `gorm:"column:id;primaryKey"`
	FunnelID  string  `gorm:"column:funnel_id"`
	ChatID    int64   `gorm:"column:chat_id"`
	FirstName *string `gorm:"column:first_name"`
}

func (LeadModel) TableName() string { return "funnel_leads" }

// =============================================================================
// Вспомогательные
// =============================================================================

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKeyError проверяет нарушение UNIQUE (MySQL 1062).
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "1062")
}
