package domain

import "time"

// ProductType — тип покупаемого продукта.
type ProductType string

const (
	ProductSubscription  ProductType = "subscription"
	ProductTikTokAccount ProductType = "tiktok_account"
	ProductModel         ProductType = "model"
	ProductFunnel        ProductType = "funnel_product"
)

// IsMarketplace — товар из каталога (tiktok_accounts / models).
func (t ProductType) IsMarketplace() bool {
	return t == ProductTikTokAccount || t == ProductModel
}

// InventoryTable возвращает таблицу каталога для товара маркетплейса.
func (t ProductType) InventoryTable() string {
	switch t {
	case ProductTikTokAccount:
		return "tiktok_accounts"
	case ProductModel:
		return "models"
	}
	return ""
}

// SubscriptionPeriod — срок подписки после оплаты.
const SubscriptionPeriod = 1 // месяц

// Plan — тарифный план подписки.
type Plan struct {
	ID         string
	Slug       string
	Name       string
	PriceCents int64
	IsActive   bool
}

// MarketplaceItem — аккаунт TikTok или модель в каталоге.
type MarketplaceItem struct {
	ID            string
	Type          ProductType
	SellerID      string
	Title         string
	PriceCents    int64
	IsSold        bool
	BuyerID       *string
	SoldAt        *time.Time
	ReservedBy    *string
	ReservedUntil *time.Time
}

// HeldByOther — действующий резерв другого покупателя.
func (i *MarketplaceItem) HeldByOther(userID string, now time.Time) bool {
	if i.ReservedBy == nil || i.ReservedUntil == nil {
		return false
	}
	return *i.ReservedBy != userID && i.ReservedUntil.After(now)
}

// DeliveryType — способ выдачи продукта воронки.
type DeliveryType string

const (
	DeliveryLink    DeliveryType = "link"
	DeliveryMessage DeliveryType = "message"
	DeliveryBoth    DeliveryType = "both"
)

// FunnelProduct — цифровой товар, выдаваемый ботом воронки.
type FunnelProduct struct {
	ID              string
	FunnelID        string
	Name            string
	PriceCents      int64
	DeliveryType    DeliveryType
	DeliveryLink    string
	DeliveryMessage string
	IsActive        bool
}

// Funnel — воронка продавца и токен её Telegram бота.
type Funnel struct {
	ID       string
	UserID   string
	Name     string
	BotToken string
}

// Lead — подписчик бота воронки.
type Lead struct {
	ID        string
	FunnelID  string
	ChatID    int64
	FirstName string
}

// MercadoPagoIntegration — OAuth подключение продавца к Mercado Pago.
type MercadoPagoIntegration struct {
	UserID      string
	AccessToken string
	PublicKey   string
	IsActive    bool
}

// UtmifyIntegration — API токен продавца в UTMify.
type UtmifyIntegration struct {
	UserID   string
	APIToken string
	IsActive bool
}

// ReminderLog — запись журнала отправленных напоминаний.
type ReminderLog struct {
	ID        string
	PaymentID string
	ChatID    int64
	MessageID int64
	CreatedAt time.Time
}
