// Package domain содержит бизнес-сущности платёжного конвейера:
// платёж и его статусы, продукты, лиды и интеграции продавцов.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider — платёжный провайдер.
type Provider string

const (
	// ProviderPixGateway — прямой PIX шлюз, записи в transactions.
	ProviderPixGateway Provider = "pixgateway"

	// ProviderMercadoPago — Mercado Pago с OAuth токеном продавца, записи в funnel_payments.
	ProviderMercadoPago Provider = "mercadopago"
)

// Table возвращает таблицу, в которой хранятся платежи провайдера.
func (p Provider) Table() string {
	if p == ProviderMercadoPago {
		return "funnel_payments"
	}
	return "transactions"
}

// Status — статус платежа.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusRefused    Status = "refused"
	StatusRefunded   Status = "refunded"
	StatusChargeback Status = "chargeback"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// statusAliases — синонимы статусов, приходящие от провайдеров.
var statusAliases = map[string]Status{
	"pending":         StatusPending,
	"waiting_payment": StatusPending,
	"in_process":      StatusPending,
	"authorized":      StatusPending,
	"paid":            StatusPaid,
	"approved":        StatusPaid,
	"refused":         StatusRefused,
	"rejected":        StatusRefused,
	"refunded":        StatusRefunded,
	"chargeback":      StatusChargeback,
	"charged_back":    StatusChargeback,
	"cancelled":       StatusCancelled,
	"canceled":        StatusCancelled,
	"expired":         StatusExpired,
}

// NormalizeStatus приводит статус провайдера к Status.
func NormalizeStatus(raw string) (Status, error) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", Validationf("неизвестный статус платежа %q", raw)
	}
	return s, nil
}

// predecessors — из каких статусов допустим переход в ключевой.
// Статус меняется только вперёд.
var predecessors = map[Status][]Status{
	StatusPaid:       {StatusPending},
	StatusRefused:    {StatusPending},
	StatusCancelled:  {StatusPending},
	StatusExpired:    {StatusPending},
	StatusRefunded:   {StatusPaid},
	StatusChargeback: {StatusPaid},
}

// Predecessors возвращает статусы, из которых допустим переход в s.
func Predecessors(s Status) []Status {
	return predecessors[s]
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to Status) bool {
	for _, p := range predecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

// IsFailure — платёж не состоялся, резерв товара можно снять.
func (s Status) IsFailure() bool {
	return s == StatusRefused || s == StatusCancelled || s == StatusExpired
}

// DeliveryStatus — состояние выдачи продукта.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// Buyer — данные покупателя. Name хранится уже очищенным.
type Buyer struct {
	Name     string
	Email    string
	Phone    string
	Document string
}

// UTM — параметры атрибуции, передаваемые в UTMify.
type UTM struct {
	Source   *string
	Medium   *string
	Campaign *string
	Content  *string
	Term     *string
	Src      *string
	Sck      *string
}

// Pix — данные для оплаты PIX.
type Pix struct {
	Code         string
	QRCodeBase64 string
	ExpiresAt    *time.Time
}

// Payment — одна попытка покупки (строка transactions или funnel_payments).
type Payment struct {
	ID                string
	Provider          Provider
	ProviderPaymentID string
	ExternalID        string
	UserID            string
	ProductType       ProductType
	ProductID         string
	ProductName       string
	AmountCents       int64
	Currency          string
	Buyer             Buyer
	Status            Status
	DeliveryStatus    DeliveryStatus
	DeliveredAt       *time.Time
	RemindedAt        *time.Time
	PaidAt            *time.Time
	Pix               Pix
	FunnelID          *string
	LeadID            *string
	UTM               UTM
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewExternalID формирует идентификатор заказа {product_type}_{caller}_{epoch_ms}.
func NewExternalID(productType ProductType, callerID string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", productType, callerID, now.UnixMilli())
}

// Transition — смена статуса, пришедшая от провайдера.
type Transition struct {
	PaymentID string
	Provider  Provider
	From      Status
	To        Status
	PaidAt    *time.Time
	At        time.Time
}

// TransitionResult — итог применения Transition.
type TransitionResult struct {
	// Applied — статус обновлён (условный UPDATE затронул строку).
	Applied bool

	// Claimed — выдача продукта захвачена этим вызовом. Только один вызов
	// на платёж получает Claimed=true.
	Claimed bool
}
