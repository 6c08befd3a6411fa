package service

import (
	"context"
	"time"

	"example.com/funnel-payments/pkg/kafka"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// Типы событий атрибуции (словарь UTMify).
const (
	EventPending    = "pending"
	EventApproved   = "approved"
	EventRefused    = "refused"
	EventRefunded   = "refunded"
	EventChargeback = "chargeback"
)

// eventAliases — внутренние и провайдерские имена событий.
var eventAliases = map[string]string{
	"pix_generated":   EventPending,
	"pending":         EventPending,
	"waiting_payment": EventPending,
	"paid":            EventApproved,
	"approved":        EventApproved,
	"refused":         EventRefused,
	"rejected":        EventRefused,
	"cancelled":       EventRefused,
	"canceled":        EventRefused,
	"expired":         EventRefused,
	"refunded":        EventRefunded,
	"chargeback":      EventChargeback,
	"charged_back":    EventChargeback,
}

// MapTrackingEvent приводит event_type к словарю UTMify.
func MapTrackingEvent(eventType string) (string, error) {
	ev, ok := eventAliases[eventType]
	if !ok {
		return "", domain.Validationf("неизвестный event_type %q", eventType)
	}
	return ev, nil
}

// trackingEventForStatus — событие атрибуции для статуса платежа.
func trackingEventForStatus(s domain.Status) string {
	ev, _ := MapTrackingEvent(string(s))
	return ev
}

// PaymentEvent — payload сообщений payment.events.
type PaymentEvent struct {
	PaymentID  string    `json:"payment_id"`
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"`
	EventType  string    `json:"event_type"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// newPaymentEvent создаёт запись outbox для события платежа.
func newPaymentEvent(ctx context.Context, p *domain.Payment, status domain.Status, at time.Time) (*outbox.Outbox, error) {
	ev := trackingEventForStatus(status)
	payload := PaymentEvent{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Provider:   string(p.Provider),
		EventType:  ev,
		Status:     string(status),
		OccurredAt: at,
	}

	headers := map[string]string{}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		headers[kafka.HeaderTraceID] = traceID
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		headers[kafka.HeaderCorrelationID] = correlationID
	}

	return outbox.New(p.ID, "payment."+ev, kafka.TopicPaymentEvents, payload, headers)
}
