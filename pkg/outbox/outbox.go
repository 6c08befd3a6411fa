// Package outbox реализует Outbox Pattern для событий жизненного цикла платежей.
// Запись в outbox создаётся в той же транзакции, что и смена статуса платежа,
// отдельный Worker публикует её в Kafka (payment.events).
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AggregatePayment — тип агрегата для записей payment-service.
const AggregatePayment = "payment"

// Outbox — запись в таблице outbox.
type Outbox struct {
	ID            string
	AggregateType string // payment
	AggregateID   string // ID платежа
	EventType     string // payment.approved, payment.refunded...
	Topic         string
	MessageKey    string // ключ партиционирования
	Payload       []byte // JSON
	Headers       map[string]string
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil = ещё не отправлена
	RetryCount    int
	LastError     *string
}

// New создаёт запись outbox, сериализуя payload в JSON.
// Ключом сообщения служит aggregateID: события одного платежа идут в одну партицию.
func New(aggregateID, eventType, topic string, payload any, headers map[string]string) (*Outbox, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации payload outbox: %w", err)
	}

	return &Outbox{
		ID:            uuid.New().String(),
		AggregateType: AggregatePayment,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		MessageKey:    aggregateID,
		Payload:       data,
		Headers:       headers,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// HeadersJSON возвращает headers в формате JSON для БД.
func (o *Outbox) HeadersJSON() ([]byte, error) {
	if o.Headers == nil {
		return nil, nil
	}
	return json.Marshal(o.Headers)
}

// SetHeadersFromJSON устанавливает headers из JSON.
func (o *Outbox) SetHeadersFromJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &o.Headers)
}
