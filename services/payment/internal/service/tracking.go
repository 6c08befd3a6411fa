package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/funnel-payments/pkg/kafka"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/services/payment/internal/client/utmify"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/repository"
)

// TrackEventRequest — запрос ретрансляции события в UTMify.
type TrackEventRequest struct {
	PaymentID string
	UserID    string // владелец интеграции UTMify, по умолчанию владелец платежа
	EventType string

	// RequesterID — пользователь из access token. Пустой для service_role
	// и событий из Kafka; иначе платёж должен принадлежать ему.
	RequesterID string
}

// TrackResult — ответ ретранслятора. Отказ UTMify не является ошибкой вызова.
type TrackResult struct {
	OK      bool
	Sent    bool
	Error   string
	Status  int
	Details string
}

// TrackingConfig — настройки атрибуции.
type TrackingConfig struct {
	Platform string
	IsTest   bool
}

// TrackingRelay передаёт события платежей в UTMify не более одного раза
// на пару (provider:provider_payment_id, event_type).
type TrackingRelay struct {
	payments     repository.PaymentRepository
	integrations repository.IntegrationRepository
	events       repository.TrackingRepository
	client       AttributionClient
	cfg          TrackingConfig
	now          func() time.Time
}

// NewTrackingRelay создаёт TrackingRelay.
func NewTrackingRelay(
	payments repository.PaymentRepository,
	integrations repository.IntegrationRepository,
	events repository.TrackingRepository,
	client AttributionClient,
	cfg TrackingConfig,
) *TrackingRelay {
	return &TrackingRelay{
		payments:     payments,
		integrations: integrations,
		events:       events,
		client:       client,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// TrackEvent отправляет событие. Ошибка возвращается для неверного запроса
// и отсутствующих данных; ответ UTMify отражается в TrackResult.
func (r *TrackingRelay) TrackEvent(ctx context.Context, req TrackEventRequest) (*TrackResult, error) {
	if req.PaymentID == "" {
		return nil, domain.Validationf("payment_id обязателен")
	}
	status, err := MapTrackingEvent(req.EventType)
	if err != nil {
		return nil, err
	}

	payment, err := r.payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	// Чужой платёж неотличим от несуществующего.
	if req.RequesterID != "" && payment.UserID != req.RequesterID {
		logger.Ctx(ctx).Warn().
			Str("payment_id", payment.ID).
			Str("requester_id", req.RequesterID).
			Msg("Попытка трекинга чужого платежа")
		return nil, domain.ErrPaymentNotFound
	}

	userID := req.UserID
	if userID == "" || req.RequesterID != "" {
		userID = payment.UserID
	}
	integration, err := r.integrations.GetUtmify(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := trackingKey(payment)

	log := logger.FromContext(ctx).With().
		Str("payment_id", payment.ID).
		Str("event_type", status).
		Logger()

	reserved, err := r.events.Reserve(ctx, key, status)
	if err != nil {
		return nil, err
	}
	if !reserved {
		metrics.TrackingEvents.WithLabelValues("duplicate").Inc()
		log.Debug().Msg("Событие уже отправлено в UTMify")
		return &TrackResult{OK: true, Sent: false}, nil
	}

	resp, err := r.client.SendOrder(ctx, integration.APIToken, r.buildOrder(payment, status))
	if err != nil {
		r.release(ctx, key, status)
		metrics.TrackingEvents.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("UTMify недоступен")
		return &TrackResult{OK: false, Error: "utmify_unavailable", Details: err.Error()}, nil
	}
	if !resp.OK() {
		r.release(ctx, key, status)
		metrics.TrackingEvents.WithLabelValues("rejected").Inc()
		log.Warn().Int("status", resp.StatusCode).Str("body", resp.Body).Msg("UTMify отклонил событие")
		return &TrackResult{OK: false, Error: "utmify_rejected", Status: resp.StatusCode, Details: resp.Body}, nil
	}

	if err := r.events.MarkSent(ctx, key, status, resp.StatusCode); err != nil {
		log.Error().Err(err).Msg("Ошибка сохранения статуса отправки")
	}
	metrics.TrackingEvents.WithLabelValues("sent").Inc()
	log.Info().Msg("Событие передано в UTMify")

	return &TrackResult{OK: true, Sent: true, Status: resp.StatusCode}, nil
}

// trackingKey — ключ дедупликации. ID провайдеров уникальны только в пределах провайдера.
func trackingKey(p *domain.Payment) string {
	id := p.ProviderPaymentID
	if id == "" {
		id = p.ID
	}
	return string(p.Provider) + ":" + id
}

// HandleEvent — обработчик сообщений payment.events.
// Ошибки, которые не исправятся повтором, логируются и сообщение подтверждается.
func (r *TrackingRelay) HandleEvent(ctx context.Context, msg *kafka.Message) error {
	log := logger.FromContext(ctx)

	var event PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().Err(err).Str("key", string(msg.Key)).Msg("Некорректное событие платежа")
		return nil
	}

	result, err := r.TrackEvent(ctx, TrackEventRequest{
		PaymentID: event.PaymentID,
		EventType: event.EventType,
	})
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		log.Debug().Err(err).Str("payment_id", event.PaymentID).Msg("Событие не передаётся в UTMify")
		return nil
	case err != nil:
		return err
	}

	// Сетевой сбой и 5xx повторяются, 4xx — нет.
	if !result.OK && (result.Status == 0 || result.Status >= 500) {
		return fmt.Errorf("utmify: %s (%d)", result.Error, result.Status)
	}
	return nil
}

func (r *TrackingRelay) release(ctx context.Context, key, status string) {
	if err := r.events.Release(ctx, key, status); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("provider_payment_id", key).
			Str("event_type", status).
			Msg("Ошибка снятия резерва события")
	}
}

func (r *TrackingRelay) buildOrder(p *domain.Payment, status string) utmify.Order {
	now := r.now()
	order := utmify.Order{
		OrderID:       p.ExternalID,
		Platform:      r.cfg.Platform,
		PaymentMethod: "pix",
		Status:        status,
		CreatedAt:     p.CreatedAt.UTC().Format(utmify.DateLayout),
		Customer: utmify.Customer{
			Name:     p.Buyer.Name,
			Email:    p.Buyer.Email,
			Phone:    optional(p.Buyer.Phone),
			Document: optional(p.Buyer.Document),
			Country:  "BR",
		},
		Products: []utmify.Product{{
			ID:           p.ProductID,
			Name:         p.ProductName,
			Quantity:     1,
			PriceInCents: p.AmountCents,
		}},
		TrackingParameters: utmify.TrackingParameters{
			Src:         p.UTM.Src,
			Sck:         p.UTM.Sck,
			UTMSource:   p.UTM.Source,
			UTMCampaign: p.UTM.Campaign,
			UTMMedium:   p.UTM.Medium,
			UTMContent:  p.UTM.Content,
			UTMTerm:     p.UTM.Term,
		},
		Commission: utmify.Commission{
			TotalPriceInCents:     p.AmountCents,
			UserCommissionInCents: p.AmountCents,
		},
		IsTest: r.cfg.IsTest,
	}

	switch status {
	case EventApproved:
		approved := now
		if p.PaidAt != nil {
			approved = *p.PaidAt
		}
		s := approved.UTC().Format(utmify.DateLayout)
		order.ApprovedDate = &s
	case EventRefunded, EventChargeback:
		s := now.Format(utmify.DateLayout)
		order.RefundedAt = &s
	}
	return order
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
