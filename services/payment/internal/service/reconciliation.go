package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/pkg/tracing"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/repository"
)

// Outcome — итог обработки уведомления провайдера.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"   // статус изменён или выдача выполнена
	OutcomeDuplicate Outcome = "duplicate" // повтор уже применённого уведомления
	OutcomeNotFound  Outcome = "not_found" // платёж неизвестен, записей нет
	OutcomeIgnored   Outcome = "ignored"   // тип события или переход не обрабатываются
	OutcomeError     Outcome = "error"
)

// GatewayNotification — postback прямого PIX шлюза.
type GatewayNotification struct {
	Event string
	Data  GatewayPaymentData
}

// GatewayPaymentData — состояние платежа в postback.
type GatewayPaymentData struct {
	ID            string
	Status        string
	PaymentMethod string
	TotalAmount   int64
	NetAmount     int64
	CreatedAt     string
}

// MercadoPagoNotification — уведомление Mercado Pago. Несёт только id платежа,
// состояние перечитывается из API с токеном продавца.
type MercadoPagoNotification struct {
	Type   string
	Action string
	DataID string
	Owner  string // ?owner= из notification_url
}

// ReconciliationService применяет уведомления провайдеров к платежам.
type ReconciliationService interface {
	HandleGatewayWebhook(ctx context.Context, n GatewayNotification) (Outcome, error)
	HandleMercadoPagoWebhook(ctx context.Context, n MercadoPagoNotification) (Outcome, error)

	// GetFunnelPixStatus перечитывает pending платёж воронки у Mercado Pago,
	// применяет изменения и возвращает актуальную запись.
	// requesterID пустой для service_role, иначе платёж должен принадлежать ему.
	GetFunnelPixStatus(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)
}

type reconciliationService struct {
	payments     repository.PaymentRepository
	catalog      repository.CatalogRepository
	integrations repository.IntegrationRepository
	mercadoPago  MercadoPago
	dispatcher   Dispatcher
	now          func() time.Time
}

// NewReconciliationService создаёт ReconciliationService.
func NewReconciliationService(
	payments repository.PaymentRepository,
	catalog repository.CatalogRepository,
	integrations repository.IntegrationRepository,
	mercadoPago MercadoPago,
	dispatcher Dispatcher,
) ReconciliationService {
	return &reconciliationService{
		payments:     payments,
		catalog:      catalog,
		integrations: integrations,
		mercadoPago:  mercadoPago,
		dispatcher:   dispatcher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// Вебхуки
// =============================================================================

func (s *reconciliationService) HandleGatewayWebhook(ctx context.Context, n GatewayNotification) (outcome Outcome, err error) {
	defer observeWebhook(domain.ProviderPixGateway, &outcome, &err)

	if n.Data.ID == "" {
		return OutcomeIgnored, domain.Validationf("в уведомлении нет data.id")
	}
	to, err := domain.NormalizeStatus(n.Data.Status)
	if err != nil {
		return OutcomeIgnored, err
	}

	payment, err := s.payments.GetByProviderPaymentID(ctx, domain.ProviderPixGateway, n.Data.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.Ctx(ctx).Warn().
			Str("provider_payment_id", n.Data.ID).
			Str("event", n.Event).
			Msg("Вебхук по неизвестному платежу")
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	return s.reconcile(ctx, payment, to, nil)
}

func (s *reconciliationService) HandleMercadoPagoWebhook(ctx context.Context, n MercadoPagoNotification) (outcome Outcome, err error) {
	defer observeWebhook(domain.ProviderMercadoPago, &outcome, &err)

	if n.Type != "payment" && !strings.HasPrefix(n.Action, "payment.") {
		return OutcomeIgnored, nil
	}
	if n.DataID == "" {
		return OutcomeIgnored, domain.Validationf("в уведомлении нет data.id")
	}

	payment, err := s.payments.GetByProviderPaymentID(ctx, domain.ProviderMercadoPago, n.DataID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.Ctx(ctx).Warn().
			Str("provider_payment_id", n.DataID).
			Str("owner", n.Owner).
			Msg("Вебхук Mercado Pago по неизвестному платежу")
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	if n.Owner != "" && n.Owner != payment.UserID {
		logger.Ctx(ctx).Warn().
			Str("payment_id", payment.ID).
			Str("owner", n.Owner).
			Str("user_id", payment.UserID).
			Msg("owner уведомления не совпадает с владельцем платежа")
		return OutcomeIgnored, nil
	}

	return s.refreshFromMercadoPago(ctx, payment)
}

func (s *reconciliationService) GetFunnelPixStatus(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Provider != domain.ProviderMercadoPago {
		return nil, domain.ErrPaymentNotFound
	}
	if requesterID != "" && payment.UserID != requesterID {
		logger.Ctx(ctx).Warn().
			Str("payment_id", payment.ID).
			Str("requester_id", requesterID).
			Msg("Запрос статуса чужого платежа")
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusPending {
		return payment, nil
	}

	outcome, err := s.refreshFromMercadoPago(ctx, payment)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeApplied {
		return payment, nil
	}
	return s.payments.GetByID(ctx, paymentID)
}

// refreshFromMercadoPago перечитывает платёж у Mercado Pago и применяет статус.
func (s *reconciliationService) refreshFromMercadoPago(ctx context.Context, payment *domain.Payment) (Outcome, error) {
	integration, err := s.integrations.GetMercadoPago(ctx, payment.UserID)
	if err != nil {
		return OutcomeError, err
	}

	remote, err := s.mercadoPago.GetPayment(ctx, integration.AccessToken, payment.ProviderPaymentID)
	if err != nil {
		return OutcomeError, err
	}

	to, err := domain.NormalizeStatus(remote.Status)
	if err != nil {
		return OutcomeIgnored, err
	}

	return s.reconcile(ctx, payment, to, remote.DateApproved)
}

// =============================================================================
// Сверка
// =============================================================================

// reconcile применяет новый статус. Выдача запускается, только если этот вызов
// захватил её условным UPDATE.
func (s *reconciliationService) reconcile(ctx context.Context, p *domain.Payment, to domain.Status, paidAt *time.Time) (outcome Outcome, err error) {
	ctx, span := tracing.Start(ctx, "reconciliation.Reconcile",
		attribute.String("payment_id", p.ID),
		attribute.String("provider", string(p.Provider)),
		attribute.String("status", string(to)),
	)
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		tracing.RecordError(span, err)
		span.End()
	}()

	log := logger.FromContext(ctx).With().
		Str("payment_id", p.ID).
		Str("provider", string(p.Provider)).
		Str("from", string(p.Status)).
		Str("to", string(to)).
		Logger()

	// Повторный paid проходит дальше: выдача могла не захватиться в первый раз.
	retryClaim := to == domain.StatusPaid && p.DeliveryStatus != domain.DeliveryDelivered
	if p.Status == to && !retryClaim {
		log.Debug().Msg("Статус не изменился")
		return OutcomeDuplicate, nil
	}
	if p.Status != to && !domain.CanTransition(p.Status, to) {
		log.Info().Msg("Недопустимый переход статуса, уведомление пропущено")
		return OutcomeIgnored, nil
	}

	now := s.now()
	var events []*outbox.Outbox
	if to != domain.StatusPending {
		event, err := newPaymentEvent(ctx, p, to, now)
		if err != nil {
			return OutcomeError, err
		}
		events = append(events, event)
	}

	result, err := s.payments.ApplyTransition(ctx, domain.Transition{
		PaymentID: p.ID,
		Provider:  p.Provider,
		From:      p.Status,
		To:        to,
		PaidAt:    paidAt,
		At:        now,
	}, events)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка применения статуса")
		return OutcomeError, err
	}

	if !result.Applied && !result.Claimed {
		log.Info().Msg("Уведомление уже применено")
		return OutcomeDuplicate, nil
	}

	if result.Applied {
		log.Info().Msg("Статус платежа обновлён")
		p.Status = to
		if to.IsFailure() && p.ProductType.IsMarketplace() {
			if err := s.catalog.ReleaseItem(ctx, p.ProductType, p.ProductID, p.UserID); err != nil {
				log.Error().Err(err).Msg("Ошибка снятия резерва товара")
			}
		}
	}

	if result.Claimed {
		p.DeliveryStatus = domain.DeliveryDelivered
		if err := s.dispatcher.Fulfill(ctx, p); err != nil {
			// Флаг delivered не откатывается, сбой виден в логах и fulfillments_total.
			log.Error().Err(err).Str("product_type", string(p.ProductType)).Msg("Ошибка выдачи продукта")
		}
	}

	return OutcomeApplied, nil
}

func observeWebhook(provider domain.Provider, outcome *Outcome, err *error) {
	o := *outcome
	if *err != nil && o != OutcomeIgnored {
		o = OutcomeError
	}
	metrics.Webhooks.WithLabelValues(string(provider), string(o)).Inc()
}
