package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/pkg/tracing"
	"example.com/funnel-payments/services/payment/internal/client/telegram"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/repository"
)

// Dispatcher выполняет выдачу оплаченного продукта. Вызывается только после
// успешного захвата выдачи, поэтому сам повторы не отслеживает.
type Dispatcher interface {
	Fulfill(ctx context.Context, payment *domain.Payment) error
}

type dispatcher struct {
	catalog      repository.CatalogRepository
	entitlements repository.EntitlementRepository
	messenger    Messenger
	now          func() time.Time
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(
	catalog repository.CatalogRepository,
	entitlements repository.EntitlementRepository,
	messenger Messenger,
) Dispatcher {
	return &dispatcher{
		catalog:      catalog,
		entitlements: entitlements,
		messenger:    messenger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (d *dispatcher) Fulfill(ctx context.Context, payment *domain.Payment) (err error) {
	ctx, span := tracing.Start(ctx, "fulfillment.Fulfill",
		attribute.String("payment_id", payment.ID),
		attribute.String("product_type", string(payment.ProductType)),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()

		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.Fulfillments.WithLabelValues(string(payment.ProductType), result).Inc()
	}()

	switch {
	case payment.ProductType == domain.ProductSubscription:
		err = d.activatePlan(ctx, payment)
	case payment.ProductType.IsMarketplace():
		err = d.sellItem(ctx, payment)
	case payment.ProductType == domain.ProductFunnel:
		err = d.deliverFunnelProduct(ctx, payment)
	default:
		err = domain.Validationf("неизвестный тип продукта %q", payment.ProductType)
	}
	return err
}

func (d *dispatcher) activatePlan(ctx context.Context, p *domain.Payment) error {
	now := d.now()
	expiresAt := now.AddDate(0, domain.SubscriptionPeriod, 0)

	if err := d.entitlements.ActivatePlan(ctx, p.UserID, p.ProductID, now, expiresAt); err != nil {
		return fmt.Errorf("ошибка активации плана: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", p.ID).
		Str("user_id", p.UserID).
		Str("plan", p.ProductID).
		Time("expires_at", expiresAt).
		Msg("План активирован")
	return nil
}

func (d *dispatcher) sellItem(ctx context.Context, p *domain.Payment) error {
	err := d.catalog.MarkItemSold(ctx, p.ProductType, p.ProductID, p.UserID, d.now())
	if errors.Is(err, domain.ErrItemSold) {
		logger.Ctx(ctx).Error().
			Str("payment_id", p.ID).
			Str("item_id", p.ProductID).
			Str("buyer_id", p.UserID).
			Msg("Попытка повторной продажи товара")
		return err
	}
	if err != nil {
		return err
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", p.ID).
		Str("item_id", p.ProductID).
		Str("product_type", string(p.ProductType)).
		Msg("Товар продан")
	return nil
}

func (d *dispatcher) deliverFunnelProduct(ctx context.Context, p *domain.Payment) error {
	if p.LeadID == nil {
		return domain.Validationf("у платежа %s нет лида для выдачи", p.ID)
	}

	product, err := d.catalog.GetFunnelProduct(ctx, p.ProductID)
	if err != nil {
		return err
	}

	funnelID := product.FunnelID
	if p.FunnelID != nil {
		funnelID = *p.FunnelID
	}
	funnel, err := d.catalog.GetFunnel(ctx, funnelID)
	if err != nil {
		return err
	}
	lead, err := d.catalog.GetLead(ctx, *p.LeadID)
	if err != nil {
		return err
	}

	sent, err := d.messenger.SendMessage(ctx, funnel.BotToken, telegram.Message{
		ChatID:    lead.ChatID,
		Text:      DeliveryText(product),
		ParseMode: telegram.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("ошибка отправки продукта в Telegram: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", p.ID).
		Str("funnel_id", funnelID).
		Int64("chat_id", lead.ChatID).
		Int64("message_id", sent.MessageID).
		Msg("Продукт воронки доставлен")
	return nil
}
