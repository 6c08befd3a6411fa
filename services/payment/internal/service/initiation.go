package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/services/payment/internal/client/mercadopago"
	"example.com/funnel-payments/services/payment/internal/client/pixgateway"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/repository"
)

// =============================================================================
// Запросы и результаты
// =============================================================================

// CreatePaymentRequest — покупка подписки или товара маркетплейса.
type CreatePaymentRequest struct {
	UserID         string
	ProductType    domain.ProductType
	ProductID      string
	PlanSlug       string
	Buyer          domain.Buyer
	UTM            domain.UTM
	IdempotencyKey string // заголовок Idempotency-Key, необязателен
}

// CreateFunnelPixRequest — PIX за продукт воронки (Mercado Pago продавца).
type CreateFunnelPixRequest struct {
	FunnelID  string
	ProductID string
	LeadID    string
	Buyer     domain.Buyer
	UTM       domain.UTM
}

// StatusActive — статус ответа для бесплатной активации.
const StatusActive = "active"

// PaymentResult — ответ инициации.
type PaymentResult struct {
	ID          string
	ExternalID  string
	Status      string
	Pix         *domain.Pix
	AmountCents int64
	Free        bool // выдано без оплаты, записи платежа нет
	Replayed    bool // повтор запроса с тем же Idempotency-Key
}

// InitiationConfig — настройки инициации.
type InitiationConfig struct {
	InventoryHoldTTL           time.Duration
	MercadoPagoNotificationURL string
}

// InitiationService создаёт PIX платежи.
type InitiationService interface {
	// CreatePayment — подписка или товар маркетплейса через прямой шлюз.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResult, error)

	// CreateFunnelPix — продукт воронки через Mercado Pago продавца.
	CreateFunnelPix(ctx context.Context, req CreateFunnelPixRequest) (*PaymentResult, error)
}

// =============================================================================
// Реализация
// =============================================================================

type initiationService struct {
	payments     repository.PaymentRepository
	catalog      repository.CatalogRepository
	integrations repository.IntegrationRepository
	gateway      PixGateway
	mercadoPago  MercadoPago
	dispatcher   Dispatcher
	idempotency  IdempotencyStore
	cfg          InitiationConfig
	now          func() time.Time
}

// NewInitiationService создаёт InitiationService. idempotency может быть nil.
func NewInitiationService(
	payments repository.PaymentRepository,
	catalog repository.CatalogRepository,
	integrations repository.IntegrationRepository,
	gateway PixGateway,
	mercadoPago MercadoPago,
	dispatcher Dispatcher,
	idempotency IdempotencyStore,
	cfg InitiationConfig,
) InitiationService {
	return &initiationService{
		payments:     payments,
		catalog:      catalog,
		integrations: integrations,
		gateway:      gateway,
		mercadoPago:  mercadoPago,
		dispatcher:   dispatcher,
		idempotency:  idempotency,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// resolvedProduct — продукт и цена после проверки каталога.
type resolvedProduct struct {
	ID         string
	Name       string
	PriceCents int64
}

func (s *initiationService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (result *PaymentResult, err error) {
	if err := validateCreatePayment(&req); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With().
		Str("user_id", req.UserID).
		Str("product_type", string(req.ProductType)).
		Logger()

	// Idempotency-Key: повтор возвращает уже созданный платёж.
	if req.IdempotencyKey != "" && s.idempotency != nil {
		key := req.UserID + ":" + req.IdempotencyKey
		acquired, existingID, idemErr := s.idempotency.Acquire(ctx, key)
		switch {
		case idemErr != nil:
			// Redis недоступен: продолжаем, UNIQUE external_id защищает от дублей записи
			log.Error().Err(idemErr).Msg("Ошибка Redis при проверке идемпотентности")
		case !acquired && existingID != "":
			existing, getErr := s.payments.GetByID(ctx, existingID)
			if getErr != nil {
				return nil, getErr
			}
			log.Info().Str("payment_id", existing.ID).Msg("Платёж уже создан (идемпотентность)")
			res := resultFromPayment(existing)
			res.Replayed = true
			return res, nil
		case !acquired:
			return nil, fmt.Errorf("запрос с этим Idempotency-Key ещё выполняется: %w", domain.ErrDuplicatePayment)
		default:
			defer func() {
				if err != nil || result == nil || result.Free {
					_ = s.idempotency.Abort(ctx, key)
					return
				}
				if cErr := s.idempotency.Complete(ctx, key, result.ID); cErr != nil {
					log.Warn().Err(cErr).Msg("Ошибка сохранения ключа идемпотентности")
				}
			}()
		}
	}

	product, err := s.resolveProduct(ctx, req)
	if err != nil {
		return nil, err
	}

	buyer := req.Buyer
	buyer.Name = domain.SanitizeBuyerName(buyer.Name)
	now := s.now()

	if product.PriceCents == 0 {
		return s.fulfillFree(ctx, &domain.Payment{
			UserID:      req.UserID,
			ProductType: req.ProductType,
			ProductID:   product.ID,
			ProductName: product.Name,
			Buyer:       buyer,
		})
	}

	// Мягкий резерв товара до подтверждения оплаты.
	if req.ProductType.IsMarketplace() {
		if err := s.catalog.ReserveItem(ctx, req.ProductType, product.ID, req.UserID, now.Add(s.cfg.InventoryHoldTTL), now); err != nil {
			return nil, err
		}
	}
	releaseHold := func() {
		if !req.ProductType.IsMarketplace() {
			return
		}
		if err := s.catalog.ReleaseItem(ctx, req.ProductType, product.ID, req.UserID); err != nil {
			log.Error().Err(err).Str("item_id", product.ID).Msg("Ошибка снятия резерва товара")
		}
	}

	externalID := domain.NewExternalID(req.ProductType, req.UserID, now)

	charge, err := s.gateway.CreatePix(ctx, pixgateway.CreatePixRequest{
		AmountCents: product.PriceCents,
		ExternalID:  externalID,
		Customer: pixgateway.Customer{
			Name:     buyer.Name,
			Email:    buyer.Email,
			Phone:    buyer.Phone,
			Document: buyer.Document,
		},
		Items: []pixgateway.Item{{Title: product.Name, UnitPrice: product.PriceCents, Quantity: 1}},
	})
	if err != nil {
		releaseHold()
		log.Warn().Err(err).Str("external_id", externalID).Msg("Шлюз отклонил создание PIX")
		return nil, err
	}

	payment := &domain.Payment{
		ID:                uuid.New().String(),
		Provider:          domain.ProviderPixGateway,
		ProviderPaymentID: charge.ID,
		ExternalID:        externalID,
		UserID:            req.UserID,
		ProductType:       req.ProductType,
		ProductID:         product.ID,
		ProductName:       product.Name,
		AmountCents:       product.PriceCents,
		Currency:          "BRL",
		Buyer:             buyer,
		Status:            domain.StatusPending,
		DeliveryStatus:    domain.DeliveryPending,
		Pix: domain.Pix{
			Code:         charge.PixCode,
			QRCodeBase64: charge.QRCodeBase64,
			ExpiresAt:    charge.ExpiresAt,
		},
		UTM:       req.UTM,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.persistPending(ctx, payment); err != nil {
		releaseHold()
		return nil, err
	}

	return resultFromPayment(payment), nil
}

func (s *initiationService) CreateFunnelPix(ctx context.Context, req CreateFunnelPixRequest) (*PaymentResult, error) {
	if req.FunnelID == "" || req.ProductID == "" || req.LeadID == "" {
		return nil, domain.Validationf("funnel_id, product_id и lead_id обязательны")
	}

	product, err := s.catalog.GetFunnelProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive || product.FunnelID != req.FunnelID {
		return nil, domain.ErrProductNotFound
	}

	funnel, err := s.catalog.GetFunnel(ctx, req.FunnelID)
	if err != nil {
		return nil, err
	}
	lead, err := s.catalog.GetLead(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	if lead.FunnelID != req.FunnelID {
		return nil, domain.ErrLeadNotFound
	}

	buyer := req.Buyer
	if buyer.Name == "" {
		buyer.Name = lead.FirstName
	}
	buyer.Name = domain.SanitizeBuyerName(buyer.Name)
	if buyer.Email == "" {
		buyer.Email = fallbackPayerEmail(lead)
	}

	funnelID, leadID := funnel.ID, lead.ID

	if product.PriceCents == 0 {
		return s.fulfillFree(ctx, &domain.Payment{
			UserID:      funnel.UserID,
			ProductType: domain.ProductFunnel,
			ProductID:   product.ID,
			ProductName: product.Name,
			Buyer:       buyer,
			FunnelID:    &funnelID,
			LeadID:      &leadID,
		})
	}

	integration, err := s.integrations.GetMercadoPago(ctx, funnel.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	externalID := domain.NewExternalID(domain.ProductFunnel, funnel.UserID, now)

	mp, err := s.mercadoPago.CreatePix(ctx, integration.AccessToken, mercadopago.CreatePixRequest{
		AmountCents:       product.PriceCents,
		Description:       product.Name,
		ExternalReference: externalID,
		NotificationURL:   s.notificationURL(funnel.UserID),
		Payer: mercadopago.Payer{
			Email:          buyer.Email,
			FirstName:      buyer.Name,
			DocumentType:   documentType(buyer.Document),
			DocumentNumber: buyer.Document,
		},
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("funnel_id", funnel.ID).
			Str("external_id", externalID).
			Msg("Mercado Pago отклонил создание PIX")
		return nil, err
	}

	payment := &domain.Payment{
		ID:                uuid.New().String(),
		Provider:          domain.ProviderMercadoPago,
		ProviderPaymentID: mp.ID,
		ExternalID:        externalID,
		UserID:            funnel.UserID,
		ProductType:       domain.ProductFunnel,
		ProductID:         product.ID,
		ProductName:       product.Name,
		AmountCents:       product.PriceCents,
		Currency:          "BRL",
		Buyer:             buyer,
		Status:            domain.StatusPending,
		DeliveryStatus:    domain.DeliveryPending,
		Pix: domain.Pix{
			Code:         mp.QRCode,
			QRCodeBase64: mp.QRCodeBase64,
			ExpiresAt:    mp.ExpiresAt,
		},
		FunnelID:  &funnelID,
		LeadID:    &leadID,
		UTM:       req.UTM,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.persistPending(ctx, payment); err != nil {
		return nil, err
	}

	return resultFromPayment(payment), nil
}

// =============================================================================
// Вспомогательные методы
// =============================================================================

func validateCreatePayment(req *CreatePaymentRequest) error {
	if req.UserID == "" {
		return domain.Validationf("user_id обязателен")
	}
	switch req.ProductType {
	case domain.ProductSubscription:
		if req.PlanSlug == "" && req.ProductID == "" {
			return domain.Validationf("для подписки нужен plan_slug или product_id")
		}
	case domain.ProductTikTokAccount, domain.ProductModel:
		if req.ProductID == "" {
			return domain.Validationf("product_id обязателен")
		}
	default:
		return domain.Validationf("неподдерживаемый product_type %q", req.ProductType)
	}
	req.Buyer.Email = strings.TrimSpace(req.Buyer.Email)
	if req.Buyer.Email == "" {
		return domain.Validationf("buyer.email обязателен")
	}
	return nil
}

func (s *initiationService) resolveProduct(ctx context.Context, req CreatePaymentRequest) (*resolvedProduct, error) {
	if req.ProductType == domain.ProductSubscription {
		slug := req.PlanSlug
		if slug == "" {
			slug = req.ProductID
		}
		plan, err := s.catalog.GetPlanBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		return &resolvedProduct{ID: plan.Slug, Name: plan.Name, PriceCents: plan.PriceCents}, nil
	}

	item, err := s.catalog.GetMarketplaceItem(ctx, req.ProductType, req.ProductID)
	if err != nil {
		return nil, err
	}
	if item.IsSold {
		return nil, domain.ErrItemSold
	}
	if item.HeldByOther(req.UserID, s.now()) {
		return nil, domain.ErrItemReserved
	}
	return &resolvedProduct{ID: item.ID, Name: item.Title, PriceCents: item.PriceCents}, nil
}

// fulfillFree выдаёт бесплатный продукт без шлюза и без записи платежа.
func (s *initiationService) fulfillFree(ctx context.Context, p *domain.Payment) (*PaymentResult, error) {
	if err := s.dispatcher.Fulfill(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentsCreated.WithLabelValues("free", string(p.ProductType)).Inc()
	logger.Ctx(ctx).Info().
		Str("user_id", p.UserID).
		Str("product_type", string(p.ProductType)).
		Str("product_id", p.ProductID).
		Msg("Бесплатный продукт выдан без оплаты")

	return &PaymentResult{Status: StatusActive, AmountCents: 0, Free: true}, nil
}

// persistPending сохраняет pending платёж и событие payment.pending.
func (s *initiationService) persistPending(ctx context.Context, p *domain.Payment) error {
	event, err := newPaymentEvent(ctx, p, domain.StatusPending, p.CreatedAt)
	if err != nil {
		return err
	}

	if err := s.payments.Create(ctx, p, []*outbox.Outbox{event}); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("provider", string(p.Provider)).
			Str("provider_payment_id", p.ProviderPaymentID).
			Str("external_id", p.ExternalID).
			Msg("PIX создан у провайдера, но запись не сохранена")
		if errors.Is(err, domain.ErrDuplicatePayment) {
			return err
		}
		return fmt.Errorf("ошибка сохранения платежа: %w", err)
	}

	metrics.PaymentsCreated.WithLabelValues(string(p.Provider), string(p.ProductType)).Inc()
	logger.Ctx(ctx).Info().
		Str("payment_id", p.ID).
		Str("provider", string(p.Provider)).
		Str("external_id", p.ExternalID).
		Int64("amount_cents", p.AmountCents).
		Msg("PIX платёж создан")
	return nil
}

func (s *initiationService) notificationURL(ownerID string) string {
	if s.cfg.MercadoPagoNotificationURL == "" {
		return ""
	}
	u, err := url.Parse(s.cfg.MercadoPagoNotificationURL)
	if err != nil {
		return s.cfg.MercadoPagoNotificationURL
	}
	q := u.Query()
	q.Set("owner", ownerID)
	u.RawQuery = q.Encode()
	return u.String()
}

func resultFromPayment(p *domain.Payment) *PaymentResult {
	pix := p.Pix
	return &PaymentResult{
		ID:          p.ID,
		ExternalID:  p.ExternalID,
		Status:      string(p.Status),
		Pix:         &pix,
		AmountCents: p.AmountCents,
	}
}

// fallbackPayerEmail — Mercado Pago требует email плательщика, у лидов бота его обычно нет.
func fallbackPayerEmail(lead *domain.Lead) string {
	return fmt.Sprintf("lead%d@funnelbot.local", lead.ChatID)
}

// documentType определяет тип документа по числу цифр (CPF 11, CNPJ 14).
func documentType(doc string) string {
	digits := 0
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits == 14 {
		return "CNPJ"
	}
	return "CPF"
}
