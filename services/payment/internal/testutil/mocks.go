// Package testutil содержит общие моки и in-memory хранилища для тестов payment-service.
package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"example.com/funnel-payments/services/payment/internal/client/mercadopago"
	"example.com/funnel-payments/services/payment/internal/client/pixgateway"
	"example.com/funnel-payments/services/payment/internal/client/telegram"
	"example.com/funnel-payments/services/payment/internal/client/utmify"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// =============================================================================
// Репозитории
// =============================================================================

// MockCatalogRepository — мок repository.CatalogRepository.
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetPlanBySlug(ctx context.Context, slug string) (*domain.Plan, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Plan), args.Error(1)
}

func (m *MockCatalogRepository) GetMarketplaceItem(ctx context.Context, productType domain.ProductType, id string) (*domain.MarketplaceItem, error) {
	args := m.Called(ctx, productType, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MarketplaceItem), args.Error(1)
}

func (m *MockCatalogRepository) ReserveItem(ctx context.Context, productType domain.ProductType, id, userID string, until, now time.Time) error {
	return m.Called(ctx, productType, id, userID, until, now).Error(0)
}

func (m *MockCatalogRepository) ReleaseItem(ctx context.Context, productType domain.ProductType, id, userID string) error {
	return m.Called(ctx, productType, id, userID).Error(0)
}

func (m *MockCatalogRepository) MarkItemSold(ctx context.Context, productType domain.ProductType, id, buyerID string, at time.Time) error {
	return m.Called(ctx, productType, id, buyerID, at).Error(0)
}

func (m *MockCatalogRepository) GetFunnelProduct(ctx context.Context, id string) (*domain.FunnelProduct, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FunnelProduct), args.Error(1)
}

func (m *MockCatalogRepository) GetFunnel(ctx context.Context, id string) (*domain.Funnel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Funnel), args.Error(1)
}

func (m *MockCatalogRepository) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

// MockEntitlementRepository — мок repository.EntitlementRepository.
type MockEntitlementRepository struct {
	mock.Mock
}

func (m *MockEntitlementRepository) ActivatePlan(ctx context.Context, userID, planSlug string, startedAt, expiresAt time.Time) error {
	return m.Called(ctx, userID, planSlug, startedAt, expiresAt).Error(0)
}

// MockIntegrationRepository — мок repository.IntegrationRepository.
type MockIntegrationRepository struct {
	mock.Mock
}

func (m *MockIntegrationRepository) GetMercadoPago(ctx context.Context, userID string) (*domain.MercadoPagoIntegration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MercadoPagoIntegration), args.Error(1)
}

func (m *MockIntegrationRepository) GetUtmify(ctx context.Context, userID string) (*domain.UtmifyIntegration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UtmifyIntegration), args.Error(1)
}

// MockTrackingRepository — мок repository.TrackingRepository.
type MockTrackingRepository struct {
	mock.Mock
}

func (m *MockTrackingRepository) Reserve(ctx context.Context, providerPaymentID, eventType string) (bool, error) {
	args := m.Called(ctx, providerPaymentID, eventType)
	return args.Bool(0), args.Error(1)
}

func (m *MockTrackingRepository) Release(ctx context.Context, providerPaymentID, eventType string) error {
	return m.Called(ctx, providerPaymentID, eventType).Error(0)
}

func (m *MockTrackingRepository) MarkSent(ctx context.Context, providerPaymentID, eventType string, statusCode int) error {
	return m.Called(ctx, providerPaymentID, eventType, statusCode).Error(0)
}

// =============================================================================
// Клиенты провайдеров
// =============================================================================

// MockPixGateway — мок прямого PIX шлюза.
type MockPixGateway struct {
	mock.Mock
}

func (m *MockPixGateway) CreatePix(ctx context.Context, req pixgateway.CreatePixRequest) (*pixgateway.Charge, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pixgateway.Charge), args.Error(1)
}

// MockMercadoPago — мок клиента Mercado Pago.
type MockMercadoPago struct {
	mock.Mock
}

func (m *MockMercadoPago) CreatePix(ctx context.Context, accessToken string, req mercadopago.CreatePixRequest) (*mercadopago.Payment, error) {
	args := m.Called(ctx, accessToken, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mercadopago.Payment), args.Error(1)
}

func (m *MockMercadoPago) GetPayment(ctx context.Context, accessToken, paymentID string) (*mercadopago.Payment, error) {
	args := m.Called(ctx, accessToken, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mercadopago.Payment), args.Error(1)
}

// MockMessenger — мок Telegram клиента.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendMessage(ctx context.Context, botToken string, msg telegram.Message) (*telegram.SentMessage, error) {
	args := m.Called(ctx, botToken, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telegram.SentMessage), args.Error(1)
}

// MockAttributionClient — мок клиента UTMify.
type MockAttributionClient struct {
	mock.Mock
}

func (m *MockAttributionClient) SendOrder(ctx context.Context, apiToken string, order utmify.Order) (*utmify.Response, error) {
	args := m.Called(ctx, apiToken, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*utmify.Response), args.Error(1)
}
