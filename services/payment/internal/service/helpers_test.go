package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/testutil"
)

// =====================================
// Алиасы моков из testutil
// =====================================

type (
	MockCatalogRepository     = testutil.MockCatalogRepository
	MockEntitlementRepository = testutil.MockEntitlementRepository
	MockIntegrationRepository = testutil.MockIntegrationRepository
	MockTrackingRepository    = testutil.MockTrackingRepository
	MockPixGateway            = testutil.MockPixGateway
	MockMercadoPago           = testutil.MockMercadoPago
	MockMessenger             = testutil.MockMessenger
	MockAttributionClient     = testutil.MockAttributionClient
)

// MockDispatcher — мок Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Fulfill(ctx context.Context, payment *domain.Payment) error {
	return m.Called(ctx, payment).Error(0)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func strPtr(s string) *string { return &s }

// pendingFunnelPayment — pending платёж воронки, созданный minutesAgo минут назад.
func pendingFunnelPayment(id string, minutesAgo int) *domain.Payment {
	return &domain.Payment{
		ID:                id,
		Provider:          domain.ProviderMercadoPago,
		ProviderPaymentID: "mp-" + id,
		ExternalID:        "funnel_product_seller-1_" + id,
		UserID:            "seller-1",
		ProductType:       domain.ProductFunnel,
		ProductID:         "prod-1",
		ProductName:       "Curso Completo",
		AmountCents:       4990,
		Currency:          "BRL",
		Buyer:             domain.Buyer{Name: "Maria Silva", Email: "m@x.com"},
		Status:            domain.StatusPending,
		DeliveryStatus:    domain.DeliveryPending,
		Pix:               domain.Pix{Code: "00020126pix" + id},
		FunnelID:          strPtr("funnel-1"),
		LeadID:            strPtr("lead-1"),
		CreatedAt:         testNow.Add(-time.Duration(minutesAgo) * time.Minute),
		UpdatedAt:         testNow.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func timePtr(t time.Time) *time.Time { return &t }
