package handler

import (
	"context"

	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/service"
)

// MockInitiator — мок для PaymentInitiator.
type MockInitiator struct {
	CreatePaymentFunc   func(ctx context.Context, req service.CreatePaymentRequest) (*service.PaymentResult, error)
	CreateFunnelPixFunc func(ctx context.Context, req service.CreateFunnelPixRequest) (*service.PaymentResult, error)
}

func (m *MockInitiator) CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*service.PaymentResult, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockInitiator) CreateFunnelPix(ctx context.Context, req service.CreateFunnelPixRequest) (*service.PaymentResult, error) {
	if m.CreateFunnelPixFunc != nil {
		return m.CreateFunnelPixFunc(ctx, req)
	}
	return nil, nil
}

// MockReconciler — мок для PaymentReconciler.
type MockReconciler struct {
	HandleGatewayWebhookFunc     func(ctx context.Context, n service.GatewayNotification) (service.Outcome, error)
	HandleMercadoPagoWebhookFunc func(ctx context.Context, n service.MercadoPagoNotification) (service.Outcome, error)
	GetFunnelPixStatusFunc       func(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)
}

func (m *MockReconciler) HandleGatewayWebhook(ctx context.Context, n service.GatewayNotification) (service.Outcome, error) {
	if m.HandleGatewayWebhookFunc != nil {
		return m.HandleGatewayWebhookFunc(ctx, n)
	}
	return service.OutcomeIgnored, nil
}

func (m *MockReconciler) HandleMercadoPagoWebhook(ctx context.Context, n service.MercadoPagoNotification) (service.Outcome, error) {
	if m.HandleMercadoPagoWebhookFunc != nil {
		return m.HandleMercadoPagoWebhookFunc(ctx, n)
	}
	return service.OutcomeIgnored, nil
}

func (m *MockReconciler) GetFunnelPixStatus(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	if m.GetFunnelPixStatusFunc != nil {
		return m.GetFunnelPixStatusFunc(ctx, paymentID, requesterID)
	}
	return nil, domain.ErrPaymentNotFound
}

// MockTracker — мок для EventTracker.
type MockTracker struct {
	TrackEventFunc func(ctx context.Context, req service.TrackEventRequest) (*service.TrackResult, error)
}

func (m *MockTracker) TrackEvent(ctx context.Context, req service.TrackEventRequest) (*service.TrackResult, error) {
	if m.TrackEventFunc != nil {
		return m.TrackEventFunc(ctx, req)
	}
	return &service.TrackResult{OK: true}, nil
}

// MockReminders — мок для ReminderRunner.
type MockReminders struct {
	SweepFunc func(ctx context.Context, reminderMinutes int) (*service.SweepResult, error)
}

func (m *MockReminders) Sweep(ctx context.Context, reminderMinutes int) (*service.SweepResult, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx, reminderMinutes)
	}
	return &service.SweepResult{}, nil
}
