package handler

import (
	"context"

	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/service"
)

// PaymentInitiator — создание PIX платежей.
type PaymentInitiator interface {
	CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*service.PaymentResult, error)
	CreateFunnelPix(ctx context.Context, req service.CreateFunnelPixRequest) (*service.PaymentResult, error)
}

// PaymentReconciler — применение уведомлений провайдеров.
type PaymentReconciler interface {
	HandleGatewayWebhook(ctx context.Context, n service.GatewayNotification) (service.Outcome, error)
	HandleMercadoPagoWebhook(ctx context.Context, n service.MercadoPagoNotification) (service.Outcome, error)
	GetFunnelPixStatus(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)
}

// EventTracker — ретрансляция событий в UTMify.
type EventTracker interface {
	TrackEvent(ctx context.Context, req service.TrackEventRequest) (*service.TrackResult, error)
}

// ReminderRunner — один проход напоминаний.
type ReminderRunner interface {
	Sweep(ctx context.Context, reminderMinutes int) (*service.SweepResult, error)
}
