// Package service содержит бизнес-логику платёжного конвейера: создание PIX,
// сверку вебхуков, выдачу продуктов, напоминания и ретрансляцию атрибуции.
package service

import (
	"context"

	"example.com/funnel-payments/services/payment/internal/client/mercadopago"
	"example.com/funnel-payments/services/payment/internal/client/pixgateway"
	"example.com/funnel-payments/services/payment/internal/client/telegram"
	"example.com/funnel-payments/services/payment/internal/client/utmify"
)

// PixGateway — создание PIX в прямом шлюзе.
type PixGateway interface {
	CreatePix(ctx context.Context, req pixgateway.CreatePixRequest) (*pixgateway.Charge, error)
}

// MercadoPago — PIX и чтение платежей от имени продавца.
type MercadoPago interface {
	CreatePix(ctx context.Context, accessToken string, req mercadopago.CreatePixRequest) (*mercadopago.Payment, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*mercadopago.Payment, error)
}

// Messenger — отправка сообщений ботом воронки.
type Messenger interface {
	SendMessage(ctx context.Context, botToken string, msg telegram.Message) (*telegram.SentMessage, error)
}

// AttributionClient — отправка заказов в UTMify.
type AttributionClient interface {
	SendOrder(ctx context.Context, apiToken string, order utmify.Order) (*utmify.Response, error)
}
