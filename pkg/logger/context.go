package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// ctxKey — приватный тип ключей контекста, исключает коллизии с другими пакетами.
type ctxKey string

const (
	// traceIDKey — идентификатор входящего запроса (HTTP или сообщение Kafka).
	traceIDKey ctxKey = "trace_id"

	// correlationIDKey — связывает операции одной бизнес-цепочки
	// (создание PIX → вебхук → выдача → трекинг).
	correlationIDKey ctxKey = "correlation_id"

	// paymentIDKey — ID платёжной записи, с которой сейчас работаем.
	paymentIDKey ctxKey = "payment_id"

	// loggerKey — явно переданный логгер.
	loggerKey ctxKey = "logger"
)

// WithTraceID добавляет trace_id в контекст.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext извлекает trace_id из контекста.
// Возвращает пустую строку, если trace_id не установлен.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithCorrelationID добавляет correlation_id в контекст.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id из контекста.
func CorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// WithPaymentID привязывает к контексту ID платёжной записи.
// Все последующие записи через FromContext получат поле payment_id.
func WithPaymentID(ctx context.Context, paymentID string) context.Context {
	return context.WithValue(ctx, paymentIDKey, paymentID)
}

// PaymentIDFromContext извлекает payment_id из контекста.
func PaymentIDFromContext(ctx context.Context) string {
	if paymentID, ok := ctx.Value(paymentIDKey).(string); ok {
		return paymentID
	}
	return ""
}

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext возвращает логгер из контекста (или глобальный) с полями
// trace_id, correlation_id и payment_id, если они есть в контексте.
//
//	func (s *reconciliationService) HandleGatewayWebhook(ctx context.Context, n GatewayNotification) error {
//	    log := logger.FromContext(ctx)
//	    log.Info().Str("provider_payment_id", n.Data.ID).Msg("Получен вебхук")
//	}
func FromContext(ctx context.Context) zerolog.Logger {
	l := log
	if ctxLogger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		l = ctxLogger
	}

	zctx := l.With()
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		zctx = zctx.Str("trace_id", traceID)
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		zctx = zctx.Str("correlation_id", correlationID)
	}
	if paymentID := PaymentIDFromContext(ctx); paymentID != "" {
		zctx = zctx.Str("payment_id", paymentID)
	}

	return zctx.Logger()
}

// Ctx возвращает указатель на логгер из контекста.
//
//	log := logger.Ctx(ctx)
//	log.Info().Msg("Сообщение")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}

// NewContextWithIDs добавляет в контекст непустые trace_id и correlation_id.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if correlationID != "" {
		ctx = WithCorrelationID(ctx, correlationID)
	}
	return ctx
}
