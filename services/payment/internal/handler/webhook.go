package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/service"
)

// WebhookHandler принимает уведомления провайдеров. Ответ всегда 200:
// ошибки логируются и считаются в метриках, повторов от провайдера не ждём.
type WebhookHandler struct {
	reconciler PaymentReconciler
}

// NewWebhookHandler создаёт обработчик вебхуков.
func NewWebhookHandler(reconciler PaymentReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// gatewayWebhookBody — postback прямого шлюза. Числовые поля приходят
// то строкой, то числом.
type gatewayWebhookBody struct {
	Event string `json:"event"`
	Data  struct {
		ID            any    `json:"id"`
		Status        string `json:"status"`
		PaymentMethod string `json:"payment_method"`
		TotalAmount   any    `json:"total_amount"`
		NetAmount     any    `json:"net_amount"`
		CreatedAt     string `json:"created_at"`
	} `json:"data"`
}

// mercadoPagoWebhookBody — уведомление Mercado Pago (webhooks v2).
type mercadoPagoWebhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID any `json:"id"`
	} `json:"data"`
}

// PixGateway — POST /webhooks/pix-gateway
func (h *WebhookHandler) PixGateway(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx).With().Str("provider", "pixgateway").Logger()

	defer c.JSON(http.StatusOK, gin.H{"success": true})

	var body gatewayWebhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warn().Err(err).Msg("Невалидное тело вебхука")
		return
	}

	outcome, err := h.reconciler.HandleGatewayWebhook(ctx, service.GatewayNotification{
		Event: body.Event,
		Data: service.GatewayPaymentData{
			ID:            cast.ToString(body.Data.ID),
			Status:        body.Data.Status,
			PaymentMethod: body.Data.PaymentMethod,
			TotalAmount:   cast.ToInt64(body.Data.TotalAmount),
			NetAmount:     cast.ToInt64(body.Data.NetAmount),
			CreatedAt:     body.Data.CreatedAt,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("outcome", string(outcome)).Msg("Ошибка обработки вебхука")
		return
	}
	log.Debug().Str("outcome", string(outcome)).Msg("Вебхук обработан")
}

// MercadoPago — POST /webhooks/mercadopago?owner={user_id}
// id и тип события читаются из тела, а для IPN уведомлений из query.
func (h *WebhookHandler) MercadoPago(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx).With().Str("provider", "mercadopago").Logger()

	defer c.String(http.StatusOK, "OK")

	var body mercadoPagoWebhookBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			log.Warn().Err(err).Msg("Невалидное тело вебхука")
		}
	}

	n := service.MercadoPagoNotification{
		Type:   firstNonEmpty(body.Type, c.Query("type"), c.Query("topic")),
		Action: body.Action,
		DataID: firstNonEmpty(cast.ToString(body.Data.ID), c.Query("data.id"), c.Query("id")),
		Owner:  c.Query("owner"),
	}

	outcome, err := h.reconciler.HandleMercadoPagoWebhook(ctx, n)
	if err != nil {
		log.Error().
			Err(err).
			Str("data_id", n.DataID).
			Str("outcome", string(outcome)).
			Msg("Ошибка обработки вебхука")
		return
	}
	log.Debug().Str("data_id", n.DataID).Str("outcome", string(outcome)).Msg("Вебхук обработан")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
