package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/funnel-payments/pkg/jwt"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/httputil"
	"example.com/funnel-payments/services/payment/internal/service"
)

// HeaderIdempotencyKey — ключ идемпотентности создания платежа.
const HeaderIdempotencyKey = "Idempotency-Key"

// PaymentHandler — создание PIX, проверка статуса и атрибуция.
type PaymentHandler struct {
	initiator  PaymentInitiator
	reconciler PaymentReconciler
	tracker    EventTracker
}

// NewPaymentHandler создаёт обработчик платежей.
func NewPaymentHandler(initiator PaymentInitiator, reconciler PaymentReconciler, tracker EventTracker) *PaymentHandler {
	return &PaymentHandler{
		initiator:  initiator,
		reconciler: reconciler,
		tracker:    tracker,
	}
}

// CreatePayment создаёт PIX за подписку или товар маркетплейса.
// POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "Невалидные данные запроса")
		return
	}

	result, err := h.initiator.CreatePayment(ctx, service.CreatePaymentRequest{
		UserID:         userID,
		ProductType:    domain.ProductType(req.ProductType),
		ProductID:      req.ProductID,
		PlanSlug:       req.PlanSlug,
		Buyer:          req.Buyer.toDomain(),
		UTM:            req.UTM.toDomain(),
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		HandleServiceError(c, err, "CreatePayment")
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("payment_id", result.ID).
		Str("external_id", result.ExternalID).
		Bool("free", result.Free).
		Bool("replayed", result.Replayed).
		Msg("Платёж создан")

	status := http.StatusCreated
	if result.Free || result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, paymentToResponse(result))
}

// MercadoPago — PIX продукта воронки через Mercado Pago продавца.
// POST /api/v1/mercadopago/payments {action: create_pix | check_status}
func (h *PaymentHandler) MercadoPago(c *gin.Context) {
	var req MercadoPagoPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "Невалидные данные запроса")
		return
	}

	switch req.Action {
	case ActionCreatePix:
		h.createFunnelPix(c, req)
	case ActionCheckStatus:
		h.checkStatus(c, req.PaymentID)
	}
}

func (h *PaymentHandler) createFunnelPix(c *gin.Context, req MercadoPagoPaymentRequest) {
	ctx := c.Request.Context()

	result, err := h.initiator.CreateFunnelPix(ctx, service.CreateFunnelPixRequest{
		FunnelID:  req.FunnelID,
		ProductID: req.ProductID,
		LeadID:    req.LeadID,
		Buyer:     req.Buyer.toDomain(),
		UTM:       req.UTM.toDomain(),
	})
	if err != nil {
		HandleServiceError(c, err, "CreateFunnelPix")
		return
	}

	logger.Ctx(ctx).Info().
		Str("funnel_id", req.FunnelID).
		Str("lead_id", req.LeadID).
		Str("payment_id", result.ID).
		Bool("free", result.Free).
		Msg("PIX воронки создан")

	status := http.StatusCreated
	if result.Free {
		status = http.StatusOK
	}
	c.JSON(status, paymentToResponse(result))
}

func (h *PaymentHandler) checkStatus(c *gin.Context, paymentID string) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	payment, err := h.reconciler.GetFunnelPixStatus(c.Request.Context(), paymentID, requesterID(c, userID))
	if err != nil {
		HandleServiceError(c, err, "GetFunnelPixStatus")
		return
	}
	c.JSON(http.StatusOK, statusToResponse(payment))
}

// TrackEvent передаёт событие платежа в UTMify.
// POST /api/v1/tracking {action: track_event}
// Отказ UTMify возвращается как 200 с ok=false.
func (h *PaymentHandler) TrackEvent(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "Невалидные данные запроса")
		return
	}

	// Чужую интеграцию UTMify может указать только service_role.
	owner := req.UserID
	if c.GetString(httputil.ContextRole) != jwt.RoleServiceRole {
		owner = userID
	}

	result, err := h.tracker.TrackEvent(c.Request.Context(), service.TrackEventRequest{
		PaymentID:   req.PaymentID,
		UserID:      owner,
		EventType:   req.EventType,
		RequesterID: requesterID(c, userID),
	})
	if err != nil {
		HandleServiceError(c, err, "TrackEvent")
		return
	}

	c.JSON(http.StatusOK, TrackEventResponse{
		OK:      result.OK,
		Sent:    result.Sent,
		Error:   result.Error,
		Status:  result.Status,
		Details: result.Details,
	})
}

// getUserID извлекает user_id, выставленный AuthMiddleware.
// Возвращает false и отправляет 401, если его нет.
func getUserID(c *gin.Context) (string, bool) {
	userID := httputil.UserID(c)
	if userID == "" && c.GetString(httputil.ContextRole) != jwt.RoleServiceRole {
		logger.Ctx(c.Request.Context()).Warn().Msg("user_id не найден в контексте")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return "", false
	}
	return userID, true
}

// requesterID — пользователь, чьи платежи доступны запросу. Пустой для service_role.
func requesterID(c *gin.Context, userID string) string {
	if c.GetString(httputil.ContextRole) == jwt.RoleServiceRole {
		return ""
	}
	return userID
}
