// Package handler содержит HTTP обработчики payment-service.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/funnel-payments/pkg/circuitbreaker"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// UpstreamDetails — ответ провайдера, переданный вызывающему без изменений.
type UpstreamDetails struct {
	Provider string `json:"provider"`
	Status   int    `json:"status,omitempty"`
	Body     string `json:"body,omitempty"`
}

// HandleServiceError преобразует ошибку сервиса в HTTP ответ.
// ВАЖНО: err не должен быть nil — это баг в вызывающем коде.
func HandleServiceError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	if err == nil {
		log.Error().Str("method", method).Msg("HandleServiceError вызван с nil ошибкой — баг в коде")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	var upstream *domain.UpstreamError

	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, circuitbreaker.ErrOpen):
		log.Warn().Err(err).Str("method", method).Msg("Провайдер недоступен (circuit breaker)")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_unavailable",
			Message: "Платёжный провайдер временно недоступен",
		})
	case errors.As(err, &upstream):
		status := http.StatusInternalServerError
		if upstream.IsClientError() {
			status = http.StatusBadRequest
		}
		log.Warn().
			Err(err).
			Str("method", method).
			Str("provider", upstream.Provider).
			Int("upstream_status", upstream.StatusCode).
			Msg("Ошибка провайдера")
		c.JSON(status, ErrorResponse{
			Error:   "upstream_error",
			Message: "Провайдер отклонил запрос",
			Details: UpstreamDetails{
				Provider: upstream.Provider,
				Status:   upstream.StatusCode,
				Body:     upstream.Body,
			},
		})
	default:
		log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
	}
}

// badRequest отвечает 400 на ошибку разбора или валидации тела запроса.
func badRequest(c *gin.Context, err error, message string) {
	logger.Ctx(c.Request.Context()).Debug().Err(err).Msg(message)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}
