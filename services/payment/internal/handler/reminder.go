package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/funnel-payments/pkg/logger"
)

// ReminderHandler — внутренний запуск прохода напоминаний (cron).
type ReminderHandler struct {
	runner ReminderRunner
}

// NewReminderHandler создаёт обработчик напоминаний.
func NewReminderHandler(runner ReminderRunner) *ReminderHandler {
	return &ReminderHandler{runner: runner}
}

// Sweep — POST /internal/reminders/sweep {reminder_minutes?}
func (h *ReminderHandler) Sweep(c *gin.Context) {
	var req SweepRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err, "Невалидный reminder_minutes")
			return
		}
	}

	result, err := h.runner.Sweep(c.Request.Context(), req.ReminderMinutes)
	if err != nil {
		HandleServiceError(c, err, "SweepReminders")
		return
	}

	logger.Ctx(c.Request.Context()).Info().
		Int("reminded", result.Reminded).
		Int("errors", result.Errors).
		Int("total", result.Total).
		Msg("Напоминания отправлены")

	c.JSON(http.StatusOK, SweepResponse{
		OK:       true,
		Reminded: result.Reminded,
		Errors:   result.Errors,
		Total:    result.Total,
	})
}
