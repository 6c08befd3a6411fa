// Package httputil содержит вспомогательные функции для HTTP обработки.
package httputil

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи gin.Context, которые заполняет AuthMiddleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// ExtractBearerToken извлекает токен из Authorization header.
// Формат: "Bearer <token>", префикс регистронезависимый.
func ExtractBearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// UserID возвращает ID аутентифицированного пользователя или пустую строку.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
