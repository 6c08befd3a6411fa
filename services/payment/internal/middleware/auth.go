// Package middleware содержит HTTP middleware payment-service.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/funnel-payments/pkg/jwt"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/httputil"
)

// TokenValidator — проверка access token. Реализуется *jwt.Manager.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

// AuthMiddleware проверяет bearer токен локально (HS256, общий секрет
// с auth-провайдером) и кладёт user_id и role в контекст Gin.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware создаёт middleware аутентификации.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Handle возвращает Gin handler function для middleware.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		token := httputil.ExtractBearerToken(c)
		if token == "" {
			log.Debug().Msg("Отсутствует токен авторизации")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется авторизация",
			})
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			log.Warn().Err(err).Msg("Ошибка валидации токена")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Невалидный токен",
			})
			return
		}

		c.Set(httputil.ContextUserID, claims.UserID())
		c.Set(httputil.ContextRole, claims.Role)

		log.Debug().
			Str("user_id", claims.UserID()).
			Str("role", claims.Role).
			Msg("Пользователь аутентифицирован")

		c.Next()
	}
}

// RequireServiceRole пропускает только токены с ролью service_role.
// Ставится после Handle.
func (m *AuthMiddleware) RequireServiceRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(httputil.ContextRole) != jwt.RoleServiceRole {
			logger.Ctx(c.Request.Context()).Warn().
				Str("user_id", httputil.UserID(c)).
				Msg("Внутренний endpoint вызван без service_role")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Недостаточно прав",
			})
			return
		}
		c.Next()
	}
}
