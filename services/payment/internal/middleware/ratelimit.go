package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/httputil"
)

// rateLimitKeyPrefix — префикс счётчиков в Redis.
const rateLimitKeyPrefix = "payment:rate:"

// fixedWindowScript — INCR + EXPIRE одной командой.
var fixedWindowScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// RateLimitConfig — конфигурация rate limiter.
type RateLimitConfig struct {
	Redis  *redis.Client
	Limit  int           // по умолчанию 60
	Window time.Duration // по умолчанию 1 минута
}

// RateLimitMiddleware ограничивает запросы к /api/v1 фиксированным окном в Redis.
// Ключ — user_id, если запрос уже аутентифицирован, иначе IP клиента.
type RateLimitMiddleware struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimitMiddleware создаёт middleware для rate limiting.
func NewRateLimitMiddleware(cfg RateLimitConfig) *RateLimitMiddleware {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimitMiddleware{redis: cfg.Redis, limit: cfg.Limit, window: cfg.Window}
}

// Handle возвращает Gin handler function для middleware.
func (m *RateLimitMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		subject := httputil.UserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		count, err := fixedWindowScript.Run(c.Request.Context(), m.redis,
			[]string{rateLimitKeyPrefix + subject}, int(m.window.Seconds())).Int()
		if err != nil {
			// fail-open: без Redis платежи важнее лимита
			log.Warn().Err(err).Msg("Ошибка проверки rate limit")
			c.Next()
			return
		}

		remaining := m.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > m.limit {
			log.Warn().Str("subject", subject).Int("limit", m.limit).Msg("Rate limit превышен")
			c.Header("Retry-After", strconv.Itoa(int(m.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Превышен лимит запросов",
			})
			return
		}

		c.Next()
	}
}
