package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/funnel-payments/pkg/jwt"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/httputil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{Secret: "test-secret", Audience: "authenticated"})
	require.NoError(t, err)
	return m
}

// TestAuthMiddleware проверяет сценарии аутентификации.
func TestAuthMiddleware(t *testing.T) {
	manager := newTestManager(t)
	other, err := jwt.NewManager(jwt.Config{Secret: "other-secret"})
	require.NoError(t, err)

	valid, err := manager.Issue("user-1", "authenticated", time.Hour)
	require.NoError(t, err)
	expired, err := manager.Issue("user-1", "authenticated", -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue("user-1", "authenticated", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantUserID string
	}{
		{"валидный токен", "Bearer " + valid, http.StatusOK, "user-1"},
		{"префикс в нижнем регистре", "bearer " + valid, http.StatusOK, "user-1"},
		{"нет заголовка", "", http.StatusUnauthorized, ""},
		{"не Bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"истёкший токен", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"чужая подпись", "Bearer " + foreign, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var gotUserID string
			r.GET("/p", NewAuthMiddleware(manager).Handle(), func(c *gin.Context) {
				gotUserID = httputil.UserID(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUserID, gotUserID)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), `"unauthorized"`)
			}
		})
	}
}

func TestRequireServiceRole(t *testing.T) {
	manager := newTestManager(t)
	auth := NewAuthMiddleware(manager)

	service, err := manager.Issue("", jwt.RoleServiceRole, time.Hour)
	require.NoError(t, err)
	user, err := manager.Issue("user-1", "authenticated", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/internal", auth.Handle(), auth.RequireServiceRole(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"service_role", service, http.StatusOK},
		{"обычный пользователь", user, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	r := gin.New()
	r.Use(NewRateLimitMiddleware(RateLimitConfig{Redis: rdb, Limit: 3, Window: time.Minute}).Handle())
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		w := do("10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code, "запрос %d должен пройти", i+1)
	}

	w := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// Другой клиент считается отдельно
	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
	assert.True(t, mr.Exists(rateLimitKeyPrefix+"ip:10.0.0.1"))
}

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	r := gin.New()
	r.Use(NewRateLimitMiddleware(RateLimitConfig{Redis: rdb, Limit: 1}).Handle())
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Authorization"},
		MaxAge:         "600",
	}))
	r.POST("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("preflight разрешённого origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/p", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("чужой origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/p", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestContext(t *testing.T) {
	r := gin.New()
	r.Use(RequestContext())

	var traceID, correlationID string
	r.GET("/p", func(c *gin.Context) {
		traceID = logger.TraceIDFromContext(c.Request.Context())
		correlationID = logger.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("ID из заголовков", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set(HeaderRequestID, "req-1")
		req.Header.Set(HeaderCorrelationID, "corr-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-1", traceID)
		assert.Equal(t, "corr-1", correlationID)
		assert.Equal(t, "req-1", w.Header().Get(HeaderTraceID))
	})

	t.Run("ID генерируются", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))

		assert.NotEmpty(t, traceID)
		assert.NotEmpty(t, correlationID)
		assert.Equal(t, traceID, w.Header().Get(HeaderTraceID))
	})
}
