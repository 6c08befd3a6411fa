// Package jwt проверяет access token-ы, выданные внешним auth-провайдером (HS256).
// Сервис токены не выдаёт: Manager.Issue используется для service_role токенов
// внутренних триггеров и в тестах.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleServiceRole — роль для внутренних вызовов (cron напоминаний).
const RoleServiceRole = "service_role"

// ErrInvalidToken — подпись, срок действия или claims токена невалидны.
var ErrInvalidToken = errors.New("невалидный токен")

// Claims содержит данные access token.
// sub — ID пользователя, role — authenticated / service_role.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID возвращает ID пользователя из sub.
func (c *Claims) UserID() string {
	return c.Subject
}

// IsServiceRole возвращает true для токена внутреннего вызова.
func (c *Claims) IsServiceRole() bool {
	return c.Role == RoleServiceRole
}

// Config содержит параметры для создания Manager.
type Config struct {
	Secret   string // Общий HMAC секрет
	Issuer   string // Ожидаемый iss (пусто — не проверяется)
	Audience string // Ожидаемый aud (пусто — не проверяется)
}

// Manager проверяет и (для внутренних нужд) подписывает токены.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
}

// NewManager создаёт менеджер токенов.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("не задан JWT секрет")
	}
	return &Manager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// ValidateToken проверяет подпись, срок действия, iss/aud и возвращает claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" && !claims.IsServiceRole() {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}

	return claims, nil
}

// Issue подписывает токен для userID с ролью role и временем жизни ttl.
func (m *Manager) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}

	return signed, nil
}
