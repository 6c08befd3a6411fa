package domain

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок. HTTP слой сопоставляет их через errors.Is / errors.As.
var (
	// ErrValidation — отсутствующие или некорректные поля запроса (400).
	ErrValidation = errors.New("некорректный запрос")

	// ErrNotFound — продукт, платёж или интеграция не найдены (404).
	ErrNotFound = errors.New("не найдено")

	// ErrConflict — состояние ресурса не допускает операцию (409).
	ErrConflict = errors.New("конфликт состояния")

	// ErrUnauthorized — отсутствует или невалиден bearer токен (401).
	ErrUnauthorized = errors.New("требуется авторизация")

	// ErrForbidden — недостаточно прав (403).
	ErrForbidden = errors.New("доступ запрещён")
)

// Конкретные ошибки оборачивают базовые категории.
var (
	ErrPlanNotFound        = fmt.Errorf("тарифный план не найден: %w", ErrNotFound)
	ErrItemNotFound        = fmt.Errorf("товар не найден: %w", ErrNotFound)
	ErrProductNotFound     = fmt.Errorf("продукт воронки не найден: %w", ErrNotFound)
	ErrFunnelNotFound      = fmt.Errorf("воронка не найдена: %w", ErrNotFound)
	ErrLeadNotFound        = fmt.Errorf("лид не найден: %w", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("платёж не найден: %w", ErrNotFound)
	ErrIntegrationNotFound = fmt.Errorf("интеграция не настроена: %w", ErrNotFound)

	ErrItemSold         = fmt.Errorf("товар уже продан: %w", ErrConflict)
	ErrItemReserved     = fmt.Errorf("товар зарезервирован другим покупателем: %w", ErrConflict)
	ErrDuplicatePayment = fmt.Errorf("платёж уже существует: %w", ErrConflict)
)

// Validationf создаёт ошибку валидации с описанием поля.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// UpstreamError — не-2xx ответ платёжного провайдера, Telegram или UTMify.
// StatusCode и Body передаются вызывающему коду без изменений.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error // сетевая ошибка, если ответа не было
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: ошибка запроса: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: ответ %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsClientError — провайдер отклонил запрос как некорректный (4xx).
func (e *UpstreamError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
