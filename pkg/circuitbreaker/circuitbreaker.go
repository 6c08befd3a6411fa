// Package circuitbreaker защищает исходящие HTTP вызовы к платёжным провайдерам,
// Telegram и UTMify от каскадных сбоев.
//
// Состояния:
//   - Closed: запросы проходят
//   - Open: провайдер считается недоступным, запросы отклоняются сразу
//   - Half-Open: пропускаем MaxRequests пробных запросов
//
// Использование:
//
//	cb := circuitbreaker.New("mercadopago")
//	httpClient := &http.Client{Transport: circuitbreaker.NewTransport(cb, nil)}
package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/funnel-payments/pkg/logger"
)

// ErrOpen — breaker открыт или в Half-Open исчерпан лимит пробных запросов.
var ErrOpen = errors.New("провайдер временно недоступен (circuit breaker open)")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // Макс. запросов в Half-Open
	Interval     time.Duration // Интервал сброса счётчика в Closed
	Timeout      time.Duration // Время в Open до перехода в Half-Open
	FailureRatio float64       // Доля ошибок для перехода в Open
	MinRequests  uint32        // Мин. запросов для расчёта ratio
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Breaker — обёртка над gobreaker с логированием смены состояния.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[*http.Response]
	name string
}

// New создаёт Circuit Breaker с настройками по умолчанию.
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings создаёт Circuit Breaker с пользовательскими настройками.
func NewWithSettings(name string, s Settings) *Breaker {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},

		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker ОТКРЫТ — провайдер недоступен")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker ПОЛУОТКРЫТ — пробуем восстановить")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker ЗАКРЫТ — провайдер восстановлен")
			}
		},
	})

	return &Breaker{cb: cb, name: name}
}

// State возвращает текущее состояние breaker.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name возвращает имя breaker.
func (b *Breaker) Name() string {
	return b.name
}

// serverError — 5xx ответ, учитываемый breaker-ом как сбой.
// Сам ответ при этом отдаётся вызывающему коду без изменений.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("ответ провайдера %d", e.status)
}

// Transport — http.RoundTripper, пропускающий каждый запрос через Breaker.
type Transport struct {
	breaker *Breaker
	base    http.RoundTripper
}

// NewTransport оборачивает base (nil — http.DefaultTransport).
func NewTransport(b *Breaker, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{breaker: b, base: base}
}

// RoundTrip выполняет запрос. Сетевые ошибки и 5xx считаются сбоями,
// 4xx — бизнес-ответом провайдера (успех для breaker).
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	_, err := t.breaker.cb.Execute(func() (*http.Response, error) {
		r, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return r, &serverError{status: r.StatusCode}
		}
		return r, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", t.breaker.name, ErrOpen)
	}

	var se *serverError
	if errors.As(err, &se) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// NewHTTPClient создаёт http.Client с breaker-ом и таймаутом.
func NewHTTPClient(name string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(New(name), nil),
	}
}
