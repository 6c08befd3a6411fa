package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// =============================================================================
// MemoryPayments — in-memory PaymentRepository + ReminderRepository
// =============================================================================

// MemoryPayments повторяет семантику условных UPDATE репозитория под мьютексом.
// Подходит для проверки «ровно один раз» при параллельных вызовах.
type MemoryPayments struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	outbox   []*outbox.Outbox
	logs     []*domain.ReminderLog
	writes   int
}

// NewMemoryPayments создаёт пустое хранилище, опционально с платежами.
func NewMemoryPayments(payments ...*domain.Payment) *MemoryPayments {
	m := &MemoryPayments{payments: make(map[string]*domain.Payment)}
	for _, p := range payments {
		cp := *p
		m.payments[p.ID] = &cp
	}
	return m
}

func (m *MemoryPayments) Create(ctx context.Context, payment *domain.Payment, events []*outbox.Outbox) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.Provider == payment.Provider && p.ProviderPaymentID == payment.ProviderPaymentID {
			return domain.ErrDuplicatePayment
		}
		if p.ExternalID == payment.ExternalID {
			return domain.ErrDuplicatePayment
		}
	}

	cp := *payment
	m.payments[payment.ID] = &cp
	m.outbox = append(m.outbox, events...)
	m.writes++
	return nil
}

func (m *MemoryPayments) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryPayments) GetByProviderPaymentID(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *MemoryPayments) ApplyTransition(ctx context.Context, t domain.Transition, events []*outbox.Outbox) (domain.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result domain.TransitionResult
	p, ok := m.payments[t.PaymentID]
	if !ok {
		return result, nil
	}

	if domain.CanTransition(p.Status, t.To) {
		p.Status = t.To
		p.UpdatedAt = t.At
		if t.To == domain.StatusPaid {
			paidAt := t.At
			if t.PaidAt != nil {
				paidAt = *t.PaidAt
			}
			p.PaidAt = &paidAt
		}
		result.Applied = true
		m.outbox = append(m.outbox, events...)
		m.writes++
	}

	if t.To == domain.StatusPaid && p.Status == domain.StatusPaid && p.DeliveryStatus != domain.DeliveryDelivered {
		at := t.At
		p.DeliveryStatus = domain.DeliveryDelivered
		p.DeliveredAt = &at
		result.Claimed = true
		m.writes++
	}

	return result, nil
}

func (m *MemoryPayments) ListCandidates(ctx context.Context, before time.Time, limit int) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Payment
	for _, p := range m.payments {
		if p.Provider == domain.ProviderMercadoPago &&
			p.Status == domain.StatusPending &&
			p.RemindedAt == nil &&
			p.CreatedAt.Before(before) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryPayments) Claim(ctx context.Context, paymentID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok || p.RemindedAt != nil || p.Status != domain.StatusPending {
		return false, nil
	}
	p.RemindedAt = &at
	m.writes++
	return true, nil
}

func (m *MemoryPayments) Release(ctx context.Context, paymentID string, claimedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if ok && p.RemindedAt != nil && p.RemindedAt.Equal(claimedAt) {
		p.RemindedAt = nil
		m.writes++
	}
	return nil
}

func (m *MemoryPayments) AppendLog(ctx context.Context, log *domain.ReminderLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs = append(m.logs, log)
	return nil
}

// Payments возвращает копии всех платежей.
func (m *MemoryPayments) Payments() []*domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Outbox возвращает записанные события.
func (m *MemoryPayments) Outbox() []*outbox.Outbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Outbox(nil), m.outbox...)
}

// ReminderLogs возвращает журнал напоминаний.
func (m *MemoryPayments) ReminderLogs() []*domain.ReminderLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ReminderLog(nil), m.logs...)
}

// Writes — число изменивших данные операций.
func (m *MemoryPayments) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
