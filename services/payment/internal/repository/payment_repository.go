package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// PaymentRepository — хранилище платежей. Статус и выдача меняются только
// условными UPDATE, число затронутых строк служит единственным гейтом.
type PaymentRepository interface {
	// Create сохраняет pending платёж в таблицу провайдера вместе с событиями outbox.
	Create(ctx context.Context, payment *domain.Payment, events []*outbox.Outbox) error

	// GetByID ищет платёж в transactions, затем в funnel_payments.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByProviderPaymentID ищет платёж по (provider, provider_payment_id).
	GetByProviderPaymentID(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error)

	// ApplyTransition в одной транзакции меняет статус, захватывает выдачу
	// (только для paid) и пишет события outbox, если статус изменился.
	ApplyTransition(ctx context.Context, t domain.Transition, events []*outbox.Outbox) (domain.TransitionResult, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создаёт репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment, events []*outbox.Outbox) error {
	model := paymentModelFromDomain(payment)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(payment.Provider.Table()).Create(model).Error; err != nil {
			return err
		}
		for _, e := range events {
			if err := tx.Create(outbox.ModelFromDomain(e)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("ошибка сохранения платежа: %w", err)
	}

	payment.CreatedAt = model.CreatedAt
	payment.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	for _, provider := range []domain.Provider{domain.ProviderPixGateway, domain.ProviderMercadoPago} {
		var model PaymentModel
		err := r.db.WithContext(ctx).Table(provider.Table()).Where("id = ?", id).First(&model).Error
		if err == nil {
			return model.toDomain(), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *paymentRepository) GetByProviderPaymentID(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error) {
	var model PaymentModel

	if err := r.db.WithContext(ctx).
		Table(provider.Table()).
		Where("provider = ? AND provider_payment_id = ?", string(provider), providerPaymentID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

func (r *paymentRepository) ApplyTransition(ctx context.Context, t domain.Transition, events []*outbox.Outbox) (domain.TransitionResult, error) {
	var result domain.TransitionResult
	table := t.Provider.Table()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		preds := domain.Predecessors(t.To)
		if len(preds) > 0 {
			updates := map[string]any{
				"status":     string(t.To),
				"updated_at": t.At,
			}
			if t.To == domain.StatusPaid {
				paidAt := t.At
				if t.PaidAt != nil {
					paidAt = *t.PaidAt
				}
				updates["paid_at"] = paidAt
			}

			res := tx.Table(table).
				Where("id = ? AND status IN ?", t.PaymentID, statusStrings(preds)).
				Updates(updates)
			if res.Error != nil {
				return fmt.Errorf("ошибка обновления статуса: %w", res.Error)
			}
			result.Applied = res.RowsAffected > 0
		}

		if result.Applied {
			for _, e := range events {
				if err := tx.Create(outbox.ModelFromDomain(e)).Error; err != nil {
					return fmt.Errorf("ошибка записи outbox: %w", err)
				}
			}
		}

		// Повторный paid вебхук тоже пытается захватить выдачу:
		// захват удаётся ровно один раз.
		if t.To == domain.StatusPaid {
			res := tx.Table(table).
				Where("id = ? AND status = ? AND delivery_status <> ?",
					t.PaymentID, string(domain.StatusPaid), string(domain.DeliveryDelivered)).
				Updates(map[string]any{
					"delivery_status": string(domain.DeliveryDelivered),
					"delivered_at":    t.At,
				})
			if res.Error != nil {
				return fmt.Errorf("ошибка захвата выдачи: %w", res.Error)
			}
			result.Claimed = res.RowsAffected > 0
		}

		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}

	return result, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
