package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackingRepository — журнал событий, отправленных в UTMify.
// UNIQUE (provider_payment_id, event_type) делает резерв атомарным.
// provider_payment_id хранится с префиксом провайдера ("mercadopago:123").
type TrackingRepository interface {
	// Reserve вставляет строку события. false — событие уже отправлялось.
	Reserve(ctx context.Context, providerPaymentID, eventType string) (bool, error)

	// Release удаляет резерв после неудачной отправки, чтобы событие можно было повторить.
	Release(ctx context.Context, providerPaymentID, eventType string) error

	// MarkSent сохраняет HTTP статус ответа UTMify.
	MarkSent(ctx context.Context, providerPaymentID, eventType string, statusCode int) error
}

// TrackingEventModel — строка tracking_events.
type TrackingEventModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	ProviderPaymentID string    `gorm:"column:provider_payment_id"`
	EventType         string    `gorm:"column:event_type"`
	StatusCode        int       `gorm:"column:status_code"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (TrackingEventModel) TableName() string { return "tracking_events" }

type trackingRepository struct {
	db *gorm.DB
}

// NewTrackingRepository создаёт репозиторий событий атрибуции.
func NewTrackingRepository(db *gorm.DB) TrackingRepository {
	return &trackingRepository{db: db}
}

func (r *trackingRepository) Reserve(ctx context.Context, providerPaymentID, eventType string) (bool, error) {
	model := &TrackingEventModel{
		ID:                uuid.New().String(),
		ProviderPaymentID: providerPaymentID,
		EventType:         eventType,
		CreatedAt:         time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка резерва события атрибуции: %w", err)
	}
	return true, nil
}

func (r *trackingRepository) Release(ctx context.Context, providerPaymentID, eventType string) error {
	if err := r.db.WithContext(ctx).
		Where("provider_payment_id = ? AND event_type = ?", providerPaymentID, eventType).
		Delete(&TrackingEventModel{}).Error; err != nil {
		return fmt.Errorf("ошибка снятия резерва события: %w", err)
	}
	return nil
}

func (r *trackingRepository) MarkSent(ctx context.Context, providerPaymentID, eventType string, statusCode int) error {
	if err := r.db.WithContext(ctx).
		Model(&TrackingEventModel{}).
		Where("provider_payment_id = ? AND event_type = ?", providerPaymentID, eventType).
		Update("status_code", statusCode).Error; err != nil {
		return fmt.Errorf("ошибка обновления события атрибуции: %w", err)
	}
	return nil
}
