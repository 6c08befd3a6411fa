package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/funnel-payments/services/payment/internal/domain"
)

// ReminderRepository — выборка и захват pending платежей воронок для напоминаний.
type ReminderRepository interface {
	// ListCandidates возвращает pending платежи без напоминания, созданные раньше before.
	ListCandidates(ctx context.Context, before time.Time, limit int) ([]*domain.Payment, error)

	// Claim ставит reminded_at, только если он ещё NULL. false — напоминание уже захвачено.
	Claim(ctx context.Context, paymentID string, at time.Time) (bool, error)

	// Release снимает захват после неудачной отправки, если он всё ещё наш.
	Release(ctx context.Context, paymentID string, claimedAt time.Time) error

	// AppendLog пишет строку payment_reminder_logs.
	AppendLog(ctx context.Context, log *domain.ReminderLog) error
}

// ReminderLogModel — строка payment_reminder_logs.
type ReminderLogModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	PaymentID string    `gorm:"column:payment_id"`
	ChatID    int64     `gorm:"column:chat_id"`
	MessageID int64     `gorm:"column:message_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ReminderLogModel) TableName() string { return "payment_reminder_logs" }

type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository создаёт репозиторий напоминаний.
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

var reminderTable = domain.ProviderMercadoPago.Table()

func (r *reminderRepository) ListCandidates(ctx context.Context, before time.Time, limit int) ([]*domain.Payment, error) {
	var models []PaymentModel

	if err := r.db.WithContext(ctx).
		Table(reminderTable).
		Where("status = ? AND reminded_at IS NULL AND created_at < ?", string(domain.StatusPending), before).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("ошибка выборки платежей для напоминаний: %w", err)
	}

	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, models[i].toDomain())
	}
	return payments, nil
}

func (r *reminderRepository) Claim(ctx context.Context, paymentID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Table(reminderTable).
		Where("id = ? AND reminded_at IS NULL AND status = ?", paymentID, string(domain.StatusPending)).
		Update("reminded_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("ошибка захвата напоминания: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *reminderRepository) Release(ctx context.Context, paymentID string, claimedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Table(reminderTable).
		Where("id = ? AND reminded_at = ?", paymentID, claimedAt).
		Update("reminded_at", nil)
	if res.Error != nil {
		return fmt.Errorf("ошибка снятия захвата напоминания: %w", res.Error)
	}
	return nil
}

func (r *reminderRepository) AppendLog(ctx context.Context, log *domain.ReminderLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	model := &ReminderLogModel{
		ID:        log.ID,
		PaymentID: log.PaymentID,
		ChatID:    log.ChatID,
		MessageID: log.MessageID,
		CreatedAt: log.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("ошибка записи журнала напоминаний: %w", err)
	}
	return nil
}
