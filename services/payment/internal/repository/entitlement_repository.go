package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntitlementRepository выдаёт доступ к тарифу: план в профиле и строка подписки.
type EntitlementRepository interface {
	// ActivatePlan в одной транзакции выставляет profiles.plan и upsert-ит
	// subscriptions по user_id.
	ActivatePlan(ctx context.Context, userID, planSlug string, startedAt, expiresAt time.Time) error
}

// ProfileModel — строка profiles.
type ProfileModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Plan      string    `gorm:"column:plan"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ProfileModel) TableName() string { return "profiles" }

// SubscriptionModel — строка subscriptions.
type SubscriptionModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	PlanSlug  string    `gorm:"column:plan_slug"`
	Status    string    `gorm:"column:status"`
	StartedAt time.Time `gorm:"column:started_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SubscriptionModel) TableName() string { return "subscriptions" }

// SubscriptionStatusActive — статус активной подписки.
const SubscriptionStatusActive = "active"

type entitlementRepository struct {
	db *gorm.DB
}

// NewEntitlementRepository создаёт репозиторий доступа к тарифам.
func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

func (r *entitlementRepository) ActivatePlan(ctx context.Context, userID, planSlug string, startedAt, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile := &ProfileModel{ID: userID, Plan: planSlug, UpdatedAt: startedAt}
		if err := tx.Clauses(clause.OnConflict{
			DoUpdates: clause.AssignmentColumns([]string{"plan", "updated_at"}),
		}).Create(profile).Error; err != nil {
			return fmt.Errorf("ошибка обновления плана профиля: %w", err)
		}

		sub := &SubscriptionModel{
			ID:        uuid.New().String(),
			UserID:    userID,
			PlanSlug:  planSlug,
			Status:    SubscriptionStatusActive,
			StartedAt: startedAt,
			ExpiresAt: expiresAt,
			UpdatedAt: startedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"plan_slug", "status", "started_at", "expires_at", "updated_at"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("ошибка upsert подписки: %w", err)
		}

		return nil
	})
}
