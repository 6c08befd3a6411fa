package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"example.com/funnel-payments/services/payment/internal/domain"
)

// IntegrationRepository — подключения продавцов к Mercado Pago и UTMify.
type IntegrationRepository interface {
	// GetMercadoPago возвращает активную интеграцию или ErrIntegrationNotFound.
	GetMercadoPago(ctx context.Context, userID string) (*domain.MercadoPagoIntegration, error)

	// GetUtmify возвращает активную интеграцию или ErrIntegrationNotFound.
	GetUtmify(ctx context.Context, userID string) (*domain.UtmifyIntegration, error)
}

// MercadoPagoIntegrationModel — строка mercadopago_integrations.
type MercadoPagoIntegrationModel struct {
	ID          string  `gorm:"column:id;primaryKey"`
	UserID      string  `gorm:"column:user_id"`
	AccessToken string  `gorm:"column:access_token"`
	PublicKey   *string `gorm:"column:public_key"`
	IsActive    bool    `gorm:"column:is_active"`
}

func (MercadoPagoIntegrationModel) TableName() string { return "mercadopago_integrations" }

// UtmifyIntegrationModel — строка utmify_integrations.
type UtmifyIntegrationModel struct {
	ID       string `gorm:"column:id;primaryKey"`
	UserID   string `gorm:"column:user_id"`
	APIToken string `gorm:"column:api_token"`
	IsActive bool   `gorm:"column:is_active"`
}

func (UtmifyIntegrationModel) TableName() string { return "utmify_integrations" }

type integrationRepository struct {
	db *gorm.DB
}

// NewIntegrationRepository создаёт репозиторий интеграций.
func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) GetMercadoPago(ctx context.Context, userID string) (*domain.MercadoPagoIntegration, error) {
	var m MercadoPagoIntegrationModel
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIntegrationNotFound
		}
		return nil, err
	}
	return &domain.MercadoPagoIntegration{
		UserID:      m.UserID,
		AccessToken: m.AccessToken,
		PublicKey:   deref(m.PublicKey),
		IsActive:    m.IsActive,
	}, nil
}

func (r *integrationRepository) GetUtmify(ctx context.Context, userID string) (*domain.UtmifyIntegration, error) {
	var m UtmifyIntegrationModel
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIntegrationNotFound
		}
		return nil, err
	}
	return &domain.UtmifyIntegration{UserID: m.UserID, APIToken: m.APIToken, IsActive: m.IsActive}, nil
}
