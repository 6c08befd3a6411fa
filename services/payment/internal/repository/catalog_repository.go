package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"example.com/funnel-payments/services/payment/internal/domain"
)

// CatalogRepository — чтение продуктов и условные операции над складом маркетплейса.
type CatalogRepository interface {
	GetPlanBySlug(ctx context.Context, slug string) (*domain.Plan, error)
	GetMarketplaceItem(ctx context.Context, productType domain.ProductType, id string) (*domain.MarketplaceItem, error)

	// ReserveItem ставит мягкий резерв до until. Резерв другого покупателя,
	// истёкший к now, перезаписывается.
	ReserveItem(ctx context.Context, productType domain.ProductType, id, userID string, until, now time.Time) error

	// ReleaseItem снимает резерв userID с непроданного товара.
	ReleaseItem(ctx context.Context, productType domain.ProductType, id, userID string) error

	// MarkItemSold продаёт товар, если он ещё не продан. Иначе ErrItemSold.
	MarkItemSold(ctx context.Context, productType domain.ProductType, id, buyerID string, at time.Time) error

	GetFunnelProduct(ctx context.Context, id string) (*domain.FunnelProduct, error)
	GetFunnel(ctx context.Context, id string) (*domain.Funnel, error)
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository создаёт репозиторий каталога.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetPlanBySlug(ctx context.Context, slug string) (*domain.Plan, error) {
	var m PlanModel
	if err := r.db.WithContext(ctx).Where("slug = ? AND is_active = ?", slug, true).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return &domain.Plan{ID: m.ID, Slug: m.Slug, Name: m.Name, PriceCents: m.PriceCents, IsActive: m.IsActive}, nil
}

func (r *catalogRepository) GetMarketplaceItem(ctx context.Context, productType domain.ProductType, id string) (*domain.MarketplaceItem, error) {
	table := productType.InventoryTable()
	if table == "" {
		return nil, domain.Validationf("тип %q не является товаром маркетплейса", productType)
	}

	var m ItemModel
	if err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}

	return &domain.MarketplaceItem{
		ID:            m.ID,
		Type:          productType,
		SellerID:      m.SellerID,
		Title:         m.Title,
		PriceCents:    m.PriceCents,
		IsSold:        m.IsSold,
		BuyerID:       m.BuyerID,
		SoldAt:        m.SoldAt,
		ReservedBy:    m.ReservedBy,
		ReservedUntil: m.ReservedUntil,
	}, nil
}

// MySQL считает изменённые строки: повтор того же покупателя в ту же секунду даёт 0.
func (r *catalogRepository) ReserveItem(ctx context.Context, productType domain.ProductType, id, userID string, until, now time.Time) error {
	until = until.Truncate(time.Second)
	res := r.db.WithContext(ctx).
		Table(productType.InventoryTable()).
		Where("id = ? AND is_sold = ? AND (reserved_by IS NULL OR reserved_by = ? OR reserved_until < ?)",
			id, false, userID, now).
		Updates(map[string]any{
			"reserved_by":    userID,
			"reserved_until": until,
		})
	if res.Error != nil {
		return fmt.Errorf("ошибка резервирования товара: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Резерв не поставлен: уточняем причину.
	item, err := r.GetMarketplaceItem(ctx, productType, id)
	if err != nil {
		return err
	}
	if item.IsSold {
		return domain.ErrItemSold
	}
	if item.ReservedBy != nil && *item.ReservedBy == userID {
		return nil
	}
	return domain.ErrItemReserved
}

func (r *catalogRepository) ReleaseItem(ctx context.Context, productType domain.ProductType, id, userID string) error {
	res := r.db.WithContext(ctx).
		Table(productType.InventoryTable()).
		Where("id = ? AND reserved_by = ? AND is_sold = ?", id, userID, false).
		Updates(map[string]any{
			"reserved_by":    nil,
			"reserved_until": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("ошибка снятия резерва: %w", res.Error)
	}
	return nil
}

func (r *catalogRepository) MarkItemSold(ctx context.Context, productType domain.ProductType, id, buyerID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Table(productType.InventoryTable()).
		Where("id = ? AND is_sold = ?", id, false).
		Updates(map[string]any{
			"is_sold":        true,
			"buyer_id":       buyerID,
			"sold_at":        at,
			"reserved_by":    nil,
			"reserved_until": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("ошибка отметки продажи: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemSold
	}
	return nil
}

func (r *catalogRepository) GetFunnelProduct(ctx context.Context, id string) (*domain.FunnelProduct, error) {
	var m FunnelProductModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &domain.FunnelProduct{
		ID:              m.ID,
		FunnelID:        m.FunnelID,
		Name:            m.Name,
		PriceCents:      m.PriceCents,
		DeliveryType:    domain.DeliveryType(m.DeliveryType),
		DeliveryLink:    deref(m.DeliveryLink),
		DeliveryMessage: deref(m.DeliveryMessage),
		IsActive:        m.IsActive,
	}, nil
}

func (r *catalogRepository) GetFunnel(ctx context.Context, id string) (*domain.Funnel, error) {
	var row funnelRow
	res := r.db.WithContext(ctx).
		Table("funnels").
		Select("funnels.id, funnels.user_id, funnels.name, telegram_bots.bot_token").
		Joins("LEFT JOIN telegram_bots ON telegram_bots.id = funnels.bot_id").
		Where("funnels.id = ?", id).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrFunnelNotFound
	}
	return &domain.Funnel{ID: row.ID, UserID: row.UserID, Name: row.Name, BotToken: deref(row.BotToken)}, nil
}

func (r *catalogRepository) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	var m LeadModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLeadNotFound
		}
		return nil, err
	}
	return &domain.Lead{ID: m.ID, FunnelID: m.FunnelID, ChatID: m.ChatID, FirstName: deref(m.FirstName)}, nil
}
