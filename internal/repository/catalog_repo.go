package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"anoncart/internal/model"
	"anoncart/pkg/utils"
)

// CatalogRepository read access to shops and their price lists
type CatalogRepository interface {
	// Get a shop by ID
	GetShop(ctx context.Context, shopID uint64) (*model.Shop, error)

	// Get the current offering of a service at a shop. A withdrawn service or a
	// closed shop is returned with Offered=false.
	GetOffering(ctx context.Context, shopID, serviceID uint64) (*model.Offering, error)
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// offeringRow projection of shop_services joined with services
type offeringRow struct {
	ServiceID       uint64
	ServiceName     string
	DurationMinutes int
	Icon            *string
	Price           int64
	IsActive        bool
}

// GetShop gets a shop by ID
func (r *catalogRepository) GetShop(ctx context.Context, shopID uint64) (*model.Shop, error) {
	var shop model.Shop
	err := r.db.WithContext(ctx).Where("id = ?", shopID).Take(&shop).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrShopNotFound
		}
		return nil, err
	}
	return &shop, nil
}

// GetOffering gets a shop/service pair with its current price
func (r *catalogRepository) GetOffering(ctx context.Context, shopID, serviceID uint64) (*model.Offering, error) {
	shop, err := r.GetShop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	var row offeringRow
	err = r.db.WithContext(ctx).
		Table("shop_services AS ss").
		Select("ss.service_id, s.name AS service_name, s.duration_minutes, s.icon, ss.price, ss.is_active").
		Joins("JOIN services s ON s.id = ss.service_id").
		Where("ss.shop_id = ? AND ss.service_id = ?", shopID, serviceID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrServiceNotOffered
		}
		return nil, err
	}

	return &model.Offering{
		ShopID:          shop.ID,
		ServiceID:       row.ServiceID,
		ShopName:        shop.Name,
		ServiceName:     row.ServiceName,
		Price:           row.Price,
		DurationMinutes: row.DurationMinutes,
		Icon:            row.Icon,
		Offered:         row.IsActive && shop.Status == model.ShopStatusOpen,
	}, nil
}
