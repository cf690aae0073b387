package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"anoncart/internal/model"
	"anoncart/pkg/utils"
)

// CartRepository cart line storage for one kind of owner
type CartRepository[ID model.OwnerID] interface {
	// List all lines of an owner, oldest first
	List(ctx context.Context, ownerID ID) ([]*model.CartItem[ID], error)

	// List all lines of an owner and lock them until the transaction ends
	ListForUpdate(ctx context.Context, ownerID ID) ([]*model.CartItem[ID], error)

	// Get a line by its ID, scoped to the owner
	GetByID(ctx context.Context, ownerID ID, itemID uint64) (*model.CartItem[ID], error)

	// Get the line for a shop/service pair
	GetByOffering(ctx context.Context, ownerID ID, shopID, serviceID uint64) (*model.CartItem[ID], error)

	// Insert a line, or add its quantity to the existing line for the same
	// shop/service pair (single statement, safe under concurrent adds)
	Upsert(ctx context.Context, item *model.CartItem[ID]) error

	// Insert a line as-is
	Create(ctx context.Context, item *model.CartItem[ID]) error

	// Set the quantity of a line
	SetQuantity(ctx context.Context, ownerID ID, itemID uint64, quantity int, at time.Time) error

	// Add delta to the quantity of a line
	AddQuantity(ctx context.Context, ownerID ID, itemID uint64, delta int, at time.Time) error

	// Delete one line
	Delete(ctx context.Context, ownerID ID, itemID uint64) error

	// Delete every line of an owner
	DeleteAll(ctx context.Context, ownerID ID) (int64, error)
}

// cartRepository gorm implementation shared by both owner kinds
type cartRepository[ID model.OwnerID] struct {
	db    *gorm.DB
	table string
}

// NewCartRepository creates a cart repository over the given table
func NewCartRepository[ID model.OwnerID](db *gorm.DB, table string) CartRepository[ID] {
	return &cartRepository[ID]{db: db, table: table}
}

// NewAnonCartRepository cart lines of anonymous visitors
func NewAnonCartRepository(db *gorm.DB) CartRepository[string] {
	return NewCartRepository[string](db, model.AnonCartTable)
}

// NewUserCartRepository cart lines of accounts
func NewUserCartRepository(db *gorm.DB) CartRepository[uint64] {
	return NewCartRepository[uint64](db, model.UserCartTable)
}

func (r *cartRepository[ID]) scoped(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

// List lists the lines of an owner
func (r *cartRepository[ID]) List(ctx context.Context, ownerID ID) ([]*model.CartItem[ID], error) {
	var items []*model.CartItem[ID]
	err := r.scoped(ctx).
		Where("owner_id = ?", ownerID).
		Order("added_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ListForUpdate lists the lines of an owner with SELECT ... FOR UPDATE
func (r *cartRepository[ID]) ListForUpdate(ctx context.Context, ownerID ID) ([]*model.CartItem[ID], error) {
	var items []*model.CartItem[ID]
	err := r.scoped(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerID).
		Order("added_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// GetByID gets a line by ID
func (r *cartRepository[ID]) GetByID(ctx context.Context, ownerID ID, itemID uint64) (*model.CartItem[ID], error) {
	var item model.CartItem[ID]
	err := r.scoped(ctx).
		Where("id = ? AND owner_id = ?", itemID, ownerID).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrCartItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetByOffering gets the line for a shop/service pair
func (r *cartRepository[ID]) GetByOffering(ctx context.Context, ownerID ID, shopID, serviceID uint64) (*model.CartItem[ID], error) {
	var item model.CartItem[ID]
	err := r.scoped(ctx).
		Where("owner_id = ? AND shop_id = ? AND service_id = ?", ownerID, shopID, serviceID).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrCartItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// Upsert inserts a line or increments the existing one. Snapshots and
// added_at of an existing line are left untouched.
func (r *cartRepository[ID]) Upsert(ctx context.Context, item *model.CartItem[ID]) error {
	return r.scoped(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}, {Name: "shop_id"}, {Name: "service_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("quantity + ?", item.Quantity),
				"updated_at": item.UpdatedAt,
			}),
		}).
		Create(item).Error
}

// Create inserts a line
func (r *cartRepository[ID]) Create(ctx context.Context, item *model.CartItem[ID]) error {
	return r.scoped(ctx).Create(item).Error
}

// SetQuantity sets the quantity of a line
func (r *cartRepository[ID]) SetQuantity(ctx context.Context, ownerID ID, itemID uint64, quantity int, at time.Time) error {
	result := r.scoped(ctx).
		Where("id = ? AND owner_id = ?", itemID, ownerID).
		Updates(map[string]interface{}{
			"quantity":   quantity,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrCartItemNotFound
	}
	return nil
}

// AddQuantity increments the quantity of a line
func (r *cartRepository[ID]) AddQuantity(ctx context.Context, ownerID ID, itemID uint64, delta int, at time.Time) error {
	result := r.scoped(ctx).
		Where("id = ? AND owner_id = ?", itemID, ownerID).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrCartItemNotFound
	}
	return nil
}

// Delete deletes a line
func (r *cartRepository[ID]) Delete(ctx context.Context, ownerID ID, itemID uint64) error {
	result := r.scoped(ctx).
		Where("id = ? AND owner_id = ?", itemID, ownerID).
		Delete(&model.CartItem[ID]{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrCartItemNotFound
	}
	return nil
}

// DeleteAll deletes every line of an owner
func (r *cartRepository[ID]) DeleteAll(ctx context.Context, ownerID ID) (int64, error) {
	result := r.scoped(ctx).
		Where("owner_id = ?", ownerID).
		Delete(&model.CartItem[ID]{})
	return result.RowsAffected, result.Error
}
