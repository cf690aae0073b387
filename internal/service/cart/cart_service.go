package cart

import (
	"context"
	"time"

	"anoncart/internal/model"
	"anoncart/internal/repository"
	"anoncart/pkg/log"
	"anoncart/pkg/utils"
)

// AddItemRequest add item request
type AddItemRequest struct {
	ShopID    uint64 `json:"shop_id" binding:"required"`
	ServiceID uint64 `json:"service_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,positive"`
}

// UpdateItemRequest update item request; zero or less removes the line
type UpdateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// CartResponse a cart recomputed from storage
type CartResponse[ID model.OwnerID] struct {
	Items         []*model.CartItem[ID] `json:"items"`
	TotalQuantity int                   `json:"total_quantity"`
	TotalPrice    int64                 `json:"total_price"`
	LastUpdated   time.Time             `json:"last_updated"`
}

// CatalogLookup the catalog reads needed to snapshot a line
type CatalogLookup interface {
	GetOffering(ctx context.Context, shopID, serviceID uint64) (*model.Offering, error)
	GetShopName(ctx context.Context, shopID uint64) (string, error)
}

// Recorder receives cart operation outcomes
type Recorder interface {
	RecordCartOperation(owner, operation, result string)
}

// Service cart operations for one kind of owner
type Service[ID model.OwnerID] interface {
	// Get the cart of an owner
	GetCart(ctx context.Context, ownerID ID) (*CartResponse[ID], error)

	// Add a service to the cart, or add to the quantity already there
	AddItem(ctx context.Context, ownerID ID, req *AddItemRequest) (*model.CartItem[ID], error)

	// Set the quantity of a line; returns nil when the line was removed
	UpdateItem(ctx context.Context, ownerID ID, itemID uint64, quantity int) (*model.CartItem[ID], error)

	// Remove a line
	RemoveItem(ctx context.Context, ownerID ID, itemID uint64) error

	// Remove every line
	Clear(ctx context.Context, ownerID ID) error
}

type cartService[ID model.OwnerID] struct {
	repo     repository.CartRepository[ID]
	catalog  CatalogLookup
	recorder Recorder
	owner    string
	now      func() time.Time
}

// NewService creates a cart service. owner labels logs and metrics
// ("anonymous" or "user"); recorder may be nil.
func NewService[ID model.OwnerID](repo repository.CartRepository[ID], catalog CatalogLookup, recorder Recorder, owner string) Service[ID] {
	return &cartService[ID]{
		repo:     repo,
		catalog:  catalog,
		recorder: recorder,
		owner:    owner,
		now:      time.Now,
	}
}

// GetCart gets the cart of an owner
func (s *cartService[ID]) GetCart(ctx context.Context, ownerID ID) (*CartResponse[ID], error) {
	items, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, s.storageError("get", ownerID, err)
	}

	resp := &CartResponse[ID]{
		Items:       items,
		LastUpdated: s.now(),
	}
	if resp.Items == nil {
		resp.Items = []*model.CartItem[ID]{}
	}

	for i, item := range items {
		resp.TotalQuantity += item.Quantity
		resp.TotalPrice += item.LineTotal()
		if i == 0 || item.UpdatedAt.After(resp.LastUpdated) {
			resp.LastUpdated = item.UpdatedAt
		}
	}

	return resp, nil
}

// AddItem adds a service to the cart
func (s *cartService[ID]) AddItem(ctx context.Context, ownerID ID, req *AddItemRequest) (*model.CartItem[ID], error) {
	if req.Quantity <= 0 {
		return nil, utils.NewError(utils.CodeInvalidParam, "quantity must be positive")
	}

	offering, err := s.catalog.GetOffering(ctx, req.ShopID, req.ServiceID)
	if err != nil {
		s.record("add", "not_found")
		return nil, err
	}
	if !offering.Offered {
		s.record("add", "not_found")
		return nil, utils.ErrServiceNotOffered
	}

	shopName := offering.ShopName
	if shopName == "" {
		if shopName, err = s.catalog.GetShopName(ctx, req.ShopID); err != nil {
			s.record("add", "not_found")
			return nil, err
		}
	}

	now := s.now()
	item := &model.CartItem[ID]{
		OwnerID:         ownerID,
		ShopID:          req.ShopID,
		ServiceID:       req.ServiceID,
		Quantity:        req.Quantity,
		PriceAtAddition: offering.Price,
		ServiceName:     offering.ServiceName,
		ShopName:        shopName,
		ImageURL:        offering.Icon,
		AddedAt:         now,
		UpdatedAt:       now,
	}

	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, s.storageError("add", ownerID, err)
	}

	// the upsert may have folded into an existing line; read back the stored one
	stored, err := s.repo.GetByOffering(ctx, ownerID, req.ShopID, req.ServiceID)
	if err != nil {
		return nil, s.storageError("add", ownerID, err)
	}

	s.record("add", "success")
	log.WithFields(map[string]interface{}{
		"owner":      s.owner,
		"item_id":    stored.ID,
		"shop_id":    stored.ShopID,
		"service_id": stored.ServiceID,
		"quantity":   stored.Quantity,
	}).Debug("cart item added")

	return stored, nil
}

// UpdateItem sets the quantity of a line
func (s *cartService[ID]) UpdateItem(ctx context.Context, ownerID ID, itemID uint64, quantity int) (*model.CartItem[ID], error) {
	if quantity <= 0 {
		if err := s.RemoveItem(ctx, ownerID, itemID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	item, err := s.repo.GetByID(ctx, ownerID, itemID)
	if err != nil {
		if utils.IsNotFound(err) {
			s.record("update", "not_found")
			return nil, err
		}
		return nil, s.storageError("update", ownerID, err)
	}

	now := s.now()
	if err := s.repo.SetQuantity(ctx, ownerID, itemID, quantity, now); err != nil {
		// removed since the read
		if utils.IsNotFound(err) {
			s.record("update", "not_found")
			return nil, err
		}
		return nil, s.storageError("update", ownerID, err)
	}

	item.Quantity = quantity
	item.UpdatedAt = now
	s.record("update", "success")
	return item, nil
}

// RemoveItem removes a line
func (s *cartService[ID]) RemoveItem(ctx context.Context, ownerID ID, itemID uint64) error {
	if err := s.repo.Delete(ctx, ownerID, itemID); err != nil {
		if utils.IsNotFound(err) {
			s.record("remove", "not_found")
			return err
		}
		return s.storageError("remove", ownerID, err)
	}

	s.record("remove", "success")
	return nil
}

// Clear removes every line of an owner
func (s *cartService[ID]) Clear(ctx context.Context, ownerID ID) error {
	removed, err := s.repo.DeleteAll(ctx, ownerID)
	if err != nil {
		return s.storageError("clear", ownerID, err)
	}

	s.record("clear", "success")
	log.WithFields(map[string]interface{}{
		"owner":   s.owner,
		"removed": removed,
	}).Debug("cart cleared")
	return nil
}

func (s *cartService[ID]) storageError(operation string, ownerID ID, err error) error {
	s.record(operation, "error")
	log.WithFields(map[string]interface{}{
		"owner":     s.owner,
		"owner_id":  ownerID,
		"operation": operation,
		"error":     err.Error(),
	}).Error("cart storage failed")
	return utils.WrapError(err, utils.ErrDatabaseError)
}

func (s *cartService[ID]) record(operation, result string) {
	if s.recorder != nil {
		s.recorder.RecordCartOperation(s.owner, operation, result)
	}
}
