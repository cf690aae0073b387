package model

import (
	"time"
)

// CartItem is one line of a cart. The same shape backs both identity stores;
// the repository decides which table it lives in. Price, names and image are
// snapshots taken when the line is first created and are never refreshed.
type CartItem[ID OwnerID] struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID         ID        `gorm:"column:owner_id;size:64;not null;uniqueIndex:uk_owner_shop_service,priority:1" json:"-"`
	ShopID          uint64    `gorm:"not null;uniqueIndex:uk_owner_shop_service,priority:2" json:"shop_id"`
	ServiceID       uint64    `gorm:"not null;uniqueIndex:uk_owner_shop_service,priority:3" json:"service_id"`
	Quantity        int       `gorm:"type:int;not null" json:"quantity"`
	PriceAtAddition int64     `gorm:"type:bigint;not null;comment:price snapshot in cents" json:"price_at_addition"`
	ServiceName     string    `gorm:"type:varchar(200);not null" json:"service_name"`
	ShopName        string    `gorm:"type:varchar(200);not null" json:"shop_name"`
	ImageURL        *string   `gorm:"type:varchar(500)" json:"image_url,omitempty"`
	AddedAt         time.Time `gorm:"not null" json:"added_at"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

// AnonCartItem line owned by an anonymous visitor
type AnonCartItem = CartItem[string]

// UserCartItem line owned by an account
type UserCartItem = CartItem[uint64]

// LineTotal returns quantity x price snapshot, in cents
func (c *CartItem[ID]) LineTotal() int64 {
	return int64(c.Quantity) * c.PriceAtAddition
}

// SameOffering reports whether both lines point at the same shop/service pair
func (c *CartItem[ID]) SameOffering(shopID, serviceID uint64) bool {
	return c.ShopID == shopID && c.ServiceID == serviceID
}
