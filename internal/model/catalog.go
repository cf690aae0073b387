package model

import (
	"time"
)

// Shop a provider that offers services
type Shop struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	Status    int8      `gorm:"type:tinyint;not null;default:1;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName set name
func (Shop) TableName() string {
	return "shops"
}

// Service a bookable service type
type Service struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"type:varchar(200);not null" json:"name"`
	DurationMinutes int       `gorm:"type:int;not null;default:0" json:"duration_minutes"`
	Icon            *string   `gorm:"type:varchar(500)" json:"icon,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName set name
func (Service) TableName() string {
	return "services"
}

// ShopService price list entry: a service as offered by one shop
type ShopService struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ShopID    uint64    `gorm:"not null;uniqueIndex:uk_shop_service,priority:1" json:"shop_id"`
	ServiceID uint64    `gorm:"not null;uniqueIndex:uk_shop_service,priority:2" json:"service_id"`
	Price     int64     `gorm:"type:bigint;not null;comment:price in cents" json:"price"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName set name
func (ShopService) TableName() string {
	return "shop_services"
}

// ShopStatus shop status const
const (
	ShopStatusOpen   = 1
	ShopStatusClosed = 2
)

// Offering is the current catalog view of a shop/service pair, the source of
// cart line snapshots
type Offering struct {
	ShopID          uint64  `json:"shop_id"`
	ServiceID       uint64  `json:"service_id"`
	ShopName        string  `json:"shop_name"`
	ServiceName     string  `json:"service_name"`
	Price           int64   `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Icon            *string `json:"icon,omitempty"`
	Offered         bool    `json:"offered"`
}
