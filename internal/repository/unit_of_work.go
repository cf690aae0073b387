package repository

import (
	"context"

	"gorm.io/gorm"
)

// Stores the four identity stores bound to one database handle
type Stores struct {
	AnonCarts       CartRepository[string]
	UserCarts       CartRepository[uint64]
	AnonPreferences PreferenceRepository[string]
	UserPreferences PreferenceRepository[uint64]
}

// NewStores binds every store to db (a pool or an open transaction)
func NewStores(db *gorm.DB) *Stores {
	return &Stores{
		AnonCarts:       NewAnonCartRepository(db),
		UserCarts:       NewUserCartRepository(db),
		AnonPreferences: NewAnonPreferenceRepository(db),
		UserPreferences: NewUserPreferenceRepository(db),
	}
}

// UnitOfWork runs fn against stores sharing one transaction. fn returning an
// error rolls back everything it wrote.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(stores *Stores) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a gorm backed unit of work
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

// Do runs fn in a transaction
func (u *gormUnitOfWork) Do(ctx context.Context, fn func(stores *Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStores(tx))
	})
}
