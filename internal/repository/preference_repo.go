package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"anoncart/internal/model"
)

// PreferenceRepository preference storage for one kind of owner. Absence is
// reported as (nil, nil).
type PreferenceRepository[ID model.OwnerID] interface {
	// Get the preference of an owner
	Get(ctx context.Context, ownerID ID) (*model.Preference[ID], error)

	// Get the preference of an owner and lock it until the transaction ends
	GetForUpdate(ctx context.Context, ownerID ID) (*model.Preference[ID], error)

	// Create the record or overwrite all of its location fields
	SaveLocation(ctx context.Context, ownerID ID, loc model.Location, at time.Time) error

	// Delete the preference of an owner
	Delete(ctx context.Context, ownerID ID) (bool, error)
}

type preferenceRepository[ID model.OwnerID] struct {
	db    *gorm.DB
	table string
}

// NewPreferenceRepository creates a preference repository over the given table
func NewPreferenceRepository[ID model.OwnerID](db *gorm.DB, table string) PreferenceRepository[ID] {
	return &preferenceRepository[ID]{db: db, table: table}
}

// NewAnonPreferenceRepository preferences of anonymous visitors
func NewAnonPreferenceRepository(db *gorm.DB) PreferenceRepository[string] {
	return NewPreferenceRepository[string](db, model.AnonPreferenceTable)
}

// NewUserPreferenceRepository preferences of accounts
func NewUserPreferenceRepository(db *gorm.DB) PreferenceRepository[uint64] {
	return NewPreferenceRepository[uint64](db, model.UserPreferenceTable)
}

func (r *preferenceRepository[ID]) scoped(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

// Get gets the preference of an owner
func (r *preferenceRepository[ID]) Get(ctx context.Context, ownerID ID) (*model.Preference[ID], error) {
	return r.get(r.scoped(ctx), ownerID)
}

// GetForUpdate gets the preference of an owner with SELECT ... FOR UPDATE
func (r *preferenceRepository[ID]) GetForUpdate(ctx context.Context, ownerID ID) (*model.Preference[ID], error) {
	return r.get(r.scoped(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), ownerID)
}

func (r *preferenceRepository[ID]) get(db *gorm.DB, ownerID ID) (*model.Preference[ID], error) {
	var pref model.Preference[ID]
	err := db.Where("owner_id = ?", ownerID).Take(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pref, nil
}

// SaveLocation upserts the location fields as one unit; created_at is only
// written when the row is first inserted
func (r *preferenceRepository[ID]) SaveLocation(ctx context.Context, ownerID ID, loc model.Location, at time.Time) error {
	pref := &model.Preference[ID]{
		OwnerID:   ownerID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	pref.ApplyLocation(loc)

	return r.scoped(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latitude", "longitude", "accuracy", "location_source", "location_set_at", "updated_at",
			}),
		}).
		Create(pref).Error
}

// Delete deletes the preference of an owner
func (r *preferenceRepository[ID]) Delete(ctx context.Context, ownerID ID) (bool, error) {
	result := r.scoped(ctx).
		Where("owner_id = ?", ownerID).
		Delete(&model.Preference[ID]{})
	return result.RowsAffected > 0, result.Error
}
