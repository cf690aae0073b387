package preference

import (
	"context"
	"time"

	"anoncart/internal/model"
	"anoncart/internal/repository"
	"anoncart/pkg/log"
	"anoncart/pkg/utils"
)

// UpdateLocationRequest location update request. Range checks happen here at
// binding time; the service trusts its input.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"required,gte=-180,lte=180"`
	Accuracy  *float64 `json:"accuracy" binding:"omitempty,gte=0"`
	Source    string   `json:"source" binding:"required,max=32"`
}

// Service location preference operations for one kind of owner
type Service[ID model.OwnerID] interface {
	// Get the preference; nil when none was ever saved
	GetLocation(ctx context.Context, ownerID ID) (*model.Preference[ID], error)

	// Create or overwrite the location
	UpdateLocation(ctx context.Context, ownerID ID, req *UpdateLocationRequest) (*model.Preference[ID], error)
}

type preferenceService[ID model.OwnerID] struct {
	repo  repository.PreferenceRepository[ID]
	owner string
	now   func() time.Time
}

// NewService creates a preference service
func NewService[ID model.OwnerID](repo repository.PreferenceRepository[ID], owner string) Service[ID] {
	return &preferenceService[ID]{
		repo:  repo,
		owner: owner,
		now:   time.Now,
	}
}

// GetLocation gets the preference of an owner
func (s *preferenceService[ID]) GetLocation(ctx context.Context, ownerID ID) (*model.Preference[ID], error) {
	pref, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"owner":    s.owner,
			"owner_id": ownerID,
			"error":    err.Error(),
		}).Error("get preference failed")
		return nil, utils.WrapError(err, utils.ErrDatabaseError)
	}
	return pref, nil
}

// UpdateLocation saves the location and returns the stored record
func (s *preferenceService[ID]) UpdateLocation(ctx context.Context, ownerID ID, req *UpdateLocationRequest) (*model.Preference[ID], error) {
	if req.Latitude == nil || req.Longitude == nil {
		return nil, utils.NewError(utils.CodeInvalidParam, "latitude and longitude are required")
	}

	now := s.now()
	loc := model.Location{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		Source:    req.Source,
		SetAt:     now,
	}

	if err := s.repo.SaveLocation(ctx, ownerID, loc, now); err != nil {
		log.WithFields(map[string]interface{}{
			"owner":    s.owner,
			"owner_id": ownerID,
			"error":    err.Error(),
		}).Error("save location failed")
		return nil, utils.WrapError(err, utils.ErrDatabaseError)
	}

	return s.GetLocation(ctx, ownerID)
}
