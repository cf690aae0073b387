package merge

import (
	"context"
	"errors"
	"time"

	"anoncart/internal/model"
	"anoncart/internal/repository"
	"anoncart/pkg/lock"
	"anoncart/pkg/log"
)

// TokenValidator resolves an anonymous credential to its anonymous id
type TokenValidator interface {
	Validate(token string) (string, bool)
}

// Recorder receives merge outcomes
type Recorder interface {
	RecordMerge(status model.MergeStatus, details model.MergeDetails)
}

// Service folds an anonymous session into an account
type Service interface {
	// Merge moves everything stored under the credential's anonymous id into
	// the account. It never returns an error: failures are reported in the
	// result.
	Merge(ctx context.Context, accountID uint64, anonymousToken string) *model.MergeResult
}

// Locker serializes merges of the same anonymous id across instances
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Option configures a merge service
type Option func(*mergeService)

// WithLocker takes a per anonymous id lock around each merge. Row locks
// inside the transaction still apply when the locker is unavailable.
func WithLocker(l Locker) Option {
	return func(s *mergeService) {
		s.locker = l
	}
}

type mergeService struct {
	uow       repository.UnitOfWork
	validator TokenValidator
	recorder  Recorder
	locker    Locker
	now       func() time.Time
}

// NewService creates a merge service; recorder may be nil
func NewService(uow repository.UnitOfWork, validator TokenValidator, recorder Recorder, opts ...Option) Service {
	s := &mergeService{
		uow:       uow,
		validator: validator,
		recorder:  recorder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type offeringKey struct {
	shopID    uint64
	serviceID uint64
}

// Merge merges anonymous cart lines and preference into the account
func (s *mergeService) Merge(ctx context.Context, accountID uint64, anonymousToken string) *model.MergeResult {
	if anonymousToken == "" {
		return s.finish(&model.MergeResult{
			Success: true,
			Message: model.MergeMessageNoSession,
			Status:  model.MergeStatusOK,
		})
	}

	anonID, ok := s.validator.Validate(anonymousToken)
	if !ok {
		log.WithFields(map[string]interface{}{
			"user_id": accountID,
		}).Warn("merge rejected: invalid anonymous session token")
		return s.finish(&model.MergeResult{
			Success: false,
			Message: model.MergeMessageInvalidToken,
			Status:  model.MergeStatusInvalidToken,
		})
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, anonID)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, lock.ErrLockFailed):
			log.WithFields(map[string]interface{}{
				"user_id": accountID,
				"anon_id": anonID,
			}).Warn("merge rejected: another merge of this session is in progress")
			return s.finish(&model.MergeResult{
				Success: false,
				Message: model.MergeMessageFailed,
				Status:  model.MergeStatusFailed,
			})
		default:
			log.WithError(err).WithField("anon_id", anonID).Warn("merge lock unavailable, relying on row locks")
		}
	}

	var (
		details model.MergeDetails
		found   bool
	)
	err := s.uow.Do(ctx, func(stores *repository.Stores) error {
		details = model.MergeDetails{}

		cartFound, err := s.mergeCart(ctx, stores, anonID, accountID, &details)
		if err != nil {
			return err
		}
		prefFound, err := s.mergePreference(ctx, stores, anonID, accountID, &details)
		if err != nil {
			return err
		}
		found = cartFound || prefFound
		return nil
	})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"user_id": accountID,
			"anon_id": anonID,
			"error":   err.Error(),
		}).Error("merge anonymous data failed, rolled back")
		return s.finish(&model.MergeResult{
			Success: false,
			Message: model.MergeMessageFailed,
			Status:  model.MergeStatusFailed,
		})
	}

	message := model.MergeMessageMerged
	if !found {
		message = model.MergeMessageNothingFound
	}

	log.WithFields(map[string]interface{}{
		"user_id":                 accountID,
		"anon_id":                 anonID,
		"cart_items_transferred":  details.CartItemsTransferred,
		"duplicates_handled":      details.DuplicatesHandled,
		"preferences_transferred": details.PreferencesTransferred,
	}).Info("anonymous data merged")

	return s.finish(&model.MergeResult{
		Success: true,
		Message: message,
		Details: details,
		Status:  model.MergeStatusOK,
	})
}

// mergeCart folds anonymous lines into the account cart. A line for a pair the
// account already has adds its quantity and keeps the account's snapshots;
// any other line is copied with its snapshots and original added_at.
func (s *mergeService) mergeCart(ctx context.Context, stores *repository.Stores, anonID string, accountID uint64, details *model.MergeDetails) (bool, error) {
	anonItems, err := stores.AnonCarts.ListForUpdate(ctx, anonID)
	if err != nil {
		return false, err
	}
	if len(anonItems) == 0 {
		return false, nil
	}

	userItems, err := stores.UserCarts.ListForUpdate(ctx, accountID)
	if err != nil {
		return false, err
	}

	existing := make(map[offeringKey]*model.UserCartItem, len(userItems))
	for _, item := range userItems {
		existing[offeringKey{item.ShopID, item.ServiceID}] = item
	}

	now := s.now()
	for _, anon := range anonItems {
		key := offeringKey{anon.ShopID, anon.ServiceID}

		if item, ok := existing[key]; ok {
			if err := stores.UserCarts.AddQuantity(ctx, accountID, item.ID, anon.Quantity, now); err != nil {
				return false, err
			}
			item.Quantity += anon.Quantity
			details.DuplicatesHandled++
			continue
		}

		item := &model.UserCartItem{
			OwnerID:         accountID,
			ShopID:          anon.ShopID,
			ServiceID:       anon.ServiceID,
			Quantity:        anon.Quantity,
			PriceAtAddition: anon.PriceAtAddition,
			ServiceName:     anon.ServiceName,
			ShopName:        anon.ShopName,
			ImageURL:        anon.ImageURL,
			AddedAt:         anon.AddedAt,
			UpdatedAt:       now,
		}
		if err := stores.UserCarts.Create(ctx, item); err != nil {
			return false, err
		}
		existing[key] = item
		details.CartItemsTransferred++
	}

	if _, err := stores.AnonCarts.DeleteAll(ctx, anonID); err != nil {
		return false, err
	}
	return true, nil
}

// mergePreference copies the anonymous location when it is strictly newer
// than the account's (or the account has none). The anonymous record is
// removed either way.
func (s *mergeService) mergePreference(ctx context.Context, stores *repository.Stores, anonID string, accountID uint64, details *model.MergeDetails) (bool, error) {
	anonPref, err := stores.AnonPreferences.GetForUpdate(ctx, anonID)
	if err != nil {
		return false, err
	}
	if anonPref == nil {
		return false, nil
	}

	if loc := anonPref.Location(); loc != nil {
		userPref, err := stores.UserPreferences.GetForUpdate(ctx, accountID)
		if err != nil {
			return false, err
		}

		if !userPref.HasLocation() || loc.SetAt.After(*userPref.LocationSetAt) {
			if err := stores.UserPreferences.SaveLocation(ctx, accountID, *loc, s.now()); err != nil {
				return false, err
			}
			details.PreferencesTransferred = true
		}
	}

	if _, err := stores.AnonPreferences.Delete(ctx, anonID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *mergeService) finish(result *model.MergeResult) *model.MergeResult {
	if s.recorder != nil {
		s.recorder.RecordMerge(result.Status, result.Details)
	}
	return result
}
