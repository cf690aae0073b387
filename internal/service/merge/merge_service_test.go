package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anoncart/internal/model"
	"anoncart/internal/repository"
	"anoncart/pkg/lock"
)

const (
	anonToken = "anon-token"
	anonID    = "7d9f3a52-anon"
	accountID = uint64(42)
)

type fakeValidator map[string]string

func (f fakeValidator) Validate(token string) (string, bool) {
	id, ok := f[token]
	return id, ok
}

type fakeRecorder struct {
	statuses []model.MergeStatus
	details  []model.MergeDetails
}

func (r *fakeRecorder) RecordMerge(status model.MergeStatus, details model.MergeDetails) {
	r.statuses = append(r.statuses, status)
	r.details = append(r.details, details)
}

// failingCarts makes account line creation fail to exercise rollback
type failingCarts struct {
	repository.CartRepository[uint64]
	err error
}

func (f failingCarts) Create(ctx context.Context, item *model.UserCartItem) error {
	return f.err
}

type failingUnitOfWork struct {
	inner repository.UnitOfWork
	err   error
}

func (u failingUnitOfWork) Do(ctx context.Context, fn func(stores *repository.Stores) error) error {
	return u.inner.Do(ctx, func(stores *repository.Stores) error {
		stores.UserCarts = failingCarts{CartRepository: stores.UserCarts, err: u.err}
		return fn(stores)
	})
}

type fixture struct {
	db       *repository.MemoryDB
	stores   *repository.Stores
	recorder *fakeRecorder
	service  Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	db := repository.NewMemoryDB()
	recorder := &fakeRecorder{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(db.UnitOfWork(), fakeValidator{anonToken: anonID}, recorder).(*mergeService)
	svc.now = func() time.Time { return now }

	return &fixture{
		db:       db,
		stores:   db.Stores(),
		recorder: recorder,
		service:  svc,
		now:      now,
	}
}

func (f *fixture) addAnonLine(t *testing.T, shopID, serviceID uint64, qty int, price int64, addedAt time.Time) {
	require.NoError(t, f.stores.AnonCarts.Create(context.Background(), &model.AnonCartItem{
		OwnerID: anonID, ShopID: shopID, ServiceID: serviceID, Quantity: qty,
		PriceAtAddition: price, ServiceName: "service", ShopName: "shop",
		AddedAt: addedAt, UpdatedAt: addedAt,
	}))
}

func (f *fixture) addUserLine(t *testing.T, shopID, serviceID uint64, qty int, price int64, addedAt time.Time) {
	require.NoError(t, f.stores.UserCarts.Create(context.Background(), &model.UserCartItem{
		OwnerID: accountID, ShopID: shopID, ServiceID: serviceID, Quantity: qty,
		PriceAtAddition: price, ServiceName: "service", ShopName: "shop",
		AddedAt: addedAt, UpdatedAt: addedAt,
	}))
}

func location(lat float64, setAt time.Time) model.Location {
	return model.Location{Latitude: lat, Longitude: 10, Source: "gps", SetAt: setAt}
}

func TestMerge_EmptyToken(t *testing.T) {
	f := newFixture(t)

	result := f.service.Merge(context.Background(), accountID, "")

	assert.True(t, result.Success)
	assert.Equal(t, model.MergeMessageNoSession, result.Message)
	assert.True(t, result.Details.Empty())
}

func TestMerge_InvalidTokenNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yesterday := f.now.Add(-24 * time.Hour)

	f.addAnonLine(t, 1, 10, 2, 1500, yesterday)
	f.addUserLine(t, 1, 10, 3, 1000, yesterday)
	require.NoError(t, f.stores.AnonPreferences.SaveLocation(ctx, anonID, location(1, f.now), f.now))

	result := f.service.Merge(ctx, accountID, "tampered")

	assert.False(t, result.Success)
	assert.Equal(t, model.MergeMessageInvalidToken, result.Message)
	assert.Equal(t, model.MergeStatusInvalidToken, result.Status)
	assert.True(t, result.Details.Empty())

	anonItems, _ := f.stores.AnonCarts.List(ctx, anonID)
	userItems, _ := f.stores.UserCarts.List(ctx, accountID)
	require.Len(t, anonItems, 1)
	require.Len(t, userItems, 1)
	assert.Equal(t, 3, userItems[0].Quantity)
	pref, _ := f.stores.AnonPreferences.Get(ctx, anonID)
	assert.NotNil(t, pref)
}

func TestMerge_AdditiveReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	earlier := f.now.Add(-48 * time.Hour)

	f.addUserLine(t, 1, 10, 3, 1000, earlier)
	f.addAnonLine(t, 1, 10, 2, 1500, f.now.Add(-time.Hour))

	result := f.service.Merge(ctx, accountID, anonToken)

	require.True(t, result.Success)
	assert.Equal(t, model.MergeMessageMerged, result.Message)
	assert.Equal(t, 1, result.Details.DuplicatesHandled)
	assert.Equal(t, 0, result.Details.CartItemsTransferred)

	userItems, err := f.stores.UserCarts.List(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, userItems, 1)
	assert.Equal(t, 5, userItems[0].Quantity)
	assert.Equal(t, int64(1000), userItems[0].PriceAtAddition)
	assert.Equal(t, earlier, userItems[0].AddedAt)
	assert.Equal(t, f.now, userItems[0].UpdatedAt)

	anonItems, _ := f.stores.AnonCarts.List(ctx, anonID)
	assert.Empty(t, anonItems)
}

func TestMerge_FreshTransferPreservesHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addedAt := f.now.Add(-72 * time.Hour)
	image := "https://cdn.example.com/massage.png"

	require.NoError(t, f.stores.AnonCarts.Create(ctx, &model.AnonCartItem{
		OwnerID: anonID, ShopID: 2, ServiceID: 20, Quantity: 4, PriceAtAddition: 2500,
		ServiceName: "Massage", ShopName: "Spa", ImageURL: &image,
		AddedAt: addedAt, UpdatedAt: addedAt,
	}))
	f.addAnonLine(t, 3, 30, 1, 900, addedAt.Add(time.Minute))

	result := f.service.Merge(ctx, accountID, anonToken)

	require.True(t, result.Success)
	assert.Equal(t, 2, result.Details.CartItemsTransferred)
	assert.Equal(t, 0, result.Details.DuplicatesHandled)

	userItems, err := f.stores.UserCarts.List(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, userItems, 2)
	first := userItems[0]
	assert.Equal(t, addedAt, first.AddedAt)
	assert.Equal(t, 4, first.Quantity)
	assert.Equal(t, int64(2500), first.PriceAtAddition)
	assert.Equal(t, "Massage", first.ServiceName)
	assert.Equal(t, "Spa", first.ShopName)
	require.NotNil(t, first.ImageURL)
	assert.Equal(t, image, *first.ImageURL)
}

func TestMerge_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUserLine(t, 1, 10, 3, 1000, f.now)
	f.addAnonLine(t, 1, 10, 2, 1000, f.now)
	f.addAnonLine(t, 2, 20, 1, 500, f.now)
	require.NoError(t, f.stores.AnonPreferences.SaveLocation(ctx, anonID, location(1, f.now), f.now))

	first := f.service.Merge(ctx, accountID, anonToken)
	require.True(t, first.Success)
	assert.False(t, first.Details.Empty())

	second := f.service.Merge(ctx, accountID, anonToken)
	assert.True(t, second.Success)
	assert.Equal(t, model.MergeMessageNothingFound, second.Message)
	assert.Equal(t, model.MergeDetails{}, second.Details)

	userItems, _ := f.stores.UserCarts.List(ctx, accountID)
	require.Len(t, userItems, 2)
	assert.Equal(t, 5, userItems[0].Quantity)
}

func TestMerge_PreferenceRecencyWins(t *testing.T) {
	t1 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		accountSetAt    *time.Time
		anonSetAt       time.Time
		wantTransferred bool
		wantLatitude    float64
	}{
		{"anonymous newer", &t1, t1.Add(time.Hour), true, 2},
		{"anonymous older", &t1, t1.Add(-time.Hour), false, 1},
		{"tie keeps account", &t1, t1, false, 1},
		{"account has none", nil, t1, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if tt.accountSetAt != nil {
				require.NoError(t, f.stores.UserPreferences.SaveLocation(ctx, accountID, location(1, *tt.accountSetAt), *tt.accountSetAt))
			}
			require.NoError(t, f.stores.AnonPreferences.SaveLocation(ctx, anonID, location(2, tt.anonSetAt), tt.anonSetAt))

			result := f.service.Merge(ctx, accountID, anonToken)
			require.True(t, result.Success)
			assert.Equal(t, model.MergeMessageMerged, result.Message)
			assert.Equal(t, tt.wantTransferred, result.Details.PreferencesTransferred)

			userPref, err := f.stores.UserPreferences.Get(ctx, accountID)
			require.NoError(t, err)
			require.NotNil(t, userPref)
			assert.Equal(t, tt.wantLatitude, *userPref.Latitude)
			if tt.wantTransferred {
				assert.Equal(t, tt.anonSetAt, *userPref.LocationSetAt)
			}

			anonPref, err := f.stores.AnonPreferences.Get(ctx, anonID)
			require.NoError(t, err)
			assert.Nil(t, anonPref)
		})
	}
}

func TestMerge_StalePreferenceCountsAsFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.stores.UserPreferences.SaveLocation(ctx, accountID, location(1, f.now.Add(-time.Hour)), f.now))
	require.NoError(t, f.stores.AnonPreferences.SaveLocation(ctx, anonID, location(2, f.now.Add(-2*time.Hour)), f.now))

	result := f.service.Merge(ctx, accountID, anonToken)
	require.True(t, result.Success)
	assert.Equal(t, model.MergeMessageMerged, result.Message)
	assert.Equal(t, model.MergeDetails{}, result.Details)

	anonPref, err := f.stores.AnonPreferences.Get(ctx, anonID)
	require.NoError(t, err)
	assert.Nil(t, anonPref)
}

func TestMerge_StorageFailureRollsBack(t *testing.T) {
	db := repository.NewMemoryDB()
	stores := db.Stores()
	recorder := &fakeRecorder{}
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, stores.AnonCarts.Create(ctx, &model.AnonCartItem{
		OwnerID: anonID, ShopID: 1, ServiceID: 10, Quantity: 2, PriceAtAddition: 100, AddedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, stores.AnonCarts.Create(ctx, &model.AnonCartItem{
		OwnerID: anonID, ShopID: 2, ServiceID: 20, Quantity: 1, PriceAtAddition: 100, AddedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, stores.UserCarts.Create(ctx, &model.UserCartItem{
		OwnerID: accountID, ShopID: 1, ServiceID: 10, Quantity: 3, PriceAtAddition: 100, AddedAt: now, UpdatedAt: now,
	}))

	uow := failingUnitOfWork{inner: db.UnitOfWork(), err: errors.New("Error 1205: Lock wait timeout exceeded")}
	svc := NewService(uow, fakeValidator{anonToken: anonID}, recorder)

	result := svc.Merge(ctx, accountID, anonToken)

	assert.False(t, result.Success)
	assert.Equal(t, model.MergeMessageFailed, result.Message)
	assert.NotContains(t, result.Message, "Lock wait")
	assert.True(t, result.Details.Empty())

	// the duplicate fold that ran before the failure is undone as well
	userItems, _ := stores.UserCarts.List(ctx, accountID)
	require.Len(t, userItems, 1)
	assert.Equal(t, 3, userItems[0].Quantity)
	anonItems, _ := stores.AnonCarts.List(ctx, anonID)
	assert.Len(t, anonItems, 2)

	require.Len(t, recorder.statuses, 1)
	assert.Equal(t, model.MergeStatusFailed, recorder.statuses[0])
}

func TestMerge_KeepsLinesUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUserLine(t, 1, 10, 1, 100, f.now)
	f.addUserLine(t, 2, 20, 1, 100, f.now)
	f.addAnonLine(t, 1, 10, 1, 100, f.now)
	f.addAnonLine(t, 2, 20, 1, 100, f.now)
	f.addAnonLine(t, 3, 30, 1, 100, f.now)

	result := f.service.Merge(ctx, accountID, anonToken)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Details.DuplicatesHandled)
	assert.Equal(t, 1, result.Details.CartItemsTransferred)

	userItems, _ := f.stores.UserCarts.List(ctx, accountID)
	seen := make(map[offeringKey]bool)
	for _, item := range userItems {
		key := offeringKey{item.ShopID, item.ServiceID}
		assert.False(t, seen[key], "duplicate line for %v", key)
		seen[key] = true
	}
	assert.Len(t, userItems, 3)
}

func TestMerge_RecordsOutcome(t *testing.T) {
	f := newFixture(t)

	f.service.Merge(context.Background(), accountID, "")
	f.service.Merge(context.Background(), accountID, "bad")

	assert.Equal(t, []model.MergeStatus{model.MergeStatusOK, model.MergeStatusInvalidToken}, f.recorder.statuses)
}

type fakeLocker struct {
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, name string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, name)
	return func() { l.released++ }, nil
}

func TestMerge_LockedPerAnonymousID(t *testing.T) {
	f := newFixture(t)
	locker := &fakeLocker{}
	WithLocker(locker)(f.service.(*mergeService))
	f.addAnonLine(t, 1, 10, 1, 100, f.now)

	result := f.service.Merge(context.Background(), accountID, anonToken)
	require.True(t, result.Success)
	assert.Equal(t, []string{anonID}, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestMerge_LockBusyFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	WithLocker(&fakeLocker{err: lock.ErrLockFailed})(f.service.(*mergeService))
	f.addAnonLine(t, 1, 10, 1, 100, f.now)

	result := f.service.Merge(context.Background(), accountID, anonToken)
	assert.False(t, result.Success)
	assert.Equal(t, model.MergeStatusFailed, result.Status)

	anonItems, _ := f.stores.AnonCarts.List(context.Background(), anonID)
	assert.Len(t, anonItems, 1)
}

func TestMerge_LockUnavailableStillMerges(t *testing.T) {
	f := newFixture(t)
	WithLocker(&fakeLocker{err: errors.New("dial tcp: connection refused")})(f.service.(*mergeService))
	f.addAnonLine(t, 1, 10, 1, 100, f.now)

	result := f.service.Merge(context.Background(), accountID, anonToken)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Details.CartItemsTransferred)
}

func TestMerge_RedisLockerReleases(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := repository.NewMemoryDB()
	svc := NewService(db.UnitOfWork(), fakeValidator{anonToken: anonID}, nil,
		WithLocker(lock.NewLocker(client, "merge", time.Minute, 1, time.Millisecond)))

	first := svc.Merge(context.Background(), accountID, anonToken)
	second := svc.Merge(context.Background(), accountID, anonToken)

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.False(t, mr.Exists("lock:merge:"+anonID))
}
