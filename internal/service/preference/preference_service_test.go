package preference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anoncart/internal/repository"
)

func floatPtr(f float64) *float64 {
	return &f
}

func TestPreferenceService(t *testing.T) {
	ctx := context.Background()
	svc := NewService[string](repository.NewMemoryDB().Stores().AnonPreferences, "anonymous").(*preferenceService[string])

	t.Run("absent is not an error", func(t *testing.T) {
		pref, err := svc.GetLocation(ctx, "anon-1")
		require.NoError(t, err)
		assert.Nil(t, pref)
	})

	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	t.Run("first update creates", func(t *testing.T) {
		svc.now = func() time.Time { return created }

		pref, err := svc.UpdateLocation(ctx, "anon-1", &UpdateLocationRequest{
			Latitude: floatPtr(52.52), Longitude: floatPtr(13.405), Accuracy: floatPtr(15), Source: "gps",
		})
		require.NoError(t, err)
		require.NotNil(t, pref)
		assert.Equal(t, created, pref.CreatedAt)
		assert.Equal(t, created, *pref.LocationSetAt)
		assert.Equal(t, 15.0, *pref.Accuracy)
	})

	t.Run("second update overwrites as a unit", func(t *testing.T) {
		updated := created.Add(time.Hour)
		svc.now = func() time.Time { return updated }

		pref, err := svc.UpdateLocation(ctx, "anon-1", &UpdateLocationRequest{
			Latitude: floatPtr(48.85), Longitude: floatPtr(2.35), Source: "manual",
		})
		require.NoError(t, err)
		assert.Equal(t, created, pref.CreatedAt)
		assert.Equal(t, updated, pref.UpdatedAt)
		assert.Equal(t, 48.85, *pref.Latitude)
		assert.Nil(t, pref.Accuracy)
		assert.Equal(t, "manual", *pref.LocationSource)
	})
}
