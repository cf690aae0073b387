package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartItem_LineTotal(t *testing.T) {
	item := &UserCartItem{Quantity: 3, PriceAtAddition: 1250}
	assert.Equal(t, int64(3750), item.LineTotal())
	assert.True(t, item.SameOffering(0, 0))
}

func TestPreference_ApplyLocation(t *testing.T) {
	setAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	acc := 12.5

	pref := &AnonPreference{OwnerID: "anon-1"}
	assert.False(t, pref.HasLocation())
	assert.Nil(t, pref.Location())

	pref.ApplyLocation(Location{Latitude: 52.52, Longitude: 13.405, Accuracy: &acc, Source: "gps", SetAt: setAt})

	require.True(t, pref.HasLocation())
	loc := pref.Location()
	require.NotNil(t, loc)
	assert.Equal(t, 52.52, loc.Latitude)
	assert.Equal(t, 13.405, loc.Longitude)
	assert.Equal(t, "gps", loc.Source)
	assert.Equal(t, setAt, loc.SetAt)
	assert.Equal(t, 12.5, *loc.Accuracy)

	// copying into another record must not alias the source pointers
	other := &UserPreference{OwnerID: 9}
	other.ApplyLocation(*loc)
	*pref.Latitude = 0
	assert.Equal(t, 52.52, *other.Latitude)
}

func TestJSONObject_ValueScan(t *testing.T) {
	var empty JSONObject
	v, err := empty.Value()
	assert.NoError(t, err)
	assert.Nil(t, v)

	obj := JSONObject{"radius_km": float64(5)}
	v, err = obj.Value()
	require.NoError(t, err)

	var scanned JSONObject
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, float64(5), scanned["radius_km"])

	require.NoError(t, scanned.Scan(`{"theme":"dark"}`))
	assert.Equal(t, "dark", scanned["theme"])

	assert.Error(t, scanned.Scan(42))
}

func TestMergeResult_JSONShape(t *testing.T) {
	result := MergeResult{
		Success: true,
		Message: MergeMessageMerged,
		Details: MergeDetails{CartItemsTransferred: 2, DuplicatesHandled: 1, PreferencesTransferred: true},
		Status:  MergeStatusOK,
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"message": "anonymous data merged successfully",
		"details": {"cartItemsTransferred": 2, "duplicatesHandled": 1, "preferencesTransferred": true}
	}`, string(data))

	assert.True(t, MergeDetails{}.Empty())
	assert.False(t, result.Details.Empty())
}
