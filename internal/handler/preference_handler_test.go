package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anoncart/internal/repository"
	"anoncart/internal/service/preference"
)

func newAnonPreferenceRouter() *gin.Engine {
	store := repository.NewMemoryDB().Stores()
	svc := preference.NewService[string](store.AnonPreferences, "anonymous")
	h := NewPreferenceHandler[string](svc, AnonymousOwner)

	router := gin.New()
	h.Register(router.Group("/preferences", withAnonymous("a-1")))
	return router
}

func TestPreferenceHandler_GetEmpty(t *testing.T) {
	router := newAnonPreferenceRouter()

	w := doJSON(t, router, http.MethodGet, "/preferences/location", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, readEnvelope(t, w).Data)
}

func TestPreferenceHandler_UpdateLocation(t *testing.T) {
	router := newAnonPreferenceRouter()

	w := doJSON(t, router, http.MethodPut, "/preferences/location", gin.H{
		"latitude": 52.52, "longitude": 13.405, "accuracy": 12.5, "source": "gps",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/preferences/location", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var pref struct {
		Latitude       float64 `json:"latitude"`
		Longitude      float64 `json:"longitude"`
		Accuracy       float64 `json:"accuracy"`
		LocationSource string  `json:"location_source"`
		LocationSetAt  string  `json:"location_set_at"`
	}
	require.NoError(t, json.Unmarshal(readEnvelope(t, w).Data, &pref))
	assert.Equal(t, 52.52, pref.Latitude)
	assert.Equal(t, 13.405, pref.Longitude)
	assert.Equal(t, 12.5, pref.Accuracy)
	assert.Equal(t, "gps", pref.LocationSource)
	assert.NotEmpty(t, pref.LocationSetAt)
}

func TestPreferenceHandler_UpdateRejects(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
	}{
		{name: "latitude out of range", body: gin.H{"latitude": 91, "longitude": 0, "source": "gps"}},
		{name: "longitude out of range", body: gin.H{"latitude": 0, "longitude": -181, "source": "gps"}},
		{name: "missing longitude", body: gin.H{"latitude": 0, "source": "gps"}},
		{name: "missing source", body: gin.H{"latitude": 0, "longitude": 0}},
		{name: "negative accuracy", body: gin.H{"latitude": 0, "longitude": 0, "accuracy": -1, "source": "gps"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAnonPreferenceRouter()
			w := doJSON(t, router, http.MethodPut, "/preferences/location", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPreferenceHandler_ZeroCoordinatesAccepted(t *testing.T) {
	router := newAnonPreferenceRouter()

	w := doJSON(t, router, http.MethodPut, "/preferences/location", gin.H{
		"latitude": 0, "longitude": 0, "source": "manual",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
