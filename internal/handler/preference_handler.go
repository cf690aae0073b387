package handler

import (
	"github.com/gin-gonic/gin"

	"anoncart/internal/model"
	"anoncart/internal/service/preference"
	"anoncart/pkg/utils"
)

// PreferenceHandler location preference endpoints for one kind of owner
type PreferenceHandler[ID model.OwnerID] struct {
	preferenceService preference.Service[ID]
	owner             OwnerFunc[ID]
}

// NewPreferenceHandler creates a preference handler
func NewPreferenceHandler[ID model.OwnerID](preferenceService preference.Service[ID], owner OwnerFunc[ID]) *PreferenceHandler[ID] {
	return &PreferenceHandler[ID]{
		preferenceService: preferenceService,
		owner:             owner,
	}
}

// GetLocation returns the stored preference; data is omitted when none exists
func (h *PreferenceHandler[ID]) GetLocation(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	pref, err := h.preferenceService.GetLocation(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	if pref == nil {
		utils.SuccessResponse(c, nil)
		return
	}
	utils.SuccessResponse(c, pref)
}

// UpdateLocation saves the location
func (h *PreferenceHandler[ID]) UpdateLocation(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req preference.UpdateLocationRequest
	if !bindJSON(c, &req) {
		return
	}

	pref, err := h.preferenceService.UpdateLocation(c.Request.Context(), ownerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, pref)
}

// Register mounts the preference routes on rg
func (h *PreferenceHandler[ID]) Register(rg *gin.RouterGroup) {
	rg.GET("/location", h.GetLocation)
	rg.PUT("/location", h.UpdateLocation)
}
