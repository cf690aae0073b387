package handler

import (
	"github.com/gin-gonic/gin"

	"anoncart/internal/model"
	"anoncart/internal/service/cart"
	"anoncart/pkg/utils"
)

// CartHandler cart endpoints for one kind of owner
type CartHandler[ID model.OwnerID] struct {
	cartService cart.Service[ID]
	owner       OwnerFunc[ID]
}

// NewCartHandler creates a cart handler
func NewCartHandler[ID model.OwnerID](cartService cart.Service[ID], owner OwnerFunc[ID]) *CartHandler[ID] {
	return &CartHandler[ID]{
		cartService: cartService,
		owner:       owner,
	}
}

// GetCart returns the cart with its totals
func (h *CartHandler[ID]) GetCart(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	resp, err := h.cartService.GetCart(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, resp)
}

// AddItem adds a service to the cart
func (h *CartHandler[ID]) AddItem(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req cart.AddItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.cartService.AddItem(c.Request.Context(), ownerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, item)
}

// UpdateItem sets the quantity of a line
func (h *CartHandler[ID]) UpdateItem(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	itemID, err := utils.ValidateID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req cart.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.cartService.UpdateItem(c.Request.Context(), ownerID, itemID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	if item == nil {
		utils.SuccessResponse(c, gin.H{"id": itemID, "removed": true})
		return
	}
	utils.SuccessResponse(c, item)
}

// RemoveItem removes a line
func (h *CartHandler[ID]) RemoveItem(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	itemID, err := utils.ValidateID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.cartService.RemoveItem(c.Request.Context(), ownerID, itemID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"id": itemID, "removed": true})
}

// Clear empties the cart
func (h *CartHandler[ID]) Clear(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		unauthorized(c)
		return
	}

	if err := h.cartService.Clear(c.Request.Context(), ownerID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// Register mounts the cart routes on rg
func (h *CartHandler[ID]) Register(rg *gin.RouterGroup) {
	rg.GET("", h.GetCart)
	rg.DELETE("", h.Clear)
	rg.POST("/items", h.AddItem)
	rg.PUT("/items/:id", h.UpdateItem)
	rg.DELETE("/items/:id", h.RemoveItem)
}
