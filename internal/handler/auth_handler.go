package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"anoncart/internal/middleware"
	"anoncart/internal/model"
	"anoncart/internal/service/auth"
	"anoncart/internal/service/merge"
	"anoncart/pkg/log"
	"anoncart/pkg/utils"
)

// MergeRequest merge request; an empty token is a no-op merge
type MergeRequest struct {
	AnonymousToken string `json:"anonymous_token"`
}

// AuthHandler authentication handler
type AuthHandler struct {
	authService  auth.AuthService
	mergeService merge.Service
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService auth.AuthService, mergeService merge.Service) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		mergeService: mergeService,
	}
}

// Register user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// Login user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, resp)
}

// Logout user logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	token, _ := middleware.GetToken(c)

	if err := h.authService.Logout(c.Request.Context(), userID, token); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// RefreshToken refreshes the access token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req auth.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, resp)
}

// MergeAnonymous folds an anonymous session into the caller's account. The
// body is the merge result itself: 200 on success, 400 for a rejected
// credential, 500 when storage failed.
func (h *AuthHandler) MergeAnonymous(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.AppErrorResponse(c, utils.FormatBindError(err))
		return
	}

	result := h.mergeService.Merge(c.Request.Context(), userID, req.AnonymousToken)

	log.WithFields(map[string]interface{}{
		"user_id": userID,
		"success": result.Success,
		"message": result.Message,
	}).Info("anonymous merge requested")

	c.JSON(mergeStatus(result.Status), result)
}

func mergeStatus(status model.MergeStatus) int {
	switch status {
	case model.MergeStatusOK:
		return http.StatusOK
	case model.MergeStatusInvalidToken:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
