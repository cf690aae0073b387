package handler

import (
	"github.com/gin-gonic/gin"

	"anoncart/internal/middleware"
	"anoncart/internal/model"
	"anoncart/pkg/log"
	"anoncart/pkg/utils"
)

// OwnerFunc resolves the owner of a request from its authenticated context
type OwnerFunc[ID model.OwnerID] func(c *gin.Context) (ID, bool)

// AnonymousOwner owner set by middleware.AnonymousAuth
func AnonymousOwner(c *gin.Context) (string, bool) {
	return middleware.GetAnonymousID(c)
}

// AccountOwner owner set by middleware.Auth
func AccountOwner(c *gin.Context) (uint64, bool) {
	return middleware.GetUserID(c)
}

// respondError writes err; server-side failures are logged with their cause
func respondError(c *gin.Context, err error) {
	code := utils.GetErrorCode(err)
	if code.HTTPStatus() >= 500 {
		log.WithFields(map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"error":  err.Error(),
		}).Error("request failed")
	}
	utils.AppErrorResponse(c, err)
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.AppErrorResponse(c, utils.FormatBindError(err))
		return false
	}
	return true
}

func unauthorized(c *gin.Context) {
	utils.Error(c, utils.CodeUnauthorized, "Unauthorized")
}
