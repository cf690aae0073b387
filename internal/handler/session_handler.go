package handler

import (
	"github.com/gin-gonic/gin"

	"anoncart/internal/utils"
	"anoncart/pkg/log"
	pkgutils "anoncart/pkg/utils"
)

// SessionIssuer mints anonymous sessions
type SessionIssuer interface {
	Issue() (*utils.AnonymousSession, error)
}

// SessionRecorder receives issuance outcomes
type SessionRecorder interface {
	RecordSessionIssued(status string)
}

// SessionHandler anonymous session handler
type SessionHandler struct {
	issuer   SessionIssuer
	recorder SessionRecorder
}

// NewSessionHandler creates an anonymous session handler; recorder may be nil
func NewSessionHandler(issuer SessionIssuer, recorder SessionRecorder) *SessionHandler {
	return &SessionHandler{
		issuer:   issuer,
		recorder: recorder,
	}
}

// Issue mints a new anonymous session
func (h *SessionHandler) Issue(c *gin.Context) {
	session, err := h.issuer.Issue()
	if err != nil {
		h.record("error")
		log.WithError(err).Error("issue anonymous session failed")
		respondError(c, pkgutils.WrapError(err, pkgutils.ErrInternalError))
		return
	}

	h.record("success")
	log.WithFields(map[string]interface{}{
		"anon_id": session.AnonID,
		"ip":      c.ClientIP(),
	}).Debug("anonymous session issued")
	pkgutils.SuccessResponse(c, session)
}

func (h *SessionHandler) record(status string) {
	if h.recorder != nil {
		h.recorder.RecordSessionIssued(status)
	}
}
