package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

type Handler struct {
	sm     *workflows.StateMachine
	logger *zap.Logger
}

func NewHandler(sm *workflows.StateMachine, logger *zap.Logger) *Handler {
	return &Handler{sm: sm, logger: logger}
}

// Me returns the caller identity and what the role may do across the workflow.
func (h *Handler) Me(c *gin.Context) {
	actor, ok := ActorFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "PERMISSION_DENIED", "message": "request is not authenticated"}})
		return
	}

	var enterable []workflows.StageID
	for _, stage := range h.sm.Definition().Stages {
		if h.sm.CanEnter(stage.ID, actor.Role) {
			enterable = append(enterable, stage.ID)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       actor.UserID,
		"role":          actor.Role,
		"admin":         h.sm.IsAdmin(actor.Role),
		"can_move_back": h.sm.CanMoveBackwardAs(actor.Role),
		"can_reset":     h.sm.CanResetAs(actor.Role),
		"enterable":     enterable,
	})
}
