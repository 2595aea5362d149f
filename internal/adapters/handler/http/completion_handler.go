package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/services"
)

type CompletionHandler struct {
	svc *services.CompletionService
}

func NewCompletionHandler(svc *services.CompletionService) *CompletionHandler {
	return &CompletionHandler{svc: svc}
}

type logCompletionRequest struct {
	HabitID     string     `json:"habit_id" binding:"required"`
	CompletedAt *time.Time `json:"completed_at"`
	Notes       string     `json:"notes"`
}

func (h *CompletionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/completions", h.Log)
}

func (h *CompletionHandler) Log(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req logCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	input := services.LogCompletionInput{
		HabitID: req.HabitID,
		UserID:  userID,
		Notes:   req.Notes,
	}
	if req.CompletedAt != nil {
		input.CompletedAt = *req.CompletedAt
	}

	result, err := h.svc.LogCompletion(c.Request.Context(), input)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
