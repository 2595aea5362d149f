package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/services"
)

const maxBatchGoals = 100

type GoalHandler struct {
	progress  *services.ProgressService
	rebalance *services.RebalanceService
}

func NewGoalHandler(progress *services.ProgressService, rebalance *services.RebalanceService) *GoalHandler {
	return &GoalHandler{progress: progress, rebalance: rebalance}
}

type manualProgressRequest struct {
	ManualOffset *float64 `json:"manual_offset" binding:"required"`
}

type newHabitRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	Cadence         string `json:"cadence"`
	PerPeriodTarget int    `json:"per_period_target"`
}

type rebalanceRequest struct {
	Remove []string          `json:"remove"`
	Add    []newHabitRequest `json:"add" binding:"dive"`
}

func (h *GoalHandler) RegisterRoutes(router *gin.RouterGroup) {
	goals := router.Group("/goals")
	{
		goals.GET("", h.BatchProgress)
		goals.GET("/:id/progress", h.Progress)
		goals.PUT("/:id/progress", h.UpdateManualProgress)
		goals.POST("/:id/complete", h.Complete)
		goals.POST("/:id/rebalance", h.Rebalance)
	}
}

func (h *GoalHandler) Progress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	p, err := h.progress.ComputeGoalProgress(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// BatchProgress reads ?ids=a,b,c. Unknown or foreign ids are left out.
func (h *GoalHandler) BatchProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var ids []string
	for _, raw := range strings.Split(c.Query("ids"), ",") {
		if id := strings.TrimSpace(raw); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids query parameter is required"})
		return
	}
	if len(ids) > maxBatchGoals {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many goal ids, max 100 allowed"})
		return
	}

	out, err := h.progress.ComputeGoalsProgress(c.Request.Context(), ids, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"goals": out})
}

func (h *GoalHandler) UpdateManualProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req manualProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	change, err := h.progress.UpdateManualProgress(c.Request.Context(), c.Param("id"), userID, *req.ManualOffset)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, change)
}

func (h *GoalHandler) Complete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	change, err := h.progress.CompleteGoal(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, change)
}

func (h *GoalHandler) Rebalance(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req rebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if len(req.Remove) == 0 && len(req.Add) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to rebalance"})
		return
	}

	input := services.RebalanceInput{
		GoalID:         c.Param("id"),
		UserID:         userID,
		RemoveHabitIDs: req.Remove,
	}
	for _, a := range req.Add {
		input.Add = append(input.Add, services.NewHabitInput{
			Title:           a.Title,
			Description:     a.Description,
			Cadence:         a.Cadence,
			PerPeriodTarget: a.PerPeriodTarget,
		})
	}

	result, err := h.rebalance.SwapHabits(c.Request.Context(), input)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
