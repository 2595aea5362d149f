package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/services"
)

// StatsHandler serves read-only views of a habit's ledger.
type StatsHandler struct {
	completions *services.CompletionService
	stats       *services.StatsService
}

func NewStatsHandler(completions *services.CompletionService, stats *services.StatsService) *StatsHandler {
	return &StatsHandler{completions: completions, stats: stats}
}

func (h *StatsHandler) RegisterRoutes(r *gin.RouterGroup) {
	habits := r.Group("/habits/:id")
	{
		habits.GET("/streaks", h.Streaks)
		habits.GET("/period", h.Period)
	}
}

func (h *StatsHandler) Streaks(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	report, err := h.completions.ComputeStreaks(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *StatsHandler) Period(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	status, err := h.stats.PeriodStatus(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
