package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"Capacity", domain.ErrAlreadyAtCapacity, http.StatusConflict},
		{"Wrapped capacity", fmt.Errorf("log: %w", domain.ErrAlreadyAtCapacity), http.StatusConflict},
		{"Habit not found", domain.ErrHabitNotFound, http.StatusNotFound},
		{"Goal not found", domain.ErrGoalNotFound, http.StatusNotFound},
		{"User not found", domain.ErrUserNotFound, http.StatusNotFound},
		{"Joined validation", errors.Join(domain.ErrInvalidCompletion, errors.New("habit_id is required")), http.StatusBadRequest},
		{"Cadence", calendar.ErrInvalidCadence, http.StatusBadRequest},
		{"Manual progress", domain.ErrInvalidProgress, http.StatusBadRequest},
		{"Title", domain.ErrHabitTitleEmpty, http.StatusBadRequest},
		{"Archived", domain.ErrGoalArchived, http.StatusBadRequest},
		{"Conflict", domain.ErrTxConflict, http.StatusServiceUnavailable},
		{"Unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)

			handleError(c, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestHandleError_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/completions", nil)

	handleError(c, errors.New("pq: password authentication failed"))

	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestHandleError_ConflictAsksForRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", nil)

	handleError(c, domain.ErrTxConflict)

	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
