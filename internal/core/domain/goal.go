package domain

import (
	"errors"
	"time"
)

var (
	ErrGoalArchived    = errors.New("cannot change an archived goal")
	ErrInvalidProgress = errors.New("manual progress must be between 0 and 100")
)

type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusArchived  GoalStatus = "archived"
)

// GoalInstance is a user's goal as the engine sees it. ManualOffset is a
// percentage contribution reported by the user or agent; it is combined with
// habit-driven progress and never represents the final percentage on its own.
type GoalInstance struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	TargetValue  int        `json:"target_value"`
	ManualOffset float64    `json:"manual_offset"`
	Status       GoalStatus `json:"status"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (g *GoalInstance) IsArchived() bool {
	return g.Status == GoalStatusArchived
}

func (g *GoalInstance) SetManualOffset(offset float64, now time.Time) error {
	if g.IsArchived() {
		return ErrGoalArchived
	}
	if offset < 0 || offset > 100 {
		return ErrInvalidProgress
	}
	g.ManualOffset = offset
	g.UpdatedAt = now.UTC()
	return nil
}

// Complete is terminal: a completed goal always reports 100%.
func (g *GoalInstance) Complete(now time.Time) error {
	if g.IsArchived() {
		return ErrGoalArchived
	}
	if g.Status == GoalStatusCompleted {
		return nil
	}
	now = now.UTC()
	g.Status = GoalStatusCompleted
	g.CompletedAt = &now
	g.UpdatedAt = now
	return nil
}
