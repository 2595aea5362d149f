package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCompletion = errors.New("invalid habit completion data")
	ErrAlreadyAtCapacity = errors.New("habit already logged the maximum number of times for this period")
)

const (
	MaxNotesLen = 1000

	// FutureSkew tolerates client clocks slightly ahead of the server.
	FutureSkew = time.Minute
)

// HabitCompletion is an immutable ledger event.
type HabitCompletion struct {
	ID          string    `json:"id"`
	HabitID     string    `json:"habit_id"`
	UserID      string    `json:"user_id"`
	CompletedAt time.Time `json:"completed_at"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewHabitCompletion(habitID, userID string, completedAt time.Time, notes string, now time.Time) *HabitCompletion {
	if completedAt.IsZero() {
		completedAt = now
	}

	return &HabitCompletion{
		ID:          uuid.NewString(),
		HabitID:     strings.TrimSpace(habitID),
		UserID:      strings.TrimSpace(userID),
		CompletedAt: completedAt.UTC(),
		Notes:       strings.TrimSpace(notes),
		CreatedAt:   now.UTC(),
	}
}

func (c *HabitCompletion) Validate(now time.Time) error {
	if c.HabitID == "" {
		return errors.Join(ErrInvalidCompletion, errors.New("habit_id is required"))
	}
	if c.UserID == "" {
		return errors.Join(ErrInvalidCompletion, errors.New("user_id is required"))
	}
	if len(c.Notes) > MaxNotesLen {
		return errors.Join(ErrInvalidCompletion, errors.New("notes are too long (max 1000 chars)"))
	}
	if c.CompletedAt.After(now.Add(FutureSkew)) {
		return errors.Join(ErrInvalidCompletion, errors.New("completed_at cannot be in the future"))
	}
	return nil
}
