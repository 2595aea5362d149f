package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
)

var (
	ErrHabitTitleEmpty    = errors.New("habit title cannot be empty")
	ErrHabitTitleTooLong  = errors.New("habit title is too long (max 100 chars)")
	ErrHabitDescTooLong   = errors.New("habit description is too long (max 500 chars)")
	ErrHabitInvalidUserID = errors.New("invalid user id")
)

const (
	MaxTitleLen = 100
	MaxDescLen  = 500
)

// HabitDefinition is a user-owned recurring action. It is never hard-deleted:
// once no goal references it, it is deactivated so its completion history stays.
// CurrentStreak, LongestStreak and TotalCompletions are caches of the ledger.
type HabitDefinition struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Title            string             `json:"title"`
	Description      string             `json:"description,omitempty"`
	Frequency        calendar.Frequency `json:"frequency"`
	IsActive         bool               `json:"is_active"`
	TotalCompletions int                `json:"total_completions"`
	CurrentStreak    int                `json:"current_streak"`
	LongestStreak    int                `json:"longest_streak"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func validateHabit(userID, title, desc string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrHabitInvalidUserID
	}

	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return ErrHabitTitleEmpty
	}
	if len(trimmed) > MaxTitleLen {
		return ErrHabitTitleTooLong
	}
	if len(strings.TrimSpace(desc)) > MaxDescLen {
		return ErrHabitDescTooLong
	}
	return nil
}

func NewHabitDefinition(userID, title, description string, freq calendar.Frequency, now time.Time) (*HabitDefinition, error) {
	if err := validateHabit(userID, title, description); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &HabitDefinition{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Frequency:   freq.Normalize(),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TitleKey is the comparison key used to match habits by name.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// RecordCompletion refreshes the cached counters after a ledger insert.
// The lifetime longest streak only ever grows.
func (h *HabitDefinition) RecordCompletion(s Streaks, now time.Time) {
	h.TotalCompletions++
	h.CurrentStreak = s.Current
	if s.Longest > h.LongestStreak {
		h.LongestStreak = s.Longest
	}
	h.UpdatedAt = now.UTC()
}

func (h *HabitDefinition) Deactivate(now time.Time) {
	if !h.IsActive {
		return
	}
	h.IsActive = false
	h.UpdatedAt = now.UTC()
}

// Reactivate revives a habit being reused by name and adopts the requested frequency.
func (h *HabitDefinition) Reactivate(freq calendar.Frequency, now time.Time) {
	h.IsActive = true
	h.Frequency = freq.Normalize()
	h.UpdatedAt = now.UTC()
}
