package repository

import (
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
)

const (
	habitColumns = `id, user_id, title, description, cadence, per_period_target, is_active,
		total_completions, current_streak, longest_streak, created_at, updated_at`

	goalColumns = `id, user_id, title, target_value, manual_offset, status,
		target_date, completed_at, created_at, updated_at`

	instanceColumns = `id, habit_id, goal_id, user_id, target_count, current_value,
		goal_specific_streak, cadence, per_period_target, periods, created_at, updated_at`

	completionColumns = `id, habit_id, user_id, completed_at, notes, created_at`
)

// Row types mirror the tables. Enumerations are plain strings here and are
// converted on the way into the domain.

type habitRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	Cadence          string    `db:"cadence"`
	PerPeriodTarget  int       `db:"per_period_target"`
	IsActive         bool      `db:"is_active"`
	TotalCompletions int       `db:"total_completions"`
	CurrentStreak    int       `db:"current_streak"`
	LongestStreak    int       `db:"longest_streak"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *habitRow) targets() []any {
	return []any{
		&r.ID, &r.UserID, &r.Title, &r.Description, &r.Cadence, &r.PerPeriodTarget, &r.IsActive,
		&r.TotalCompletions, &r.CurrentStreak, &r.LongestStreak, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r *habitRow) toDomain() *domain.HabitDefinition {
	return &domain.HabitDefinition{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Frequency: calendar.Frequency{
			Cadence:         calendar.Cadence(r.Cadence),
			PerPeriodTarget: r.PerPeriodTarget,
		}.Normalize(),
		IsActive:         r.IsActive,
		TotalCompletions: r.TotalCompletions,
		CurrentStreak:    r.CurrentStreak,
		LongestStreak:    r.LongestStreak,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type goalRow struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	Title        string     `db:"title"`
	TargetValue  int        `db:"target_value"`
	ManualOffset float64    `db:"manual_offset"`
	Status       string     `db:"status"`
	TargetDate   *time.Time `db:"target_date"`
	CompletedAt  *time.Time `db:"completed_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r *goalRow) targets() []any {
	return []any{
		&r.ID, &r.UserID, &r.Title, &r.TargetValue, &r.ManualOffset, &r.Status,
		&r.TargetDate, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r *goalRow) toDomain() *domain.GoalInstance {
	return &domain.GoalInstance{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		TargetValue:  r.TargetValue,
		ManualOffset: r.ManualOffset,
		Status:       domain.GoalStatus(r.Status),
		TargetDate:   r.TargetDate,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type instanceRow struct {
	ID                 string    `db:"id"`
	HabitID            string    `db:"habit_id"`
	GoalID             string    `db:"goal_id"`
	UserID             string    `db:"user_id"`
	TargetCount        int       `db:"target_count"`
	CurrentValue       int       `db:"current_value"`
	GoalSpecificStreak int       `db:"goal_specific_streak"`
	Cadence            string    `db:"cadence"`
	PerPeriodTarget    int       `db:"per_period_target"`
	Periods            int       `db:"periods"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r *instanceRow) targets() []any {
	return []any{
		&r.ID, &r.HabitID, &r.GoalID, &r.UserID, &r.TargetCount, &r.CurrentValue,
		&r.GoalSpecificStreak, &r.Cadence, &r.PerPeriodTarget, &r.Periods, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r *instanceRow) toDomain() *domain.HabitInstance {
	return &domain.HabitInstance{
		ID:                 r.ID,
		HabitID:            r.HabitID,
		GoalID:             r.GoalID,
		UserID:             r.UserID,
		TargetCount:        r.TargetCount,
		CurrentValue:       r.CurrentValue,
		GoalSpecificStreak: r.GoalSpecificStreak,
		Frequency: domain.FrequencySettings{
			Frequency: calendar.Frequency{
				Cadence:         calendar.Cadence(r.Cadence),
				PerPeriodTarget: r.PerPeriodTarget,
			}.Normalize(),
			Periods: r.Periods,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type completionRow struct {
	ID          string    `db:"id"`
	HabitID     string    `db:"habit_id"`
	UserID      string    `db:"user_id"`
	CompletedAt time.Time `db:"completed_at"`
	Notes       string    `db:"notes"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *completionRow) targets() []any {
	return []any{&r.ID, &r.HabitID, &r.UserID, &r.CompletedAt, &r.Notes, &r.CreatedAt}
}

func (r *completionRow) toDomain() *domain.HabitCompletion {
	return &domain.HabitCompletion{
		ID:          r.ID,
		HabitID:     r.HabitID,
		UserID:      r.UserID,
		CompletedAt: r.CompletedAt.UTC(),
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
	}
}

type userRow struct {
	ID        string    `db:"id"`
	Timezone  string    `db:"timezone"`
	CreatedAt time.Time `db:"created_at"`
}
