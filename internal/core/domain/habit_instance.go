package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
)

// DefaultHorizonDays is used when a goal has no target date.
const DefaultHorizonDays = 90

type FrequencySettings struct {
	calendar.Frequency
	Periods int `json:"periods"`
}

// HabitInstance binds a HabitDefinition to one goal.
type HabitInstance struct {
	ID                 string            `json:"id"`
	HabitID            string            `json:"habit_id"`
	GoalID             string            `json:"goal_id"`
	UserID             string            `json:"user_id"`
	TargetCount        int               `json:"target_count"`
	CurrentValue       int               `json:"current_value"`
	GoalSpecificStreak int               `json:"goal_specific_streak"`
	Frequency          FrequencySettings `json:"frequency"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// HorizonDays counts local calendar days from today through the target date,
// inclusive. Goals without a target date, or already past it, still get at
// least one day.
func HorizonDays(now time.Time, targetDate *time.Time, loc *time.Location) int {
	if targetDate == nil {
		return DefaultHorizonDays
	}
	today := calendar.LocalDay(now, loc)
	last := calendar.LocalDay(*targetDate, loc)

	days := int(last.Sub(today).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

func NewHabitInstance(habit *HabitDefinition, goal *GoalInstance, freq calendar.Frequency, horizonDays int, now time.Time) *HabitInstance {
	freq = freq.Normalize()
	periods := calendar.PeriodsIn(freq.Cadence, horizonDays)
	now = now.UTC()

	return &HabitInstance{
		ID:          uuid.NewString(),
		HabitID:     habit.ID,
		GoalID:      goal.ID,
		UserID:      goal.UserID,
		TargetCount: periods * freq.PerPeriodTarget,
		Frequency: FrequencySettings{
			Frequency: freq,
			Periods:   periods,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (i *HabitInstance) ApplyCompletion(currentStreak int, now time.Time) {
	i.CurrentValue++
	i.GoalSpecificStreak = currentStreak
	i.UpdatedAt = now.UTC()
}

// Fraction is this habit's completion on a 0..100 scale.
func (i *HabitInstance) Fraction() float64 {
	if i.TargetCount <= 0 {
		return 0
	}
	ratio := float64(i.CurrentValue) / float64(i.TargetCount)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio * 100
}
