package domain

import "github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"

type PeriodState string

const (
	PeriodNotYetLogged PeriodState = "not_yet_logged"
	PeriodLogged       PeriodState = "logged"
	PeriodAtCapacity   PeriodState = "at_capacity"
)

// PeriodStatus describes where a habit stands inside its active period.
type PeriodStatus struct {
	HabitID   string              `json:"habit_id"`
	Window    calendar.TimeWindow `json:"window"`
	Cadence   calendar.Cadence    `json:"cadence"`
	Capacity  int                 `json:"capacity"`
	Logged    int                 `json:"logged"`
	Remaining int                 `json:"remaining"`
	State     PeriodState         `json:"state"`
}

func NewPeriodStatus(habitID string, cadence calendar.Cadence, window calendar.TimeWindow, capacity, logged int) PeriodStatus {
	s := PeriodStatus{
		HabitID:  habitID,
		Window:   window,
		Cadence:  cadence,
		Capacity: capacity,
		Logged:   logged,
	}

	switch {
	case logged >= capacity:
		s.State = PeriodAtCapacity
	case logged > 0:
		s.State = PeriodLogged
	default:
		s.State = PeriodNotYetLogged
	}

	if remaining := capacity - logged; remaining > 0 {
		s.Remaining = remaining
	}
	return s
}

type StreakReport struct {
	HabitID string `json:"habit_id"`
	Streaks
	TotalCompletions int `json:"total_completions"`
	// LifetimeLongest is the cached monotonic maximum on the habit.
	LifetimeLongest int `json:"lifetime_longest_streak"`
}
