package domain

import (
	"sort"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
)

type Streaks struct {
	Current int `json:"current_streak"`
	Longest int `json:"longest_streak"`
}

// ComputeStreaks derives streaks from the ledger alone. Days are local calendar
// days in loc, and several completions on one day count once whatever the
// habit's cadence. A streak that reaches yesterday is still current today.
func ComputeStreaks(completions []*HabitCompletion, loc *time.Location, now time.Time) Streaks {
	if len(completions) == 0 {
		return Streaks{}
	}

	days := make(map[time.Time]bool, len(completions))
	for _, c := range completions {
		days[calendar.LocalDay(c.CompletedAt, loc)] = true
	}

	current := 0
	cursor := calendar.LocalDay(now, loc)
	if !days[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for days[cursor] {
		current++
		cursor = cursor.AddDate(0, 0, -1)
	}

	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Before(sorted[j])
	})

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Equal(sorted[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	return Streaks{Current: current, Longest: longest}
}
