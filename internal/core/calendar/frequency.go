package calendar

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidCadence = errors.New("invalid cadence (must be daily, weekly, or monthly)")

type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CadenceDaily, nil
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return c, nil
	default:
		return "", ErrInvalidCadence
	}
}

// Frequency is how many completions a habit expects per calendar period.
type Frequency struct {
	Cadence         Cadence `json:"cadence"`
	PerPeriodTarget int     `json:"per_period_target"`
}

func DefaultFrequency() Frequency {
	return Frequency{Cadence: CadenceDaily, PerPeriodTarget: 1}
}

// Normalize fills in the daily/1 default for missing or unknown settings.
func (f Frequency) Normalize() Frequency {
	switch f.Cadence {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
	default:
		f.Cadence = CadenceDaily
	}
	if f.PerPeriodTarget < 1 {
		f.PerPeriodTarget = 1
	}
	return f
}

// ActiveWindow returns the period containing now and how many completions it
// accepts before the habit counts as over-logged.
func ActiveWindow(f Frequency, now time.Time, loc *time.Location) (TimeWindow, int) {
	f = f.Normalize()
	return PeriodWindow(now, loc, f.Cadence), f.PerPeriodTarget
}

func (r *Resolver) ActiveWindow(f Frequency, now time.Time, zone string) (TimeWindow, int) {
	return ActiveWindow(f, now, r.Location(zone))
}

// PeriodsIn is the number of cadence periods needed to cover a horizon of days.
func PeriodsIn(cadence Cadence, days int) int {
	if days < 1 {
		days = 1
	}
	switch cadence {
	case CadenceWeekly:
		return (days + 6) / 7
	case CadenceMonthly:
		return (days + 29) / 30
	default:
		return days
	}
}
