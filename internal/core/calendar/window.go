package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

const DefaultZone = "UTC"

// TimeWindow is an inclusive [Start, End] range of UTC instants covering one
// local calendar day, week or month. End is the last millisecond of the period.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EndExclusive is the first instant of the following period.
func (w TimeWindow) EndExclusive() time.Time {
	return w.End.Add(time.Millisecond)
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.EndExclusive())
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339Nano))
}

// Resolver turns UTC instants plus an IANA zone into local calendar windows.
// Unknown or empty zones fall back to the resolver's default zone.
type Resolver struct {
	fallback *time.Location
	zones    sync.Map
}

func NewResolver(defaultZone string) *Resolver {
	fallback := time.UTC
	if name := strings.TrimSpace(defaultZone); name != "" && name != DefaultZone {
		loc, err := time.LoadLocation(name)
		if err != nil {
			logger.Warn("invalid default timezone, using UTC", "zone", name, "err", err)
		} else {
			fallback = loc
		}
	}
	return &Resolver{fallback: fallback}
}

// Location never fails: an invalid zone logs a warning and yields the fallback.
func (r *Resolver) Location(zone string) *time.Location {
	name := strings.TrimSpace(zone)
	if name == "" {
		return r.fallback
	}
	if cached, ok := r.zones.Load(name); ok {
		return cached.(*time.Location)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid timezone, falling back", "zone", name, "fallback", r.fallback.String(), "err", err)
		return r.fallback
	}

	r.zones.Store(name, loc)
	return loc
}

func (r *Resolver) ResolveDay(now time.Time, zone string) TimeWindow {
	return DayWindow(now, r.Location(zone))
}

func (r *Resolver) ResolvePeriod(now time.Time, zone string, cadence Cadence) TimeWindow {
	return PeriodWindow(now, r.Location(zone), cadence)
}

// DayWindow returns the local calendar day containing now. Local midnight is
// built from the zone's wall-clock fields so the offset used is the one in
// effect at that local instant, which keeps DST days at 23 or 25 hours.
func DayWindow(now time.Time, loc *time.Location) TimeWindow {
	y, m, d := now.In(loc).Date()
	return span(time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d+1, 0, 0, 0, 0, loc))
}

// PeriodWindow returns the local period containing now. Weeks start on Monday.
func PeriodWindow(now time.Time, loc *time.Location, cadence Cadence) TimeWindow {
	local := now.In(loc)
	y, m, d := local.Date()

	switch cadence {
	case CadenceWeekly:
		back := (int(local.Weekday()) + 6) % 7
		return span(time.Date(y, m, d-back, 0, 0, 0, 0, loc), time.Date(y, m, d-back+7, 0, 0, 0, 0, loc))
	case CadenceMonthly:
		return span(time.Date(y, m, 1, 0, 0, 0, 0, loc), time.Date(y, m+1, 1, 0, 0, 0, 0, loc))
	default:
		return DayWindow(now, loc)
	}
}

func span(start, next time.Time) TimeWindow {
	return TimeWindow{
		Start: start.UTC(),
		End:   next.Add(-time.Millisecond).UTC(),
	}
}

// LocalDay maps an instant to its local calendar date, encoded as midnight UTC
// so that day arithmetic is free of DST offsets.
func LocalDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
