package services

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
)

type StatsService struct {
	read  domain.ReadRepository
	zones *zoneLookup
	now   func() time.Time
}

func NewStatsService(read domain.ReadRepository, users domain.UserRepository, resolver *calendar.Resolver) *StatsService {
	return &StatsService{
		read:  read,
		zones: &zoneLookup{users: users, resolver: resolver},
		now:   time.Now,
	}
}

func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// PeriodStatus reports how far the habit is into its current period.
func (s *StatsService) PeriodStatus(ctx context.Context, habitID, userID string) (*domain.PeriodStatus, error) {
	habit, err := s.read.GetHabit(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, domain.ErrHabitNotFound
	}

	loc := s.zones.location(ctx, userID)
	window, capacity := calendar.ActiveWindow(habit.Frequency, s.now(), loc)

	logged, err := s.read.CountCompletions(ctx, habit.ID, userID, window)
	if err != nil {
		return nil, err
	}

	status := domain.NewPeriodStatus(habit.ID, habit.Frequency.Cadence, window, capacity, logged)
	return &status, nil
}
