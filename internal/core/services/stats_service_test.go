package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/services"
)

type MockReadRepo struct {
	mock.Mock
}

func (m *MockReadRepo) GetHabit(ctx context.Context, habitID string) (*domain.HabitDefinition, error) {
	args := m.Called(ctx, habitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HabitDefinition), args.Error(1)
}

func (m *MockReadRepo) GetGoal(ctx context.Context, goalID string) (*domain.GoalInstance, error) {
	args := m.Called(ctx, goalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GoalInstance), args.Error(1)
}

func (m *MockReadRepo) ListGoalsByIDs(ctx context.Context, userID string, goalIDs []string) ([]*domain.GoalInstance, error) {
	args := m.Called(ctx, userID, goalIDs)
	return args.Get(0).([]*domain.GoalInstance), args.Error(1)
}

func (m *MockReadRepo) ListInstancesByGoals(ctx context.Context, goalIDs []string) ([]*domain.HabitInstance, error) {
	args := m.Called(ctx, goalIDs)
	return args.Get(0).([]*domain.HabitInstance), args.Error(1)
}

func (m *MockReadRepo) ListCompletions(ctx context.Context, habitID, userID string) ([]*domain.HabitCompletion, error) {
	args := m.Called(ctx, habitID, userID)
	return args.Get(0).([]*domain.HabitCompletion), args.Error(1)
}

func (m *MockReadRepo) CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error) {
	args := m.Called(ctx, habitID, userID, window)
	return args.Int(0), args.Error(1)
}

func TestStatsService_PeriodStatus(t *testing.T) {
	ctx := context.Background()
	weekly := &domain.HabitDefinition{
		ID:        "h1",
		UserID:    "u1",
		Frequency: calendar.Frequency{Cadence: calendar.CadenceWeekly, PerPeriodTarget: 3},
	}
	week := calendar.PeriodWindow(testNow, time.UTC, calendar.CadenceWeekly)

	tests := []struct {
		name          string
		logged        int
		wantState     domain.PeriodState
		wantRemaining int
	}{
		{"Fresh week", 0, domain.PeriodNotYetLogged, 3},
		{"Partially done", 2, domain.PeriodLogged, 1},
		{"Full", 3, domain.PeriodAtCapacity, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read := new(MockReadRepo)
			users := new(MockUserRepo)
			read.On("GetHabit", ctx, "h1").Return(weekly, nil)
			read.On("CountCompletions", ctx, "h1", "u1", week).Return(tt.logged, nil)
			users.On("GetByID", ctx, "u1").Return(&domain.User{ID: "u1", Timezone: "UTC"}, nil)

			svc := services.NewStatsService(read, users, calendar.NewResolver("UTC")).WithClock(fixedClock(testNow))
			status, err := svc.PeriodStatus(ctx, "h1", "u1")

			require.NoError(t, err)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantRemaining, status.Remaining)
			assert.Equal(t, 3, status.Capacity)
			assert.Equal(t, time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC), status.Window.Start)
			read.AssertExpectations(t)
		})
	}

	t.Run("Foreign habit", func(t *testing.T) {
		read := new(MockReadRepo)
		read.On("GetHabit", ctx, "h1").Return(weekly, nil)

		svc := services.NewStatsService(read, new(MockUserRepo), calendar.NewResolver("UTC"))
		_, err := svc.PeriodStatus(ctx, "h1", "intruder")
		assert.ErrorIs(t, err, domain.ErrHabitNotFound)
	})

	t.Run("Repository error", func(t *testing.T) {
		read := new(MockReadRepo)
		read.On("GetHabit", ctx, "h1").Return(nil, errors.New("db down"))

		svc := services.NewStatsService(read, new(MockUserRepo), calendar.NewResolver("UTC"))
		_, err := svc.PeriodStatus(ctx, "h1", "u1")
		assert.EqualError(t, err, "db down")
	})
}

func TestStatsService_PeriodStatusInUserZone(t *testing.T) {
	f := newFixture(t, "America/Los_Angeles", calendar.DefaultFrequency())

	// 23:30 on Mar 19 in Los Angeles (PDT).
	at := time.Date(2024, 3, 20, 6, 30, 0, 0, time.UTC)
	_, err := f.logAt(t, at)
	require.NoError(t, err)

	svc := services.NewStatsService(f.store, f.store, calendar.NewResolver("UTC")).WithClock(fixedClock(at.Add(time.Minute)))
	status, err := svc.PeriodStatus(context.Background(), f.habit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PeriodAtCapacity, status.State)
	assert.Equal(t, time.Date(2024, 3, 19, 7, 0, 0, 0, time.UTC), status.Window.Start)

	// Two hours later it is a new local day.
	svc.WithClock(fixedClock(at.Add(2 * time.Hour)))
	status, err = svc.PeriodStatus(context.Background(), f.habit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PeriodNotYetLogged, status.State)
}
