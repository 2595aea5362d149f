package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/services"
)

// Wednesday afternoon, UTC.
var testNow = time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type MockProgressCache struct {
	mock.Mock
}

func (m *MockProgressCache) Get(ctx context.Context, userID, goalID string) (*domain.Progress, bool) {
	args := m.Called(ctx, userID, goalID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.Progress), args.Bool(1)
}

func (m *MockProgressCache) Set(ctx context.Context, userID string, p *domain.Progress) {
	m.Called(ctx, userID, p)
}

func (m *MockProgressCache) Invalidate(ctx context.Context, userID string, goalIDs ...string) {
	m.Called(ctx, userID, goalIDs)
}

type fixture struct {
	store *repository.MemoryStore
	habit *domain.HabitDefinition
	goal  *domain.GoalInstance
}

func newFixture(t *testing.T, zone string, freq calendar.Frequency) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddUser(domain.User{ID: "u1", Timezone: zone})

	habit, err := domain.NewHabitDefinition("u1", "Run", "", freq, testNow.AddDate(0, -1, 0))
	require.NoError(t, err)
	store.AddHabit(habit)

	goal := &domain.GoalInstance{ID: "g1", UserID: "u1", Title: "Marathon", TargetValue: 100, Status: domain.GoalStatusActive}
	store.AddGoal(goal)

	inst := domain.NewHabitInstance(habit, goal, freq, 10, testNow.AddDate(0, -1, 0))
	inst.TargetCount = 10
	store.AddInstance(inst)

	return &fixture{store: store, habit: habit, goal: goal}
}

func (f *fixture) completionService(now time.Time) *services.CompletionService {
	return services.NewCompletionService(f.store, f.store, f.store, calendar.NewResolver("UTC"), nil).
		WithClock(fixedClock(now))
}

func (f *fixture) logAt(t *testing.T, at time.Time) (*services.CompletionResult, error) {
	t.Helper()
	return f.completionService(at).LogCompletion(context.Background(), services.LogCompletionInput{
		HabitID:     f.habit.ID,
		UserID:      "u1",
		CompletedAt: at,
	})
}

func TestCompletionService_LogCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: appends, refreshes counters and propagates", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())

		res, err := f.logAt(t, testNow)
		require.NoError(t, err)

		assert.Equal(t, f.habit.ID, res.Completion.HabitID)
		assert.Equal(t, 1, res.CurrentStreak)
		assert.Equal(t, 1, res.LongestStreak)
		require.Len(t, res.Goals, 1)
		assert.Equal(t, "g1", res.Goals[0].GoalID)
		assert.InDelta(t, 0, res.Goals[0].Before.Percent, 0.0001)
		assert.InDelta(t, 10, res.Goals[0].After.Percent, 0.0001)

		habit, err := f.store.GetHabit(ctx, f.habit.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, habit.TotalCompletions)
		assert.Equal(t, 1, habit.CurrentStreak)

		instances, err := f.store.ListInstancesByGoals(ctx, []string{"g1"})
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, 1, instances[0].CurrentValue)
		assert.Equal(t, 1, instances[0].GoalSpecificStreak)
	})

	t.Run("Conflict: second completion in a daily period", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())

		_, err := f.logAt(t, testNow)
		require.NoError(t, err)

		_, err = f.logAt(t, testNow.Add(time.Hour))
		assert.ErrorIs(t, err, domain.ErrAlreadyAtCapacity)

		completions, err := f.store.ListCompletions(ctx, f.habit.ID, "u1")
		require.NoError(t, err)
		assert.Len(t, completions, 1)

		habit, err := f.store.GetHabit(ctx, f.habit.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, habit.TotalCompletions, "rejected call must not touch counters")
	})

	t.Run("Error: habit owned by someone else", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())

		_, err := f.completionService(testNow).LogCompletion(ctx, services.LogCompletionInput{
			HabitID: f.habit.ID,
			UserID:  "intruder",
		})
		assert.ErrorIs(t, err, domain.ErrHabitNotFound)
	})

	t.Run("Error: completion in the future", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())

		_, err := f.completionService(testNow).LogCompletion(ctx, services.LogCompletionInput{
			HabitID:     f.habit.ID,
			UserID:      "u1",
			CompletedAt: testNow.Add(time.Hour),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidCompletion)
	})

	t.Run("Archived goals are not touched, other goals all are", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())

		second := &domain.GoalInstance{ID: "g2", UserID: "u1", Status: domain.GoalStatusActive}
		archived := &domain.GoalInstance{ID: "g3", UserID: "u1", Status: domain.GoalStatusArchived}
		f.store.AddGoal(second)
		f.store.AddGoal(archived)
		f.store.AddInstance(domain.NewHabitInstance(f.habit, second, f.habit.Frequency, 20, testNow))
		f.store.AddInstance(domain.NewHabitInstance(f.habit, archived, f.habit.Frequency, 20, testNow))

		res, err := f.logAt(t, testNow)
		require.NoError(t, err)
		require.Len(t, res.Goals, 2)
		assert.Equal(t, "g1", res.Goals[0].GoalID)
		assert.Equal(t, "g2", res.Goals[1].GoalID)
		assert.InDelta(t, 5, res.Goals[1].After.Percent, 0.0001)

		frozen, err := f.store.ListInstancesByGoals(ctx, []string{"g3"})
		require.NoError(t, err)
		require.Len(t, frozen, 1)
		assert.Equal(t, 0, frozen[0].CurrentValue)
	})

	t.Run("Milestones are reported per goal", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())
		goal, err := f.store.GetGoal(ctx, "g1")
		require.NoError(t, err)
		goal.ManualOffset = 20
		f.store.AddGoal(goal)

		res, err := f.logAt(t, testNow)
		require.NoError(t, err)
		assert.Equal(t, []int{25}, res.Goals[0].Milestones)
	})

	t.Run("Cache is invalidated for every affected goal", func(t *testing.T) {
		f := newFixture(t, "UTC", calendar.DefaultFrequency())
		cache := new(MockProgressCache)
		cache.On("Invalidate", mock.Anything, "u1", []string{"g1"}).Return().Once()

		svc := services.NewCompletionService(f.store, f.store, f.store, calendar.NewResolver("UTC"), cache).
			WithClock(fixedClock(testNow))
		_, err := svc.LogCompletion(ctx, services.LogCompletionInput{HabitID: f.habit.ID, UserID: "u1"})
		require.NoError(t, err)

		cache.AssertExpectations(t)
	})
}

func TestCompletionService_ConcurrentCallsRespectCapacity(t *testing.T) {
	f := newFixture(t, "UTC", calendar.DefaultFrequency())
	svc := f.completionService(testNow)

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.LogCompletion(context.Background(), services.LogCompletionInput{HabitID: f.habit.ID, UserID: "u1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyAtCapacity):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)

	instances, err := f.store.ListInstancesByGoals(context.Background(), []string{"g1"})
	require.NoError(t, err)
	assert.Equal(t, 1, instances[0].CurrentValue)
}

func TestCompletionService_StreakContinuity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "UTC", calendar.DefaultFrequency())
	for d := 3; d >= 1; d-- {
		f.store.AddCompletion(domain.NewHabitCompletion(f.habit.ID, "u1", testNow.AddDate(0, 0, -d), "", testNow.AddDate(0, 0, -d)))
	}

	report, err := f.completionService(testNow).ComputeStreaks(ctx, f.habit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Current, "no completion today yet keeps yesterday's streak")
	assert.Equal(t, 3, report.Longest)
	assert.Equal(t, 3, report.TotalCompletions)

	res, err := f.logAt(t, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, res.CurrentStreak)
	assert.Equal(t, 4, res.LongestStreak)

	_, err = f.completionService(testNow).ComputeStreaks(ctx, f.habit.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrHabitNotFound)
}

func TestCompletionService_StreakBreak(t *testing.T) {
	f := newFixture(t, "UTC", calendar.DefaultFrequency())
	f.store.AddCompletion(domain.NewHabitCompletion(f.habit.ID, "u1", testNow.AddDate(0, 0, -5), "", testNow))
	f.store.AddCompletion(domain.NewHabitCompletion(f.habit.ID, "u1", testNow.AddDate(0, 0, -3), "", testNow))

	report, err := f.completionService(testNow).ComputeStreaks(context.Background(), f.habit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Current)
	assert.Equal(t, 1, report.Longest)
}

func TestCompletionService_WeeklyTarget(t *testing.T) {
	f := newFixture(t, "UTC", calendar.Frequency{Cadence: calendar.CadenceWeekly, PerPeriodTarget: 2})

	monday := time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)
	saturday := monday.AddDate(0, 0, 5)
	nextMonday := monday.AddDate(0, 0, 7)

	_, err := f.logAt(t, monday)
	require.NoError(t, err)

	_, err = f.logAt(t, wednesday)
	require.NoError(t, err)

	_, err = f.logAt(t, saturday)
	assert.ErrorIs(t, err, domain.ErrAlreadyAtCapacity)

	res, err := f.logAt(t, nextMonday)
	require.NoError(t, err)
	assert.Equal(t, nextMonday.Truncate(24*time.Hour), res.Window.Start)
}

func TestCompletionService_UsesLocalDay(t *testing.T) {
	f := newFixture(t, "America/Los_Angeles", calendar.DefaultFrequency())

	// 23:30 on Jan 15 in Los Angeles.
	late := time.Date(2024, 1, 16, 7, 30, 0, 0, time.UTC)
	res, err := f.logAt(t, late)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), res.Window.Start)

	// 00:30 on Jan 16 locally; the same UTC day, but a new local day.
	res, err = f.logAt(t, late.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC), res.Window.Start)
	assert.Equal(t, 2, res.CurrentStreak)
}

func TestCompletionService_UnknownUserFallsBackToDefaultZone(t *testing.T) {
	f := newFixture(t, "UTC", calendar.DefaultFrequency())
	users := new(MockUserRepo)
	users.On("GetByID", mock.Anything, "u1").Return(nil, errors.New("connection refused"))

	svc := services.NewCompletionService(f.store, f.store, users, calendar.NewResolver("UTC"), nil).
		WithClock(fixedClock(testNow))
	res, err := svc.LogCompletion(context.Background(), services.LogCompletionInput{HabitID: f.habit.ID, UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), res.Window.Start)
	users.AssertExpectations(t)
}

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// conflictingStore fails the first failures calls with ErrTxConflict.
type conflictingStore struct {
	inner    domain.Store
	failures int
	calls    int
}

func (s *conflictingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.calls++
	if s.calls <= s.failures {
		return domain.ErrTxConflict
	}
	return s.inner.WithinTx(ctx, fn)
}

func TestCompletionService_DoesNotRetryConflicts(t *testing.T) {
	f := newFixture(t, "UTC", calendar.DefaultFrequency())
	store := &conflictingStore{inner: f.store, failures: 1}

	svc := services.NewCompletionService(store, f.store, f.store, calendar.NewResolver("UTC"), nil).
		WithClock(fixedClock(testNow))
	_, err := svc.LogCompletion(context.Background(), services.LogCompletionInput{HabitID: f.habit.ID, UserID: "u1"})

	assert.ErrorIs(t, err, domain.ErrTxConflict)
	assert.Equal(t, 1, store.calls)
}
