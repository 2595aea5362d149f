package services

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

type CompletionService struct {
	store domain.Store
	read  domain.ReadRepository
	zones *zoneLookup
	cache domain.ProgressCache
	now   func() time.Time
}

func NewCompletionService(store domain.Store, read domain.ReadRepository, users domain.UserRepository, resolver *calendar.Resolver, cache domain.ProgressCache) *CompletionService {
	if cache == nil {
		cache = domain.NoopProgressCache{}
	}
	return &CompletionService{
		store: store,
		read:  read,
		zones: &zoneLookup{users: users, resolver: resolver},
		cache: cache,
		now:   time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *CompletionService) WithClock(now func() time.Time) *CompletionService {
	s.now = now
	return s
}

type LogCompletionInput struct {
	HabitID     string
	UserID      string
	CompletedAt time.Time
	Notes       string
}

type CompletionResult struct {
	Completion    *domain.HabitCompletion `json:"completion"`
	CurrentStreak int                     `json:"current_streak"`
	LongestStreak int                     `json:"longest_streak"`
	Window        calendar.TimeWindow     `json:"window"`
	Goals         []domain.ProgressChange `json:"goals"`
}

// LogCompletion appends one completion to the ledger and propagates it to every
// goal the habit supports, all in one transaction. The habit row lock
// serializes the capacity check against concurrent calls. ErrAlreadyAtCapacity
// means the period is already full and must not be retried.
func (s *CompletionService) LogCompletion(ctx context.Context, input LogCompletionInput) (*CompletionResult, error) {
	now := s.now()
	completion := domain.NewHabitCompletion(input.HabitID, input.UserID, input.CompletedAt, input.Notes, now)
	if err := completion.Validate(now); err != nil {
		return nil, err
	}

	loc := s.zones.location(ctx, completion.UserID)

	var result *CompletionResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		habit, err := tx.LockHabit(ctx, completion.HabitID, completion.UserID)
		if err != nil {
			return err
		}

		window, capacity := calendar.ActiveWindow(habit.Frequency, completion.CompletedAt, loc)
		count, err := tx.CountCompletions(ctx, habit.ID, habit.UserID, window)
		if err != nil {
			return err
		}
		if count >= capacity {
			return domain.ErrAlreadyAtCapacity
		}

		if err := tx.InsertCompletion(ctx, completion); err != nil {
			return err
		}

		history, err := tx.ListCompletions(ctx, habit.ID, habit.UserID)
		if err != nil {
			return err
		}
		streaks := domain.ComputeStreaks(history, loc, now)

		habit.RecordCompletion(streaks, now)
		if err := tx.UpdateHabit(ctx, habit); err != nil {
			return err
		}

		changes, err := propagate(ctx, tx, habit.ID, streaks.Current, now)
		if err != nil {
			return err
		}

		result = &CompletionResult{
			Completion:    completion,
			CurrentStreak: streaks.Current,
			LongestStreak: habit.LongestStreak,
			Window:        window,
			Goals:         changes,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	goalIDs := make([]string, 0, len(result.Goals))
	for _, c := range result.Goals {
		goalIDs = append(goalIDs, c.GoalID)
	}
	s.cache.Invalidate(ctx, completion.UserID, goalIDs...)

	logger.Debug("completion logged",
		"habit_id", completion.HabitID,
		"user_id", completion.UserID,
		"streak", result.CurrentStreak,
		"goals", len(goalIDs),
	)
	return result, nil
}

// propagate bumps every instance of the habit under a non-archived goal and
// reports each goal's progress before and after.
func propagate(ctx context.Context, tx domain.Tx, habitID string, streak int, now time.Time) ([]domain.ProgressChange, error) {
	instances, err := tx.ListActiveInstancesByHabit(ctx, habitID)
	if err != nil {
		return nil, err
	}

	changes := make([]domain.ProgressChange, 0, len(instances))
	for _, inst := range instances {
		goal, err := tx.GetGoal(ctx, inst.GoalID)
		if err != nil {
			return nil, err
		}
		siblings, err := tx.ListInstancesByGoal(ctx, goal.ID)
		if err != nil {
			return nil, err
		}

		before := domain.ComputeProgress(goal, siblings)

		inst.ApplyCompletion(streak, now)
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return nil, err
		}
		for i, sibling := range siblings {
			if sibling.ID == inst.ID {
				siblings[i] = inst
			}
		}

		after := domain.ComputeProgress(goal, siblings)
		changes = append(changes, domain.NewProgressChange(before, after))
	}
	return changes, nil
}

// ComputeStreaks recomputes streaks from the ledger, ignoring cached counters.
func (s *CompletionService) ComputeStreaks(ctx context.Context, habitID, userID string) (*domain.StreakReport, error) {
	habit, err := s.read.GetHabit(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, domain.ErrHabitNotFound
	}

	completions, err := s.read.ListCompletions(ctx, habitID, userID)
	if err != nil {
		return nil, err
	}

	loc := s.zones.location(ctx, userID)
	streaks := domain.ComputeStreaks(completions, loc, s.now())

	lifetime := habit.LongestStreak
	if streaks.Longest > lifetime {
		lifetime = streaks.Longest
	}

	return &domain.StreakReport{
		HabitID:          habit.ID,
		Streaks:          streaks,
		TotalCompletions: len(completions),
		LifetimeLongest:  lifetime,
	}, nil
}
