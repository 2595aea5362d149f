package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

type RebalanceService struct {
	store domain.Store
	zones *zoneLookup
	cache domain.ProgressCache
	now   func() time.Time
}

func NewRebalanceService(store domain.Store, users domain.UserRepository, resolver *calendar.Resolver, cache domain.ProgressCache) *RebalanceService {
	if cache == nil {
		cache = domain.NoopProgressCache{}
	}
	return &RebalanceService{
		store: store,
		zones: &zoneLookup{users: users, resolver: resolver},
		cache: cache,
		now:   time.Now,
	}
}

func (s *RebalanceService) WithClock(now func() time.Time) *RebalanceService {
	s.now = now
	return s
}

type NewHabitInput struct {
	Title           string
	Description     string
	Cadence         string
	PerPeriodTarget int
}

type RebalanceInput struct {
	GoalID         string
	UserID         string
	RemoveHabitIDs []string
	Add            []NewHabitInput
}

type AddedHabit struct {
	HabitDefinitionID string `json:"habit_definition_id"`
	HabitInstanceID   string `json:"habit_instance_id"`
	Title             string `json:"title"`
}

type RebalanceResult struct {
	Removed []string        `json:"removed"`
	Added   []AddedHabit    `json:"added"`
	Before  domain.Progress `json:"before"`
	After   domain.Progress `json:"after"`
}

type habitPlan struct {
	title       string
	description string
	freq        calendar.Frequency
}

// SwapHabits detaches and attaches habits on a goal in one transaction and
// rewrites the manual offset so the combined percentage does not move. The
// whole transaction is retried once on a serialization conflict.
func (s *RebalanceService) SwapHabits(ctx context.Context, input RebalanceInput) (*RebalanceResult, error) {
	plans := make([]habitPlan, 0, len(input.Add))
	for _, a := range input.Add {
		cadence, err := calendar.ParseCadence(a.Cadence)
		if err != nil {
			return nil, err
		}
		title := strings.TrimSpace(a.Title)
		if title == "" {
			return nil, domain.ErrHabitTitleEmpty
		}
		plans = append(plans, habitPlan{
			title:       title,
			description: a.Description,
			freq:        calendar.Frequency{Cadence: cadence, PerPeriodTarget: a.PerPeriodTarget}.Normalize(),
		})
	}

	loc := s.zones.location(ctx, input.UserID)

	var result *RebalanceResult
	attempt := func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			r, err := s.swap(ctx, tx, input, plans, loc)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	}

	err := attempt()
	if errors.Is(err, domain.ErrTxConflict) {
		logger.Warn("rebalance conflicted, retrying", "goal_id", input.GoalID, "err", err)
		err = attempt()
	}
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, input.UserID, input.GoalID)
	logger.Info("goal rebalanced",
		"goal_id", input.GoalID,
		"removed", len(result.Removed),
		"added", len(result.Added),
		"percent", result.After.Percent,
		"manual_offset", result.After.ManualOffset,
	)
	return result, nil
}

func (s *RebalanceService) swap(ctx context.Context, tx domain.Tx, input RebalanceInput, plans []habitPlan, loc *time.Location) (*RebalanceResult, error) {
	now := s.now()

	goal, err := tx.LockGoal(ctx, input.GoalID, input.UserID)
	if err != nil {
		return nil, err
	}
	if goal.IsArchived() {
		return nil, domain.ErrGoalArchived
	}

	linked, err := tx.ListInstancesByGoal(ctx, goal.ID)
	if err != nil {
		return nil, err
	}

	// Completions take the habit lock first, so holding every linked habit
	// freezes the goal's instances for the rest of the transaction.
	locked := make(map[string]*domain.HabitDefinition)
	for _, id := range habitsToLock(linked, input.RemoveHabitIDs) {
		habit, err := tx.LockHabit(ctx, id, goal.UserID)
		if err != nil {
			return nil, err
		}
		locked[id] = habit
	}

	linked, err = tx.ListInstancesByGoal(ctx, goal.ID)
	if err != nil {
		return nil, err
	}
	before := domain.ComputeProgress(goal, linked)

	result := &RebalanceResult{Removed: []string{}, Added: []AddedHabit{}, Before: before}

	seen := make(map[string]bool, len(input.RemoveHabitIDs))
	for _, id := range input.RemoveHabitIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := tx.DeleteInstance(ctx, goal.ID, id); err != nil {
			return nil, err
		}
		remaining, err := tx.CountInstancesByHabit(ctx, id)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			habit := locked[id]
			habit.Deactivate(now)
			if err := tx.UpdateHabit(ctx, habit); err != nil {
				return nil, err
			}
		}
		result.Removed = append(result.Removed, id)
	}

	current, err := tx.ListInstancesByGoal(ctx, goal.ID)
	if err != nil {
		return nil, err
	}
	byHabit := make(map[string]*domain.HabitInstance, len(current))
	for _, inst := range current {
		byHabit[inst.HabitID] = inst
	}

	horizon := domain.HorizonDays(now, goal.TargetDate, loc)
	for _, plan := range plans {
		habit, err := s.reuseOrCreate(ctx, tx, goal.UserID, plan, now)
		if err != nil {
			return nil, err
		}

		inst, ok := byHabit[habit.ID]
		if !ok {
			inst = domain.NewHabitInstance(habit, goal, plan.freq, horizon, now)
			if err := tx.CreateInstance(ctx, inst); err != nil {
				return nil, err
			}
			byHabit[habit.ID] = inst
		}

		result.Added = append(result.Added, AddedHabit{
			HabitDefinitionID: habit.ID,
			HabitInstanceID:   inst.ID,
			Title:             habit.Title,
		})
	}

	after, err := tx.ListInstancesByGoal(ctx, goal.ID)
	if err != nil {
		return nil, err
	}

	offset := domain.ContinuityOffset(before.Percent, domain.HabitBasedProgress(after))
	if err := goal.SetManualOffset(offset, now); err != nil {
		return nil, err
	}
	if err := tx.UpdateGoal(ctx, goal); err != nil {
		return nil, err
	}

	result.After = domain.ComputeProgress(goal, after)
	return result, nil
}

func (s *RebalanceService) reuseOrCreate(ctx context.Context, tx domain.Tx, userID string, plan habitPlan, now time.Time) (*domain.HabitDefinition, error) {
	habit, err := tx.FindHabitByTitle(ctx, userID, plan.title)
	switch {
	case err == nil:
		if !habit.IsActive || habit.Frequency != plan.freq {
			habit.Reactivate(plan.freq, now)
			if err := tx.UpdateHabit(ctx, habit); err != nil {
				return nil, err
			}
		}
		return habit, nil
	case errors.Is(err, domain.ErrHabitNotFound):
		habit, err = domain.NewHabitDefinition(userID, plan.title, plan.description, plan.freq, now)
		if err != nil {
			return nil, err
		}
		if err := tx.CreateHabit(ctx, habit); err != nil {
			return nil, err
		}
		return habit, nil
	default:
		return nil, err
	}
}

// habitsToLock returns the linked and to-be-removed habit ids, sorted.
func habitsToLock(linked []*domain.HabitInstance, remove []string) []string {
	set := make(map[string]bool, len(linked)+len(remove))
	for _, inst := range linked {
		set[inst.HabitID] = true
	}
	for _, id := range remove {
		set[id] = true
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
