package services

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
)

type ProgressService struct {
	store domain.Store
	read  domain.ReadRepository
	cache domain.ProgressCache
	now   func() time.Time
}

func NewProgressService(store domain.Store, read domain.ReadRepository, cache domain.ProgressCache) *ProgressService {
	if cache == nil {
		cache = domain.NoopProgressCache{}
	}
	return &ProgressService{
		store: store,
		read:  read,
		cache: cache,
		now:   time.Now,
	}
}

func (s *ProgressService) WithClock(now func() time.Time) *ProgressService {
	s.now = now
	return s
}

// ComputeGoalProgress is an advisory read outside any transaction.
func (s *ProgressService) ComputeGoalProgress(ctx context.Context, goalID, userID string) (*domain.Progress, error) {
	if cached, ok := s.cache.Get(ctx, userID, goalID); ok {
		return cached, nil
	}

	goal, err := s.read.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.UserID != userID {
		return nil, domain.ErrGoalNotFound
	}

	instances, err := s.read.ListInstancesByGoals(ctx, []string{goal.ID})
	if err != nil {
		return nil, err
	}

	p := domain.ComputeProgress(goal, instances)
	s.cache.Set(ctx, userID, &p)
	return &p, nil
}

// ComputeGoalsProgress batches several goals into two queries. Goals that do
// not exist or belong to someone else are left out.
func (s *ProgressService) ComputeGoalsProgress(ctx context.Context, goalIDs []string, userID string) ([]domain.Progress, error) {
	goals, err := s.read.ListGoalsByIDs(ctx, userID, goalIDs)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return []domain.Progress{}, nil
	}

	ids := make([]string, 0, len(goals))
	for _, g := range goals {
		ids = append(ids, g.ID)
	}
	instances, err := s.read.ListInstancesByGoals(ctx, ids)
	if err != nil {
		return nil, err
	}

	byGoal := make(map[string][]*domain.HabitInstance, len(goals))
	for _, inst := range instances {
		byGoal[inst.GoalID] = append(byGoal[inst.GoalID], inst)
	}

	out := make([]domain.Progress, 0, len(goals))
	for _, g := range goals {
		p := domain.ComputeProgress(g, byGoal[g.ID])
		s.cache.Set(ctx, userID, &p)
		out = append(out, p)
	}
	return out, nil
}

// UpdateManualProgress writes the manual offset and reports the change.
func (s *ProgressService) UpdateManualProgress(ctx context.Context, goalID, userID string, offset float64) (*domain.ProgressChange, error) {
	return s.mutateGoal(ctx, goalID, userID, func(goal *domain.GoalInstance, now time.Time) error {
		return goal.SetManualOffset(offset, now)
	})
}

func (s *ProgressService) CompleteGoal(ctx context.Context, goalID, userID string) (*domain.ProgressChange, error) {
	return s.mutateGoal(ctx, goalID, userID, func(goal *domain.GoalInstance, now time.Time) error {
		return goal.Complete(now)
	})
}

func (s *ProgressService) mutateGoal(ctx context.Context, goalID, userID string, mutate func(*domain.GoalInstance, time.Time) error) (*domain.ProgressChange, error) {
	var change domain.ProgressChange
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		goal, err := tx.LockGoal(ctx, goalID, userID)
		if err != nil {
			return err
		}
		instances, err := tx.ListInstancesByGoal(ctx, goal.ID)
		if err != nil {
			return err
		}

		before := domain.ComputeProgress(goal, instances)
		if err := mutate(goal, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateGoal(ctx, goal); err != nil {
			return err
		}

		change = domain.NewProgressChange(before, domain.ComputeProgress(goal, instances))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, userID, goalID)
	return &change, nil
}
