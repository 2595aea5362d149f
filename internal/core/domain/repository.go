package domain

import (
	"context"
	"errors"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
)

var (
	ErrHabitNotFound = errors.New("habit not found")
	ErrGoalNotFound  = errors.New("goal not found")

	// ErrTxConflict marks a serialization failure or deadlock; the whole
	// transaction may be retried.
	ErrTxConflict = errors.New("transaction conflict")
)

// Store runs units of work against the relational store. fn's changes are
// committed only if it returns nil; any error or a cancelled ctx rolls back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// LockHabit loads a habit owned by userID and holds a row lock on it until
	// the transaction ends. This serializes completions of the same habit.
	LockHabit(ctx context.Context, habitID, userID string) (*HabitDefinition, error)

	// FindHabitByTitle matches titles case-insensitively, active or not.
	FindHabitByTitle(ctx context.Context, userID, title string) (*HabitDefinition, error)

	CreateHabit(ctx context.Context, habit *HabitDefinition) error

	// UpdateHabit persists flags and cached counters.
	UpdateHabit(ctx context.Context, habit *HabitDefinition) error

	// CountCompletions counts completions with Start <= completed_at < EndExclusive.
	CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error)

	// InsertCompletion appends to the ledger. There is no update or delete.
	InsertCompletion(ctx context.Context, completion *HabitCompletion) error

	ListCompletions(ctx context.Context, habitID, userID string) ([]*HabitCompletion, error)

	// ListActiveInstancesByHabit returns every instance of the habit whose goal
	// is not archived, locked and ordered by goal id.
	ListActiveInstancesByHabit(ctx context.Context, habitID string) ([]*HabitInstance, error)

	// ListInstancesByGoal does not lock. Callers that need a stable view lock
	// the goal's habits first.
	ListInstancesByGoal(ctx context.Context, goalID string) ([]*HabitInstance, error)

	CountInstancesByHabit(ctx context.Context, habitID string) (int, error)

	CreateInstance(ctx context.Context, inst *HabitInstance) error

	UpdateInstance(ctx context.Context, inst *HabitInstance) error

	// DeleteInstance unlinks a habit from a goal. Returns ErrHabitNotFound if
	// the habit was not linked.
	DeleteInstance(ctx context.Context, goalID, habitID string) error

	// LockGoal loads a goal owned by userID with a row lock.
	LockGoal(ctx context.Context, goalID, userID string) (*GoalInstance, error)

	// GetGoal loads a goal without ownership checks, for propagation.
	GetGoal(ctx context.Context, goalID string) (*GoalInstance, error)

	UpdateGoal(ctx context.Context, goal *GoalInstance) error
}

// ReadRepository serves advisory reads outside any transaction.
type ReadRepository interface {
	GetHabit(ctx context.Context, habitID string) (*HabitDefinition, error)
	GetGoal(ctx context.Context, goalID string) (*GoalInstance, error)
	ListGoalsByIDs(ctx context.Context, userID string, goalIDs []string) ([]*GoalInstance, error)
	ListInstancesByGoals(ctx context.Context, goalIDs []string) ([]*HabitInstance, error)
	ListCompletions(ctx context.Context, habitID, userID string) ([]*HabitCompletion, error)
	CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
