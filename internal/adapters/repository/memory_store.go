package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
)

var (
	_ domain.Store          = (*MemoryStore)(nil)
	_ domain.ReadRepository = (*MemoryStore)(nil)
	_ domain.UserRepository = (*MemoryStore)(nil)
)

type memoryState struct {
	users       map[string]domain.User
	habits      map[string]domain.HabitDefinition
	goals       map[string]domain.GoalInstance
	instances   map[string]domain.HabitInstance
	completions []domain.HabitCompletion
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:     make(map[string]domain.User),
		habits:    make(map[string]domain.HabitDefinition),
		goals:     make(map[string]domain.GoalInstance),
		instances: make(map[string]domain.HabitInstance),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		users:       make(map[string]domain.User, len(s.users)),
		habits:      make(map[string]domain.HabitDefinition, len(s.habits)),
		goals:       make(map[string]domain.GoalInstance, len(s.goals)),
		instances:   make(map[string]domain.HabitInstance, len(s.instances)),
		completions: append([]domain.HabitCompletion(nil), s.completions...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.habits {
		c.habits[k] = v
	}
	for k, v := range s.goals {
		c.goals[k] = v
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	return c
}

// MemoryStore keeps everything in process. Transactions run one at a time on
// a copy of the state, which replaces the live state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.state = work
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Seed helpers for tests and local runs.

func (m *MemoryStore) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

func (m *MemoryStore) AddHabit(h *domain.HabitDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.habits[h.ID] = *h
}

func (m *MemoryStore) AddGoal(g *domain.GoalInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.goals[g.ID] = *g
}

func (m *MemoryStore) AddInstance(i *domain.HabitInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.instances[i.ID] = *i
}

func (m *MemoryStore) AddCompletion(c *domain.HabitCompletion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.completions = append(m.state.completions, *c)
}

func (m *MemoryStore) GetHabit(ctx context.Context, habitID string) (*domain.HabitDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.state.habits[habitID]
	if !ok {
		return nil, domain.ErrHabitNotFound
	}
	return &h, nil
}

func (m *MemoryStore) GetGoal(ctx context.Context, goalID string) (*domain.GoalInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.state.goals[goalID]
	if !ok {
		return nil, domain.ErrGoalNotFound
	}
	return &g, nil
}

func (m *MemoryStore) ListGoalsByIDs(ctx context.Context, userID string, goalIDs []string) ([]*domain.GoalInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var goals []*domain.GoalInstance
	for _, id := range goalIDs {
		if g, ok := m.state.goals[id]; ok && g.UserID == userID {
			goals = append(goals, &g)
		}
	}
	sort.Slice(goals, func(i, j int) bool {
		return goals[i].ID < goals[j].ID
	})
	return goals, nil
}

func (m *MemoryStore) ListInstancesByGoals(ctx context.Context, goalIDs []string) ([]*domain.HabitInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(goalIDs))
	for _, id := range goalIDs {
		wanted[id] = true
	}
	return m.state.instancesWhere(func(i domain.HabitInstance) bool {
		return wanted[i.GoalID]
	}), nil
}

func (m *MemoryStore) ListCompletions(ctx context.Context, habitID, userID string) ([]*domain.HabitCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listCompletions(habitID, userID), nil
}

func (m *MemoryStore) CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.countCompletions(habitID, userID, window), nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.state.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *memoryState) instancesWhere(match func(domain.HabitInstance) bool) []*domain.HabitInstance {
	var out []*domain.HabitInstance
	for _, inst := range s.instances {
		if match(inst) {
			inst := inst
			out = append(out, &inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GoalID != out[j].GoalID {
			return out[i].GoalID < out[j].GoalID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memoryState) listCompletions(habitID, userID string) []*domain.HabitCompletion {
	var out []*domain.HabitCompletion
	for _, c := range s.completions {
		if c.HabitID == habitID && c.UserID == userID {
			c := c
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out
}

func (s *memoryState) countCompletions(habitID, userID string, window calendar.TimeWindow) int {
	count := 0
	for _, c := range s.completions {
		if c.HabitID == habitID && c.UserID == userID && window.Contains(c.CompletedAt) {
			count++
		}
	}
	return count
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockHabit(ctx context.Context, habitID, userID string) (*domain.HabitDefinition, error) {
	h, ok := t.state.habits[habitID]
	if !ok || h.UserID != userID {
		return nil, domain.ErrHabitNotFound
	}
	return &h, nil
}

func (t *memoryTx) FindHabitByTitle(ctx context.Context, userID, title string) (*domain.HabitDefinition, error) {
	key := domain.TitleKey(title)
	for _, h := range t.state.habits {
		if h.UserID == userID && domain.TitleKey(h.Title) == key {
			return &h, nil
		}
	}
	return nil, domain.ErrHabitNotFound
}

func (t *memoryTx) CreateHabit(ctx context.Context, h *domain.HabitDefinition) error {
	if _, ok := t.state.users[h.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	t.state.habits[h.ID] = *h
	return nil
}

func (t *memoryTx) UpdateHabit(ctx context.Context, h *domain.HabitDefinition) error {
	if _, ok := t.state.habits[h.ID]; !ok {
		return domain.ErrHabitNotFound
	}
	t.state.habits[h.ID] = *h
	return nil
}

func (t *memoryTx) CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error) {
	return t.state.countCompletions(habitID, userID, window), nil
}

func (t *memoryTx) InsertCompletion(ctx context.Context, c *domain.HabitCompletion) error {
	if _, ok := t.state.habits[c.HabitID]; !ok {
		return domain.ErrHabitNotFound
	}
	t.state.completions = append(t.state.completions, *c)
	return nil
}

func (t *memoryTx) ListCompletions(ctx context.Context, habitID, userID string) ([]*domain.HabitCompletion, error) {
	return t.state.listCompletions(habitID, userID), nil
}

func (t *memoryTx) ListActiveInstancesByHabit(ctx context.Context, habitID string) ([]*domain.HabitInstance, error) {
	return t.state.instancesWhere(func(i domain.HabitInstance) bool {
		if i.HabitID != habitID {
			return false
		}
		g, ok := t.state.goals[i.GoalID]
		return ok && !g.IsArchived()
	}), nil
}

func (t *memoryTx) ListInstancesByGoal(ctx context.Context, goalID string) ([]*domain.HabitInstance, error) {
	return t.state.instancesWhere(func(i domain.HabitInstance) bool {
		return i.GoalID == goalID
	}), nil
}

func (t *memoryTx) CountInstancesByHabit(ctx context.Context, habitID string) (int, error) {
	count := 0
	for _, inst := range t.state.instances {
		if inst.HabitID == habitID {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) CreateInstance(ctx context.Context, i *domain.HabitInstance) error {
	if _, ok := t.state.goals[i.GoalID]; !ok {
		return domain.ErrGoalNotFound
	}
	for _, existing := range t.state.instances {
		if existing.GoalID == i.GoalID && existing.HabitID == i.HabitID {
			return domain.ErrTxConflict
		}
	}
	t.state.instances[i.ID] = *i
	return nil
}

func (t *memoryTx) UpdateInstance(ctx context.Context, i *domain.HabitInstance) error {
	if _, ok := t.state.instances[i.ID]; !ok {
		return domain.ErrHabitNotFound
	}
	t.state.instances[i.ID] = *i
	return nil
}

func (t *memoryTx) DeleteInstance(ctx context.Context, goalID, habitID string) error {
	for id, inst := range t.state.instances {
		if inst.GoalID == goalID && inst.HabitID == habitID {
			delete(t.state.instances, id)
			return nil
		}
	}
	return domain.ErrHabitNotFound
}

func (t *memoryTx) LockGoal(ctx context.Context, goalID, userID string) (*domain.GoalInstance, error) {
	g, ok := t.state.goals[goalID]
	if !ok || g.UserID != userID {
		return nil, domain.ErrGoalNotFound
	}
	return &g, nil
}

func (t *memoryTx) GetGoal(ctx context.Context, goalID string) (*domain.GoalInstance, error) {
	g, ok := t.state.goals[goalID]
	if !ok {
		return nil, domain.ErrGoalNotFound
	}
	return &g, nil
}

func (t *memoryTx) UpdateGoal(ctx context.Context, g *domain.GoalInstance) error {
	if _, ok := t.state.goals[g.ID]; !ok {
		return domain.ErrGoalNotFound
	}
	t.state.goals[g.ID] = *g
	return nil
}
