package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

// PgConnection is the subset of *pgxpool.Pool the store needs.
type PgConnection interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ domain.Store = (*PostgresStore)(nil)

const DefaultStatementTimeout = 5 * time.Second

type PostgresStore struct {
	conn    PgConnection
	timeout time.Duration
}

func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(conn PgConnection, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	return &PostgresStore{conn: conn, timeout: timeout}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// WithinTx bounds the whole unit of work by the statement timeout. Postgres
// serialization failures and deadlocks surface as domain.ErrTxConflict.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return translate(err, "begin")
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Warn("rollback failed", "err", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translate(err, "commit")
	}
	return nil
}

func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("repository: %s: %w", op, domain.ErrTxConflict)
		}
	}
	return fmt.Errorf("repository: %s: %w", op, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const (
	lockHabitQuery = `SELECT ` + habitColumns + ` FROM habit_definitions
		WHERE id = $1 AND user_id = $2 FOR UPDATE`

	findHabitByTitleQuery = `SELECT ` + habitColumns + ` FROM habit_definitions
		WHERE user_id = $1 AND lower(title) = $2 FOR UPDATE`

	insertHabitQuery = `INSERT INTO habit_definitions (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateHabitQuery = `UPDATE habit_definitions SET
		title = $1, description = $2, cadence = $3, per_period_target = $4, is_active = $5,
		total_completions = $6, current_streak = $7, longest_streak = $8, updated_at = $9
		WHERE id = $10`

	countCompletionsQuery = `SELECT COUNT(*) FROM habit_completions
		WHERE habit_id = $1 AND user_id = $2 AND completed_at >= $3 AND completed_at < $4`

	insertCompletionQuery = `INSERT INTO habit_completions (` + completionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listCompletionsQuery = `SELECT ` + completionColumns + ` FROM habit_completions
		WHERE habit_id = $1 AND user_id = $2 ORDER BY completed_at ASC`

	listActiveInstancesByHabitQuery = `SELECT hi.id, hi.habit_id, hi.goal_id, hi.user_id, hi.target_count,
		hi.current_value, hi.goal_specific_streak, hi.cadence, hi.per_period_target, hi.periods,
		hi.created_at, hi.updated_at
		FROM habit_instances hi
		JOIN goal_instances g ON g.id = hi.goal_id
		WHERE hi.habit_id = $1 AND g.status <> 'archived'
		ORDER BY hi.goal_id
		FOR UPDATE OF hi`

	listInstancesByGoalQuery = `SELECT ` + instanceColumns + ` FROM habit_instances
		WHERE goal_id = $1 ORDER BY created_at, id`

	countInstancesByHabitQuery = `SELECT COUNT(*) FROM habit_instances WHERE habit_id = $1`

	insertInstanceQuery = `INSERT INTO habit_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateInstanceQuery = `UPDATE habit_instances SET
		target_count = $1, current_value = $2, goal_specific_streak = $3,
		cadence = $4, per_period_target = $5, periods = $6, updated_at = $7
		WHERE id = $8`

	deleteInstanceQuery = `DELETE FROM habit_instances WHERE goal_id = $1 AND habit_id = $2`

	lockGoalQuery = `SELECT ` + goalColumns + ` FROM goal_instances
		WHERE id = $1 AND user_id = $2 FOR UPDATE`

	getGoalQuery = `SELECT ` + goalColumns + ` FROM goal_instances WHERE id = $1`

	updateGoalQuery = `UPDATE goal_instances SET
		manual_offset = $1, status = $2, completed_at = $3, updated_at = $4
		WHERE id = $5`
)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockHabit(ctx context.Context, habitID, userID string) (*domain.HabitDefinition, error) {
	var row habitRow
	if err := t.tx.QueryRow(ctx, lockHabitQuery, habitID, userID).Scan(row.targets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHabitNotFound
		}
		return nil, translate(err, "lock habit")
	}
	return row.toDomain(), nil
}

func (t *pgTx) FindHabitByTitle(ctx context.Context, userID, title string) (*domain.HabitDefinition, error) {
	var row habitRow
	if err := t.tx.QueryRow(ctx, findHabitByTitleQuery, userID, domain.TitleKey(title)).Scan(row.targets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHabitNotFound
		}
		return nil, translate(err, "find habit by title")
	}
	return row.toDomain(), nil
}

func (t *pgTx) CreateHabit(ctx context.Context, h *domain.HabitDefinition) error {
	_, err := t.tx.Exec(ctx, insertHabitQuery,
		h.ID, h.UserID, h.Title, h.Description, string(h.Frequency.Cadence), h.Frequency.PerPeriodTarget, h.IsActive,
		h.TotalCompletions, h.CurrentStreak, h.LongestStreak, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		// Same title created concurrently; a retry will find it.
		case "23505":
			return fmt.Errorf("repository: create habit: %w", domain.ErrTxConflict)
		case "23503":
			return domain.ErrUserNotFound
		}
		return translate(err, "create habit")
	}
	return nil
}

func (t *pgTx) UpdateHabit(ctx context.Context, h *domain.HabitDefinition) error {
	tag, err := t.tx.Exec(ctx, updateHabitQuery,
		h.Title, h.Description, string(h.Frequency.Cadence), h.Frequency.PerPeriodTarget, h.IsActive,
		h.TotalCompletions, h.CurrentStreak, h.LongestStreak, h.UpdatedAt,
		h.ID,
	)
	if err != nil {
		return translate(err, "update habit")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHabitNotFound
	}
	return nil
}

func (t *pgTx) CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, countCompletionsQuery, habitID, userID, window.Start, window.EndExclusive()).Scan(&count)
	if err != nil {
		return 0, translate(err, "count completions")
	}
	return count, nil
}

func (t *pgTx) InsertCompletion(ctx context.Context, c *domain.HabitCompletion) error {
	_, err := t.tx.Exec(ctx, insertCompletionQuery, c.ID, c.HabitID, c.UserID, c.CompletedAt, c.Notes, c.CreatedAt)
	if err != nil {
		if pgCode(err) == "23503" {
			return domain.ErrHabitNotFound
		}
		return translate(err, "insert completion")
	}
	return nil
}

func (t *pgTx) ListCompletions(ctx context.Context, habitID, userID string) ([]*domain.HabitCompletion, error) {
	rows, err := t.tx.Query(ctx, listCompletionsQuery, habitID, userID)
	if err != nil {
		return nil, translate(err, "list completions")
	}
	defer rows.Close()

	var completions []*domain.HabitCompletion
	for rows.Next() {
		var row completionRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, translate(err, "scan completion")
		}
		completions = append(completions, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list completions")
	}
	return completions, nil
}

func (t *pgTx) queryInstances(ctx context.Context, op, query string, args ...any) ([]*domain.HabitInstance, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, op)
	}
	defer rows.Close()

	var instances []*domain.HabitInstance
	for rows.Next() {
		var row instanceRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, translate(err, op)
		}
		instances = append(instances, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, op)
	}
	return instances, nil
}

func (t *pgTx) ListActiveInstancesByHabit(ctx context.Context, habitID string) ([]*domain.HabitInstance, error) {
	return t.queryInstances(ctx, "list active instances", listActiveInstancesByHabitQuery, habitID)
}

func (t *pgTx) ListInstancesByGoal(ctx context.Context, goalID string) ([]*domain.HabitInstance, error) {
	return t.queryInstances(ctx, "list goal instances", listInstancesByGoalQuery, goalID)
}

func (t *pgTx) CountInstancesByHabit(ctx context.Context, habitID string) (int, error) {
	var count int
	if err := t.tx.QueryRow(ctx, countInstancesByHabitQuery, habitID).Scan(&count); err != nil {
		return 0, translate(err, "count instances")
	}
	return count, nil
}

func (t *pgTx) CreateInstance(ctx context.Context, i *domain.HabitInstance) error {
	_, err := t.tx.Exec(ctx, insertInstanceQuery,
		i.ID, i.HabitID, i.GoalID, i.UserID, i.TargetCount, i.CurrentValue,
		i.GoalSpecificStreak, string(i.Frequency.Cadence), i.Frequency.PerPeriodTarget, i.Frequency.Periods,
		i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case "23505":
			return fmt.Errorf("repository: create instance: %w", domain.ErrTxConflict)
		case "23503":
			return domain.ErrGoalNotFound
		}
		return translate(err, "create instance")
	}
	return nil
}

func (t *pgTx) UpdateInstance(ctx context.Context, i *domain.HabitInstance) error {
	tag, err := t.tx.Exec(ctx, updateInstanceQuery,
		i.TargetCount, i.CurrentValue, i.GoalSpecificStreak,
		string(i.Frequency.Cadence), i.Frequency.PerPeriodTarget, i.Frequency.Periods, i.UpdatedAt,
		i.ID,
	)
	if err != nil {
		return translate(err, "update instance")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHabitNotFound
	}
	return nil
}

func (t *pgTx) DeleteInstance(ctx context.Context, goalID, habitID string) error {
	tag, err := t.tx.Exec(ctx, deleteInstanceQuery, goalID, habitID)
	if err != nil {
		return translate(err, "delete instance")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHabitNotFound
	}
	return nil
}

func (t *pgTx) LockGoal(ctx context.Context, goalID, userID string) (*domain.GoalInstance, error) {
	var row goalRow
	if err := t.tx.QueryRow(ctx, lockGoalQuery, goalID, userID).Scan(row.targets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, translate(err, "lock goal")
	}
	return row.toDomain(), nil
}

func (t *pgTx) GetGoal(ctx context.Context, goalID string) (*domain.GoalInstance, error) {
	var row goalRow
	if err := t.tx.QueryRow(ctx, getGoalQuery, goalID).Scan(row.targets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, translate(err, "get goal")
	}
	return row.toDomain(), nil
}

func (t *pgTx) UpdateGoal(ctx context.Context, g *domain.GoalInstance) error {
	tag, err := t.tx.Exec(ctx, updateGoalQuery, g.ManualOffset, string(g.Status), g.CompletedAt, g.UpdatedAt, g.ID)
	if err != nil {
		return translate(err, "update goal")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}
