package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	_ domain.ReadRepository = (*PostgresReadRepository)(nil)
	_ domain.UserRepository = (*PostgresReadRepository)(nil)
)

const readTimeout = 3 * time.Second

// PostgresReadRepository serves reads that do not need a transaction: progress
// queries, period status and streak reports.
type PostgresReadRepository struct {
	db *sqlx.DB
}

func NewPostgresReadRepository(db *sqlx.DB) *PostgresReadRepository {
	return &PostgresReadRepository{db: db}
}

func ConnectReadDB(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func (r *PostgresReadRepository) GetHabit(ctx context.Context, habitID string) (*domain.HabitDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var row habitRow
	err := r.db.GetContext(ctx, &row, `SELECT `+habitColumns+` FROM habit_definitions WHERE id = $1`, habitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHabitNotFound
		}
		return nil, fmt.Errorf("repository: get habit failed: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresReadRepository) GetGoal(ctx context.Context, goalID string) (*domain.GoalInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var row goalRow
	err := r.db.GetContext(ctx, &row, `SELECT `+goalColumns+` FROM goal_instances WHERE id = $1`, goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, fmt.Errorf("repository: get goal failed: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresReadRepository) ListGoalsByIDs(ctx context.Context, userID string, goalIDs []string) ([]*domain.GoalInstance, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var rows []goalRow
	query := `SELECT ` + goalColumns + ` FROM goal_instances WHERE user_id = $1 AND id = ANY($2) ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, userID, pq.Array(goalIDs)); err != nil {
		return nil, fmt.Errorf("repository: list goals failed: %w", err)
	}

	goals := make([]*domain.GoalInstance, 0, len(rows))
	for i := range rows {
		goals = append(goals, rows[i].toDomain())
	}
	return goals, nil
}

func (r *PostgresReadRepository) ListInstancesByGoals(ctx context.Context, goalIDs []string) ([]*domain.HabitInstance, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var rows []instanceRow
	query := `SELECT ` + instanceColumns + ` FROM habit_instances WHERE goal_id = ANY($1) ORDER BY goal_id, created_at, id`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(goalIDs)); err != nil {
		return nil, fmt.Errorf("repository: list instances failed: %w", err)
	}

	instances := make([]*domain.HabitInstance, 0, len(rows))
	for i := range rows {
		instances = append(instances, rows[i].toDomain())
	}
	return instances, nil
}

func (r *PostgresReadRepository) ListCompletions(ctx context.Context, habitID, userID string) ([]*domain.HabitCompletion, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var rows []completionRow
	if err := r.db.SelectContext(ctx, &rows, listCompletionsQuery, habitID, userID); err != nil {
		return nil, fmt.Errorf("repository: list completions failed: %w", err)
	}

	completions := make([]*domain.HabitCompletion, 0, len(rows))
	for i := range rows {
		completions = append(completions, rows[i].toDomain())
	}
	return completions, nil
}

func (r *PostgresReadRepository) CountCompletions(ctx context.Context, habitID, userID string, window calendar.TimeWindow) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var count int
	if err := r.db.GetContext(ctx, &count, countCompletionsQuery, habitID, userID, window.Start, window.EndExclusive()); err != nil {
		return 0, fmt.Errorf("repository: count completions failed: %w", err)
	}
	return count, nil
}

func (r *PostgresReadRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT id, timezone, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("repository: get user by id failed: %w", err)
	}
	return &domain.User{ID: row.ID, Timezone: row.Timezone, CreatedAt: row.CreatedAt}, nil
}

func (r *PostgresReadRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
