package sql

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var Schema string

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{pool: pool}
}

func (repo *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := repo.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate task table: %w", err)
	}
	return nil
}

// Insert with an explicit id also moves the id sequence past it so generated
// ids never collide with restored rows.
func (repo *PostgresRepo) Insert(ctx context.Context, t domain.Task) (id int64, err error) {
	if t.ID == 0 {
		const q = `
        INSERT INTO task
          (title, priority, due_date, is_completed)
        VALUES
          ($1, $2, $3, $4)
        RETURNING id
        `
		err = repo.pool.QueryRow(ctx, q, t.Title, int(t.Priority), t.DueDate, t.IsCompleted).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert task: %w", err)
		}
		return id, nil
	}

	const q = `
        INSERT INTO task
          (id, title, priority, due_date, is_completed)
        VALUES
          ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
          title = EXCLUDED.title,
          priority = EXCLUDED.priority,
          due_date = EXCLUDED.due_date,
          is_completed = EXCLUDED.is_completed
        `
	const bump = `
        SELECT setval(pg_get_serial_sequence('task', 'id'), GREATEST((SELECT MAX(id) FROM task), 1))
        `
	tx, err := repo.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert task %d: %w", t.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, q, t.ID, t.Title, int(t.Priority), t.DueDate, t.IsCompleted); err != nil {
		return 0, fmt.Errorf("upsert task %d: %w", t.ID, err)
	}
	if _, err := tx.Exec(ctx, bump); err != nil {
		return 0, fmt.Errorf("bump task id sequence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert task %d: %w", t.ID, err)
	}
	return t.ID, nil
}

func (repo *PostgresRepo) Update(ctx context.Context, t domain.Task) (bool, error) {
	const q = `
      UPDATE task
      SET title = $2, priority = $3, due_date = $4, is_completed = $5
      WHERE id = $1`
	ct, err := repo.pool.Exec(ctx, q, t.ID, t.Title, int(t.Priority), t.DueDate, t.IsCompleted)
	if err != nil {
		return false, fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return ct.RowsAffected() > 0, nil
}

func (repo *PostgresRepo) Delete(ctx context.Context, id int64) error {
	const q = `
      DELETE FROM task WHERE id = $1`
	if _, err := repo.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

func (repo *PostgresRepo) GetByID(ctx context.Context, id int64) (domain.Task, bool, error) {
	const q = `
    SELECT id, title, priority, due_date, is_completed
    FROM task
    WHERE id = $1
     `
	t, err := scanTask(repo.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, true, nil
}

func (repo *PostgresRepo) ListAll(ctx context.Context) ([]domain.Task, error) {
	const q = `
    SELECT id, title, priority, due_date, is_completed
    FROM task
    ORDER BY id ASC
     `
	return repo.list(ctx, q)
}

func (repo *PostgresRepo) ListByPriority(ctx context.Context, p domain.Priority) ([]domain.Task, error) {
	const q = `
    SELECT id, title, priority, due_date, is_completed
    FROM task
    WHERE priority = $1
    ORDER BY due_date ASC NULLS LAST, id ASC
     `
	return repo.list(ctx, q, int(p))
}

func (repo *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]domain.Task, error) {
	rows, err := repo.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t        domain.Task
		priority int16
		due      *time.Time
	)
	if err := row.Scan(&t.ID, &t.Title, &priority, &due, &t.IsCompleted); err != nil {
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	if due != nil {
		u := due.UTC()
		t.DueDate = &u
	}
	return t, nil
}
