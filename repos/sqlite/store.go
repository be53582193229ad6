// Package sqlite is a task store backend on an embedded SQLite database.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type taskRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"not null"`
	Priority    int    `gorm:"not null;default:0;index"`
	DueDate     *time.Time
	IsCompleted bool `gorm:"not null;default:false"`
}

func (taskRow) TableName() string { return "task" }

// toRow stores due dates in UTC; SQLite orders them as text.
func toRow(t domain.Task) taskRow {
	row := taskRow{
		ID:          t.ID,
		Title:       t.Title,
		Priority:    int(t.Priority),
		IsCompleted: t.IsCompleted,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		row.DueDate = &due
	}
	return row
}

func (r taskRow) toTask() domain.Task {
	t := domain.Task{
		ID:          r.ID,
		Title:       r.Title,
		Priority:    domain.Priority(r.Priority),
		IsCompleted: r.IsCompleted,
	}
	if r.DueDate != nil {
		due := r.DueDate.UTC()
		t.DueDate = &due
	}
	return t
}

type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&taskRow{}); err != nil {
		return nil, fmt.Errorf("migrate task table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Insert(ctx context.Context, t domain.Task) (int64, error) {
	row := toRow(t)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	if t.ID != 0 {
		return t.ID, nil
	}
	return row.ID, nil
}

func (s *Store) Update(ctx context.Context, t domain.Task) (bool, error) {
	row := toRow(t)
	res := s.db.WithContext(ctx).
		Model(&taskRow{}).
		Where("id = ?", row.ID).
		Select("title", "priority", "due_date", "is_completed").
		Updates(&row)
	if res.Error != nil {
		return false, fmt.Errorf("update task %d: %w", t.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&taskRow{}, id).Error; err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (domain.Task, bool, error) {
	var row taskRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("get task %d: %w", id, err)
	}
	return row.toTask(), true, nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return toTasks(rows), nil
}

func (s *Store) ListByPriority(ctx context.Context, p domain.Priority) ([]domain.Task, error) {
	var rows []taskRow
	err := s.db.WithContext(ctx).
		Where("priority = ?", int(p)).
		Order("due_date IS NULL, due_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks by priority %d: %w", p, err)
	}
	return toTasks(rows), nil
}

func toTasks(rows []taskRow) []domain.Task {
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask())
	}
	return tasks
}
