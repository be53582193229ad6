package uc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecociel/remind/lib/domain"
	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyTitle = errors.New("title must not be empty")
	ErrNotFound   = errors.New("task not found")
)

type TaskWriter interface {
	InsertAndReturnID(ctx context.Context, t domain.Task) (int64, error)
	Insert(ctx context.Context, t domain.Task) error
	Update(ctx context.Context, t domain.Task) (bool, error)
	Delete(ctx context.Context, t domain.Task) error
	GetTaskByIDOnce(ctx context.Context, id int64) (domain.Task, bool, error)
}

type ReminderScheduler interface {
	Schedule(ctx context.Context, taskID int64, taskTitle string, due, now time.Time) (bool, error)
	Cancel(ctx context.Context, taskID int64) error
}

type UndoWindow interface {
	Record(t domain.Task) (string, time.Time)
	Undo(token string, restore func(domain.Task) error) (domain.Task, error)
}

// Policy selects the optional reminder side effects of delete and undo.
type Policy struct {
	CancelOnDelete   bool
	RescheduleOnUndo bool
}

type Deletion struct {
	Task      domain.Task
	UndoToken string
	Expires   time.Time
}

type AddTaskUseCase = func(ctx context.Context, title string, p domain.Priority, due *time.Time) (domain.Task, error)
type UpdateTaskUseCase = func(ctx context.Context, t domain.Task) (bool, error)
type DeleteTaskUseCase = func(ctx context.Context, id int64) (Deletion, error)
type UndoDeleteUseCase = func(ctx context.Context, t domain.Task) error
type UndoByTokenUseCase = func(ctx context.Context, token string) (domain.Task, error)

func validate(title string, p domain.Priority) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidPriority, p)
	}
	return nil
}

func scheduleIfDue(ctx context.Context, s ReminderScheduler, t domain.Task, now time.Time) error {
	if !t.FutureDue(now) {
		return nil
	}
	if _, err := s.Schedule(ctx, t.ID, t.Title, *t.DueDate, now); err != nil {
		return fmt.Errorf("schedule reminder for task %d: %w", t.ID, err)
	}
	return nil
}

func MakeAddTaskUseCase(w TaskWriter, s ReminderScheduler, now func() time.Time) AddTaskUseCase {
	return func(ctx context.Context, title string, p domain.Priority, due *time.Time) (domain.Task, error) {
		if err := validate(title, p); err != nil {
			return domain.Task{}, err
		}
		t := domain.Task{Title: title, Priority: p, DueDate: due}
		id, err := w.InsertAndReturnID(ctx, t)
		if err != nil {
			return domain.Task{}, err
		}
		t.ID = id
		return t, scheduleIfDue(ctx, s, t, now())
	}
}

// MakeUpdateTaskUseCase overwrites the task by id. A vanished task is a
// no-op reported as false. A task left without a future due date loses its
// pending reminder.
func MakeUpdateTaskUseCase(w TaskWriter, s ReminderScheduler, now func() time.Time) UpdateTaskUseCase {
	return func(ctx context.Context, t domain.Task) (bool, error) {
		if err := validate(t.Title, t.Priority); err != nil {
			return false, err
		}
		found, err := w.Update(ctx, t)
		if err != nil || !found {
			return found, err
		}
		at := now()
		if t.FutureDue(at) {
			return true, scheduleIfDue(ctx, s, t, at)
		}
		if err := s.Cancel(ctx, t.ID); err != nil {
			return true, fmt.Errorf("cancel reminder for task %d: %w", t.ID, err)
		}
		return true, nil
	}
}

func MakeDeleteTaskUseCase(w TaskWriter, s ReminderScheduler, undo UndoWindow, policy Policy) DeleteTaskUseCase {
	return func(ctx context.Context, id int64) (Deletion, error) {
		t, ok, err := w.GetTaskByIDOnce(ctx, id)
		if err != nil {
			return Deletion{}, err
		}
		if !ok {
			return Deletion{}, ErrNotFound
		}
		if err := w.Delete(ctx, t); err != nil {
			return Deletion{}, err
		}
		if policy.CancelOnDelete {
			if err := s.Cancel(ctx, t.ID); err != nil {
				log.WithField("task", t.ID).Warnf("cancel reminder of deleted task: %v", err)
			}
		}
		token, expires := undo.Record(t)
		return Deletion{Task: t, UndoToken: token, Expires: expires}, nil
	}
}

// MakeUndoDeleteUseCase re-inserts t under its original id. With
// RescheduleOnUndo a still-future reminder is scheduled again.
func MakeUndoDeleteUseCase(w TaskWriter, s ReminderScheduler, policy Policy, now func() time.Time) UndoDeleteUseCase {
	return func(ctx context.Context, t domain.Task) error {
		if err := w.Insert(ctx, t); err != nil {
			return err
		}
		if !policy.RescheduleOnUndo {
			return nil
		}
		return scheduleIfDue(ctx, s, t, now())
	}
}

func MakeUndoByTokenUseCase(undo UndoWindow, undoDelete UndoDeleteUseCase) UndoByTokenUseCase {
	return func(ctx context.Context, token string) (domain.Task, error) {
		return undo.Undo(token, func(t domain.Task) error {
			return undoDelete(ctx, t)
		})
	}
}
