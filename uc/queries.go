package uc

import (
	"context"
	"fmt"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/store"
	"github.com/ecociel/remind/lib/tasklist"
)

type TaskReader interface {
	GetTaskByIDOnce(ctx context.Context, id int64) (domain.Task, bool, error)
	AllTasksOnce(ctx context.Context) ([]domain.Task, error)
	TasksByPriorityOnce(ctx context.Context, p domain.Priority) ([]domain.Task, error)
	AllTasks(ctx context.Context) *store.Subscription
	TasksByPriority(ctx context.Context, p domain.Priority) *store.Subscription
}

// ListFilter narrows a one-shot task listing. A nil Priority lists all tasks.
type ListFilter struct {
	Priority *domain.Priority
	Query    string
	Order    tasklist.Order
}

type GetTaskOnceUseCase = func(ctx context.Context, id int64) (domain.Task, bool, error)
type SubscribeAllTasksUseCase = func(ctx context.Context) *store.Subscription
type SubscribeByPriorityUseCase = func(ctx context.Context, p domain.Priority) (*store.Subscription, error)
type ListTasksUseCase = func(ctx context.Context, f ListFilter) ([]domain.Task, error)

func MakeGetTaskOnceUseCase(r TaskReader) GetTaskOnceUseCase {
	return r.GetTaskByIDOnce
}

func MakeSubscribeAllTasksUseCase(r TaskReader) SubscribeAllTasksUseCase {
	return r.AllTasks
}

func MakeSubscribeByPriorityUseCase(r TaskReader) SubscribeByPriorityUseCase {
	return func(ctx context.Context, p domain.Priority) (*store.Subscription, error) {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPriority, p)
		}
		return r.TasksByPriority(ctx, p), nil
	}
}

func MakeListTasksUseCase(r TaskReader) ListTasksUseCase {
	return func(ctx context.Context, f ListFilter) ([]domain.Task, error) {
		var (
			ts  []domain.Task
			err error
		)
		if f.Priority != nil {
			if !f.Priority.Valid() {
				return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPriority, *f.Priority)
			}
			ts, err = r.TasksByPriorityOnce(ctx, *f.Priority)
		} else {
			ts, err = r.AllTasksOnce(ctx)
		}
		if err != nil {
			return nil, err
		}
		return tasklist.Sort(tasklist.Search(ts, f.Query), f.Order), nil
	}
}
