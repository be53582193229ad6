// Package tasks is the storage seam of the application. It knows nothing
// about reminders: callers schedule after a write succeeds.
package tasks

import (
	"context"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/store"
)

type Store interface {
	Insert(ctx context.Context, t domain.Task) (int64, error)
	Update(ctx context.Context, t domain.Task) (bool, error)
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (domain.Task, bool, error)
	List(ctx context.Context) ([]domain.Task, error)
	ListByPriority(ctx context.Context, p domain.Priority) ([]domain.Task, error)
	All(ctx context.Context) *store.Subscription
	ByPriority(ctx context.Context, p domain.Priority) *store.Subscription
}

type Repository struct {
	store Store
}

func NewRepository(s Store) *Repository {
	return &Repository{store: s}
}

// InsertAndReturnID stores t and returns the id it is stored under: the
// generated one when t.ID is 0, t.ID otherwise.
func (r *Repository) InsertAndReturnID(ctx context.Context, t domain.Task) (int64, error) {
	return r.store.Insert(ctx, t)
}

// Insert upserts t by id; used to restore a deleted task.
func (r *Repository) Insert(ctx context.Context, t domain.Task) error {
	_, err := r.store.Insert(ctx, t)
	return err
}

// Update reports false, without error, when the task no longer exists.
func (r *Repository) Update(ctx context.Context, t domain.Task) (bool, error) {
	return r.store.Update(ctx, t)
}

func (r *Repository) Delete(ctx context.Context, t domain.Task) error {
	return r.store.Delete(ctx, t.ID)
}

func (r *Repository) GetTaskByIDOnce(ctx context.Context, id int64) (domain.Task, bool, error) {
	return r.store.GetByID(ctx, id)
}

func (r *Repository) AllTasksOnce(ctx context.Context) ([]domain.Task, error) {
	return r.store.List(ctx)
}

func (r *Repository) TasksByPriorityOnce(ctx context.Context, p domain.Priority) ([]domain.Task, error) {
	return r.store.ListByPriority(ctx, p)
}

func (r *Repository) AllTasks(ctx context.Context) *store.Subscription {
	return r.store.All(ctx)
}

func (r *Repository) TasksByPriority(ctx context.Context, p domain.Priority) *store.Subscription {
	return r.store.ByPriority(ctx, p)
}
