// Package store turns a task storage backend into a live store: every
// mutation causes all active subscriptions to receive a fresh full snapshot.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ecociel/remind/lib/domain"
)

// Backend is durable keyed storage of task rows.
//
// Insert generates an ID when t.ID is 0 and otherwise replaces the row with
// that ID. Update reports false when no row matches. ListAll orders by ID,
// ListByPriority by due date with undated tasks last.
type Backend interface {
	Insert(ctx context.Context, t domain.Task) (int64, error)
	Update(ctx context.Context, t domain.Task) (bool, error)
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (domain.Task, bool, error)
	ListAll(ctx context.Context) ([]domain.Task, error)
	ListByPriority(ctx context.Context, p domain.Priority) ([]domain.Task, error)
}

type Store struct {
	backend Backend

	// writes serializes mutations so subscribers observe them in commit order.
	writes sync.Mutex

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func New(backend Backend) *Store {
	return &Store{backend: backend, subs: make(map[*Subscription]struct{})}
}

func (s *Store) Insert(ctx context.Context, t domain.Task) (int64, error) {
	s.writes.Lock()
	defer s.writes.Unlock()
	id, err := s.backend.Insert(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	s.changed()
	return id, nil
}

func (s *Store) Update(ctx context.Context, t domain.Task) (bool, error) {
	s.writes.Lock()
	defer s.writes.Unlock()
	found, err := s.backend.Update(ctx, t)
	if err != nil {
		return false, fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if found {
		s.changed()
	}
	return found, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.writes.Lock()
	defer s.writes.Unlock()
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	s.changed()
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (domain.Task, bool, error) {
	t, ok, err := s.backend.GetByID(ctx, id)
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, ok, nil
}

// List reads all tasks once, ordered by ascending ID.
func (s *Store) List(ctx context.Context) ([]domain.Task, error) {
	ts, err := s.backend.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return ts, nil
}

// ListByPriority reads the tasks of one priority once, ordered by due date.
func (s *Store) ListByPriority(ctx context.Context, p domain.Priority) ([]domain.Task, error) {
	ts, err := s.backend.ListByPriority(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", p, err)
	}
	return ts, nil
}

// All subscribes to all tasks ordered by ascending ID.
func (s *Store) All(ctx context.Context) *Subscription {
	return s.subscribe(ctx, s.backend.ListAll)
}

// ByPriority subscribes to the tasks of one priority ordered by due date.
func (s *Store) ByPriority(ctx context.Context, p domain.Priority) *Subscription {
	return s.subscribe(ctx, func(ctx context.Context) ([]domain.Task, error) {
		return s.backend.ListByPriority(ctx, p)
	})
}

func (s *Store) subscribe(ctx context.Context, query func(context.Context) ([]domain.Task, error)) *Subscription {
	sub := newSubscription(ctx, query)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	go func() {
		sub.run()
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()
	return sub
}

func (s *Store) changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.refresh()
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
