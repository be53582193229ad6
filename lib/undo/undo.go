package undo

import (
	"errors"
	"sync"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/google/uuid"
)

// ErrExpired is returned for tokens that are unknown, already used, or past
// their window.
var ErrExpired = errors.New("undo window expired")

type entry struct {
	task    domain.Task
	expires time.Time
}

// Window remembers deleted tasks for a bounded time so their delete can be
// undone.
type Window struct {
	mu      sync.Mutex
	length  time.Duration
	now     func() time.Time
	entries map[string]entry
}

func New(length time.Duration) *Window {
	return &Window{length: length, now: time.Now, entries: make(map[string]entry)}
}

// Record keeps t until the returned expiry and returns its token.
func (w *Window) Record(t domain.Task) (string, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)

	token := uuid.NewString()
	expires := now.Add(w.length)
	w.entries[token] = entry{task: t, expires: expires}
	return token, expires
}

// Undo runs restore with the task recorded for token. The token is consumed
// only when restore succeeds; after a failure it stays usable until it
// expires.
func (w *Window) Undo(token string, restore func(domain.Task) error) (domain.Task, error) {
	w.mu.Lock()
	e, ok := w.entries[token]
	if ok {
		delete(w.entries, token)
	}
	w.mu.Unlock()
	if !ok || !w.now().Before(e.expires) {
		return domain.Task{}, ErrExpired
	}

	if err := restore(e.task); err != nil {
		w.mu.Lock()
		w.entries[token] = e
		w.mu.Unlock()
		return domain.Task{}, err
	}
	return e.task, nil
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.entries)
}

func (w *Window) prune(now time.Time) {
	for token, e := range w.entries {
		if !now.Before(e.expires) {
			delete(w.entries, token)
		}
	}
}
