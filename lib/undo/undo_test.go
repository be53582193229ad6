package undo

import (
	"errors"
	"testing"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/google/uuid"
)

func setupWindow(length time.Duration) (*Window, *time.Time) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	w := New(length)
	w.now = func() time.Time { return now }
	return w, &now
}

func keep(restored *[]domain.Task) func(domain.Task) error {
	return func(t domain.Task) error {
		*restored = append(*restored, t)
		return nil
	}
}

func TestUndoWithinWindow(t *testing.T) {
	w, now := setupWindow(4 * time.Second)
	task := domain.Task{ID: 5, Title: "Call mom", Priority: domain.PriorityHigh}

	token, expires := w.Record(task)
	if _, err := uuid.Parse(token); err != nil {
		t.Errorf("token is not a uuid: %v", err)
	}
	if !expires.Equal(now.Add(4 * time.Second)) {
		t.Errorf("unexpected expiry %s", expires)
	}

	*now = now.Add(3 * time.Second)
	var restored []domain.Task
	got, err := w.Undo(token, keep(&restored))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != task {
		t.Errorf("got %+v, want %+v", got, task)
	}
	if len(restored) != 1 || restored[0] != task {
		t.Errorf("restore called with %+v", restored)
	}
}

func TestUndoTwice(t *testing.T) {
	w, _ := setupWindow(time.Second)
	token, _ := w.Record(domain.Task{ID: 1})
	var restored []domain.Task
	if _, err := w.Undo(token, keep(&restored)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Undo(token, keep(&restored)); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if len(restored) != 1 {
		t.Errorf("expected 1 restore, got %d", len(restored))
	}
}

func TestUndoFailedRestoreKeepsToken(t *testing.T) {
	w, _ := setupWindow(time.Minute)
	task := domain.Task{ID: 9, Title: "Pay rent"}
	token, _ := w.Record(task)

	down := errors.New("db down")
	if _, err := w.Undo(token, func(domain.Task) error { return down }); !errors.Is(err, down) {
		t.Fatalf("expected restore error, got %v", err)
	}
	if n := w.Len(); n != 1 {
		t.Fatalf("expected entry kept after failed restore, got %d entries", n)
	}

	var restored []domain.Task
	got, err := w.Undo(token, keep(&restored))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got != task || len(restored) != 1 {
		t.Errorf("unexpected retry result %+v %+v", got, restored)
	}
}

func TestUndoAfterWindow(t *testing.T) {
	w, now := setupWindow(4 * time.Second)
	token, _ := w.Record(domain.Task{ID: 1})
	*now = now.Add(4 * time.Second)
	called := false
	_, err := w.Undo(token, func(domain.Task) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if called {
		t.Error("restore must not run for an expired token")
	}
}

func TestUnknownToken(t *testing.T) {
	w, _ := setupWindow(time.Second)
	var restored []domain.Task
	if _, err := w.Undo("nope", keep(&restored)); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestExpiredEntriesArePruned(t *testing.T) {
	w, now := setupWindow(time.Second)
	w.Record(domain.Task{ID: 1})
	w.Record(domain.Task{ID: 2})
	if n := w.Len(); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
	*now = now.Add(2 * time.Second)
	if n := w.Len(); n != 0 {
		t.Errorf("expected 0 entries, got %d", n)
	}
}
