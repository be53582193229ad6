package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidPriority = errors.New("invalid priority")

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority accepts either the numeric form ("0".."2") or the name.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "low":
		return PriorityLow, nil
	case "1", "medium":
		return PriorityMedium, nil
	case "2", "high":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// Task is a persisted todo item. An ID of 0 means the task has not been stored yet.
type Task struct {
	ID          int64
	Title       string
	Priority    Priority
	DueDate     *time.Time
	IsCompleted bool
}

// FutureDue reports whether the task carries a due date strictly after now.
func (t Task) FutureDue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.After(now)
}

// DueMillis returns the due date as epoch milliseconds, or nil.
func (t Task) DueMillis() *int64 {
	if t.DueDate == nil {
		return nil
	}
	ms := t.DueDate.UnixMilli()
	return &ms
}

// FromMillis converts optional epoch milliseconds into a UTC time.
func FromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
