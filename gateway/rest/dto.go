package rest

import (
	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/notify"
)

// TaskDTO carries due dates as epoch milliseconds.
type TaskDTO struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Priority    domain.Priority `json:"priority"`
	DueDate     *int64          `json:"dueDate,omitempty"`
	IsCompleted bool            `json:"isCompleted"`
}

func toDTO(t domain.Task) TaskDTO {
	return TaskDTO{
		ID:          t.ID,
		Title:       t.Title,
		Priority:    t.Priority,
		DueDate:     t.DueMillis(),
		IsCompleted: t.IsCompleted,
	}
}

func toDTOs(ts []domain.Task) []TaskDTO {
	out := make([]TaskDTO, len(ts))
	for i, t := range ts {
		out[i] = toDTO(t)
	}
	return out
}

func (d TaskDTO) task() domain.Task {
	return domain.Task{
		ID:          d.ID,
		Title:       d.Title,
		Priority:    d.Priority,
		DueDate:     domain.FromMillis(d.DueDate),
		IsCompleted: d.IsCompleted,
	}
}

type DeletionDTO struct {
	Task      TaskDTO `json:"task"`
	UndoToken string  `json:"undoToken"`
	ExpiresAt int64   `json:"expiresAt"`
}

type NotificationsDTO struct {
	Items []notify.Notification `json:"items"`
}

type PermissionDTO struct {
	Granted bool `json:"granted"`
}

type errorDTO struct {
	Error string `json:"error"`
}
