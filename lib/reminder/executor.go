package reminder

import (
	"context"
	"fmt"

	"github.com/ecociel/remind/lib/domain"
	log "github.com/sirupsen/logrus"
)

const (
	Title        = "Task Reminder"
	DefaultTitle = "Your task"
)

type Notifier interface {
	Notify(ctx context.Context, id int64, title, body string) error
}

// Executor turns a fired reminder job into one notification. The job
// payload is authoritative; the task store is not consulted.
type Executor struct {
	notifier Notifier
}

func NewExecutor(n Notifier) *Executor {
	return &Executor{notifier: n}
}

func Body(taskTitle string) string {
	return fmt.Sprintf("Reminder: \"%s\" is due!", taskTitle)
}

// Handle always reports success so that the job is never retried.
func (e *Executor) Handle(ctx context.Context, job domain.Job) error {
	p, err := domain.UnmarshalReminderPayload(job.Payload)
	if err != nil {
		id, kerr := domain.TaskIDFromKey(job.Key)
		if kerr != nil {
			log.WithField("key", job.Key).Warnf("dropping reminder with unreadable payload: %v", err)
			return nil
		}
		log.WithField("key", job.Key).Warnf("reminder payload unreadable, using default title: %v", err)
		p = domain.ReminderPayload{TaskID: id}
	}
	if p.TaskID == 0 {
		if id, err := domain.TaskIDFromKey(job.Key); err == nil {
			p.TaskID = id
		}
	}
	e.Execute(ctx, p.TaskID, p.TaskTitle)
	return nil
}

func (e *Executor) Execute(ctx context.Context, taskID int64, taskTitle string) {
	if taskTitle == "" {
		taskTitle = DefaultTitle
	}
	if err := e.notifier.Notify(ctx, taskID, Title, Body(taskTitle)); err != nil {
		log.WithField("task", taskID).Warnf("reminder notification not delivered: %v", err)
	}
}
