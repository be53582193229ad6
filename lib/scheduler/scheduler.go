package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/metrics"
	log "github.com/sirupsen/logrus"
)

// JobQueue is durable storage of deferred jobs that survives process restarts.
// Submitting a job whose key is already pending replaces the pending job.
type JobQueue interface {
	Submit(ctx context.Context, job domain.Job, delay time.Duration) error
	Cancel(ctx context.Context, key string) error
}

// Scheduler turns task due dates into reminder jobs on the job queue.
type Scheduler struct {
	queue   JobQueue
	metrics metrics.SchedulerMetrics
}

func New(queue JobQueue, m metrics.SchedulerMetrics) *Scheduler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Scheduler{queue: queue, metrics: m}
}

// Schedule submits a reminder for the task firing at due. Nothing is
// scheduled when due is not strictly after now. It reports whether a job was
// submitted.
func (s *Scheduler) Schedule(ctx context.Context, taskID int64, taskTitle string, due, now time.Time) (bool, error) {
	delay := due.Sub(now)
	if delay <= 0 {
		s.metrics.ReminderSkipped()
		log.Debugf("skip reminder for task %d: due %s is not after %s", taskID, due.Format(time.RFC3339), now.Format(time.RFC3339))
		return false, nil
	}

	payload, err := domain.ReminderPayload{TaskID: taskID, TaskTitle: taskTitle}.Marshal()
	if err != nil {
		return false, fmt.Errorf("encode reminder payload for task %d: %w", taskID, err)
	}
	job := domain.Job{
		Key:     domain.ReminderKey(taskID),
		Name:    domain.JobTaskReminder,
		Payload: payload,
	}
	if err := s.queue.Submit(ctx, job, delay); err != nil {
		return false, fmt.Errorf("submit reminder for task %d: %w", taskID, err)
	}
	s.metrics.ReminderScheduled()
	log.Printf("Scheduled reminder %s in %s", job.Key, delay)
	return true, nil
}

// Cancel removes the pending reminder of a task, if any.
func (s *Scheduler) Cancel(ctx context.Context, taskID int64) error {
	key := domain.ReminderKey(taskID)
	if err := s.queue.Cancel(ctx, key); err != nil {
		return fmt.Errorf("cancel reminder for task %d: %w", taskID, err)
	}
	s.metrics.ReminderCancelled()
	log.Debugf("Cancelled reminder %s", key)
	return nil
}
