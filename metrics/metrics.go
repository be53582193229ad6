package metrics

import "time"

type SchedulerMetrics interface {
	ReminderScheduled()
	ReminderSkipped()
	ReminderCancelled()
	JobsClaimed(n int)
	JobPublished()
	JobPublishFailed()
	PublishLatency(d time.Duration)
}

type DeliveryMetrics interface {
	NotificationPosted()
	NotificationSuppressed()
	NotificationFailed()
}

// Nop discards everything.
type Nop struct{}

func (Nop) ReminderScheduled()           {}
func (Nop) ReminderSkipped()             {}
func (Nop) ReminderCancelled()           {}
func (Nop) JobsClaimed(int)              {}
func (Nop) JobPublished()                {}
func (Nop) JobPublishFailed()            {}
func (Nop) PublishLatency(time.Duration) {}
func (Nop) NotificationPosted()          {}
func (Nop) NotificationSuppressed()      {}
func (Nop) NotificationFailed()          {}
