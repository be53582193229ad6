package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PromMetrics struct {
	scheduled      prometheus.Counter
	skipped        prometheus.Counter
	cancelled      prometheus.Counter
	claimed        prometheus.Counter
	published      prometheus.Counter
	publishFailed  prometheus.Counter
	publishLatency prometheus.Histogram
	notifications  *prometheus.CounterVec
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {

	m := &PromMetrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_scheduled_total",
			Help: "Number of reminder jobs submitted",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_skipped_total",
			Help: "Number of reminders not scheduled because the due time was not in the future",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_cancelled_total",
			Help: "Number of reminder cancellations",
		}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_claimed_total",
			Help: "Number of claimed due jobs",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_published_total",
			Help: "Number of published jobs",
		}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_publish_failed_total",
			Help: "Number of failed job publications",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_publish_latency_seconds",
			Help:    "Latency of job publication",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Number of notification dispatch outcomes",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.scheduled, m.skipped, m.cancelled, m.claimed, m.published, m.publishFailed, m.publishLatency, m.notifications)
	return m
}

func (m *PromMetrics) ReminderScheduled() {
	m.scheduled.Inc()
}
func (m *PromMetrics) ReminderSkipped() {
	m.skipped.Inc()
}
func (m *PromMetrics) ReminderCancelled() {
	m.cancelled.Inc()
}
func (m *PromMetrics) JobsClaimed(n int) {
	m.claimed.Add(float64(n))
}
func (m *PromMetrics) JobPublished() {
	m.published.Inc()
}
func (m *PromMetrics) JobPublishFailed() {
	m.publishFailed.Inc()
}
func (m *PromMetrics) PublishLatency(d time.Duration) {
	m.publishLatency.Observe(d.Seconds())
}
func (m *PromMetrics) NotificationPosted() {
	m.notifications.WithLabelValues("posted").Inc()
}
func (m *PromMetrics) NotificationSuppressed() {
	m.notifications.WithLabelValues("suppressed").Inc()
}
func (m *PromMetrics) NotificationFailed() {
	m.notifications.WithLabelValues("failed").Inc()
}
