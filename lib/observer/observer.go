// Package observer moves due jobs from the job queue onto the transport.
package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/metrics"
	log "github.com/sirupsen/logrus"
)

type publisher interface {
	PublishSync(ctx context.Context, job domain.Job) error
}

type store interface {
	ClaimDueJobs(ctx context.Context, limit int) ([]domain.Job, error)
	Delete(ctx context.Context, key string, revision int64) error
}

type Observer struct {
	limit     int
	interval  time.Duration
	store     store
	publisher publisher
	metrics   metrics.SchedulerMetrics
}

func New(limit int, interval time.Duration, store store, publisher publisher) *Observer {
	return &Observer{
		limit:     limit,
		interval:  interval,
		store:     store,
		publisher: publisher,
		metrics:   metrics.Nop{},
	}
}

func (o *Observer) WithMetrics(m metrics.SchedulerMetrics) *Observer {
	o.metrics = m
	return o
}

func (o *Observer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.interval):
			if err := o.process(ctx); err != nil {
				log.Printf("observer process error: %v", err)
			}
		}
	}
}

// process publishes every claimed job and deletes the revision it published.
// A job that fails to publish stays leased and is retried once the lease
// expires.
func (o *Observer) process(ctx context.Context) error {
	jobs, err := o.store.ClaimDueJobs(ctx, o.limit)
	if err != nil {
		return fmt.Errorf("fetching due jobs: %w", err)
	}
	o.metrics.JobsClaimed(len(jobs))
	if len(jobs) > 0 {
		log.Debugf("claimed %d due jobs", len(jobs))
	}

	for _, job := range jobs {
		start := time.Now()
		if err := o.publisher.PublishSync(ctx, job); err != nil {
			o.metrics.JobPublishFailed()
			log.Printf("publish failed for %s: %v", job.Key, err)
			continue
		}
		o.metrics.PublishLatency(time.Since(start))
		o.metrics.JobPublished()
		// On failure the lease runs out and the same revision is published again.
		if err := o.store.Delete(ctx, job.Key, job.Revision); err != nil {
			return fmt.Errorf("deletion failed for %s: %w", job.Key, err)
		}
	}
	return nil
}
