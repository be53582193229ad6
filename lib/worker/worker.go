package worker

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/observer/kafka"
	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// MaxRetries bounds how often a failing job is re-submitted.
const MaxRetries = 5

type Handler func(ctx context.Context, job domain.Job) error

type consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

type rescheduler interface {
	Submit(ctx context.Context, job domain.Job, delay time.Duration) error
}

// Worker consumes the job topic and executes the handler registered for each
// job name. Workers can be run in parallel within one consumer group.
type Worker struct {
	client   consumer
	queue    rescheduler
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns a worker; client may be nil when the worker is only used as a
// local transport through PublishSync.
func New(client consumer, queue rescheduler) *Worker {
	return &Worker{client: client, queue: queue, handlers: make(map[string]Handler)}
}

func (w *Worker) RegisterHandler(name string, hdl Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = hdl
}

func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		fetches := w.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			log.Println("consuming client closed, returning")
			return
		}
		fetches.EachError(func(t string, p int32, err error) {
			log.Printf("fetch err topic %s partition %d: %v", t, p, err)
		})
		if errs := fetches.Errors(); len(errs) > 0 {
			continue
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			job := kafka.RecToJob(record)
			w.Dispatch(ctx, job)
			if err := w.client.CommitRecords(ctx, record); err != nil {
				log.Printf("commit record for %s/%s: %v", job.Name, job.Key, err)
				break
			}
		}
	}
}

// PublishSync makes the worker a local transport: the job is handled in
// process instead of going through Kafka.
func (w *Worker) PublishSync(ctx context.Context, job domain.Job) error {
	w.Dispatch(ctx, job)
	return nil
}

// Dispatch runs the handler for job. A failing job is re-submitted with
// backoff until MaxRetries is reached.
func (w *Worker) Dispatch(ctx context.Context, job domain.Job) {
	w.mu.RLock()
	hdl, ok := w.handlers[job.Name]
	w.mu.RUnlock()
	if !ok {
		log.Printf("Unknown job: %q", job.Name)
		return
	}

	err := hdl(ctx, job)
	if err == nil {
		return
	}
	log.Printf("handle %s/%s: %v", job.Name, job.Key, err)
	if job.RetryCount >= MaxRetries {
		log.Printf("giving up on %s/%s after %d retries", job.Name, job.Key, job.RetryCount)
		return
	}
	delay := setReschedule(&job, err)
	if err := w.queue.Submit(ctx, job, delay); err != nil {
		log.Printf("reschedule %s/%s: %v", job.Name, job.Key, err)
		return
	}
	log.Printf("Rescheduled %s/%s in %s (retry %d)", job.Name, job.Key, delay, job.RetryCount)
}

func setReschedule(job *domain.Job, err error) time.Duration {
	job.RetryCount++
	job.RetryReason = err.Error()
	return calculateBackoff(job.RetryCount, 30*time.Second, 5*time.Minute)
}

// calculateBackoff returns a full-jitter exponential delay capped at maxDelay.
func calculateBackoff(retryCount uint16, baseDelay, maxDelay time.Duration) time.Duration {
	expFactor := math.Pow(2, float64(retryCount))
	delay := time.Duration(float64(baseDelay) * expFactor)

	delay = time.Duration(rand.Float64() * float64(delay))

	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
