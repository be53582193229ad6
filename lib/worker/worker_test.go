package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/observer/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
)

type submission struct {
	job   domain.Job
	delay time.Duration
}

type mockQueue struct {
	submitted []submission
	err       error
}

func (m *mockQueue) Submit(_ context.Context, job domain.Job, delay time.Duration) error {
	m.submitted = append(m.submitted, submission{job: job, delay: delay})
	return m.err
}

type mockConsumer struct {
	batches   []kgo.Fetches
	polls     int
	committed []*kgo.Record
	cancel    context.CancelFunc
}

func (m *mockConsumer) PollFetches(context.Context) kgo.Fetches {
	m.polls++
	if len(m.batches) == 0 {
		m.cancel()
		return kgo.Fetches{}
	}
	f := m.batches[0]
	m.batches = m.batches[1:]
	return f
}

func (m *mockConsumer) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	m.committed = append(m.committed, rs...)
	return nil
}

func fetchesOf(recs ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      "reminders",
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: recs}},
	}}}}
}

func record(job domain.Job) *kgo.Record {
	rec := kafka.JobToRec(job)
	return &rec
}

func TestDispatch_CallsRegisteredHandler(t *testing.T) {
	q := &mockQueue{}
	w := New(nil, q)
	var got domain.Job
	w.RegisterHandler(domain.JobTaskReminder, func(_ context.Context, job domain.Job) error {
		got = job
		return nil
	})

	w.Dispatch(context.Background(), domain.Job{Key: "task-reminder:1", Name: domain.JobTaskReminder, Payload: []byte("x")})

	if got.Key != "task-reminder:1" || string(got.Payload) != "x" {
		t.Errorf("handler got %+v", got)
	}
	if len(q.submitted) != 0 {
		t.Errorf("expected no reschedule, got %d", len(q.submitted))
	}
}

func TestDispatch_UnknownJobIsDropped(t *testing.T) {
	q := &mockQueue{}
	w := New(nil, q)
	w.Dispatch(context.Background(), domain.Job{Key: "k", Name: "Nope"})
	if len(q.submitted) != 0 {
		t.Errorf("expected no reschedule, got %d", len(q.submitted))
	}
}

func TestDispatch_FailureReschedules(t *testing.T) {
	q := &mockQueue{}
	w := New(nil, q)
	w.RegisterHandler("Flaky", func(context.Context, domain.Job) error { return errors.New("boom") })

	w.Dispatch(context.Background(), domain.Job{Key: "k", Name: "Flaky"})

	if len(q.submitted) != 1 {
		t.Fatalf("expected 1 reschedule, got %d", len(q.submitted))
	}
	s := q.submitted[0]
	if s.job.RetryCount != 1 || s.job.RetryReason != "boom" {
		t.Errorf("unexpected retry state %d %q", s.job.RetryCount, s.job.RetryReason)
	}
	if s.delay < 0 || s.delay > 5*time.Minute {
		t.Errorf("delay %s out of bounds", s.delay)
	}
}

func TestDispatch_GivesUpAfterMaxRetries(t *testing.T) {
	q := &mockQueue{}
	w := New(nil, q)
	w.RegisterHandler("Flaky", func(context.Context, domain.Job) error { return errors.New("boom") })

	w.Dispatch(context.Background(), domain.Job{Key: "k", Name: "Flaky", RetryCount: MaxRetries})

	if len(q.submitted) != 0 {
		t.Errorf("expected no reschedule, got %d", len(q.submitted))
	}
}

func TestPublishSync_DispatchesLocally(t *testing.T) {
	w := New(nil, &mockQueue{})
	calls := 0
	w.RegisterHandler("Local", func(context.Context, domain.Job) error {
		calls++
		return nil
	})
	if err := w.PublishSync(context.Background(), domain.Job{Key: "k", Name: "Local"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRun_HandlesAndCommitsRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &mockConsumer{cancel: cancel, batches: []kgo.Fetches{fetchesOf(
		record(domain.Job{Key: "task-reminder:1", Name: domain.JobTaskReminder, Revision: 1}),
		record(domain.Job{Key: "task-reminder:2", Name: domain.JobTaskReminder, Revision: 2}),
	)}}
	w := New(c, &mockQueue{})
	var keys []string
	w.RegisterHandler(domain.JobTaskReminder, func(_ context.Context, job domain.Job) error {
		keys = append(keys, job.Key)
		return nil
	})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if len(keys) != 2 || keys[0] != "task-reminder:1" || keys[1] != "task-reminder:2" {
		t.Errorf("unexpected handled keys %v", keys)
	}
	if len(c.committed) != 2 {
		t.Errorf("expected 2 commits, got %d", len(c.committed))
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	for i := uint16(0); i < 20; i++ {
		d := calculateBackoff(i, 30*time.Second, time.Minute)
		if d < 0 || d > time.Minute {
			t.Fatalf("retry %d: delay %s out of bounds", i, d)
		}
	}
}
