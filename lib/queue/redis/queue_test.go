package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ecociel/remind/lib/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time      { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func setupTestQueue(t *testing.T) (*Queue, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	q := New(client, "", time.Minute)
	q.now = c.now
	return q, c
}

func reminder(id int64, title string) domain.Job {
	payload, _ := domain.ReminderPayload{TaskID: id, TaskTitle: title}.Marshal()
	return domain.Job{Key: domain.ReminderKey(id), Name: domain.JobTaskReminder, Payload: payload}
}

func TestSubmit_Pending(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(1, "Buy milk"), time.Hour))

	job, ok, err := q.Lookup(ctx, domain.ReminderKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobTaskReminder, job.Name)
	assert.Equal(t, c.t.Add(time.Hour), job.Due)
	assert.NotZero(t, job.Revision)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmit_SameKeySupersedes(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(5, "Old"), time.Minute))
	first, _, err := q.Lookup(ctx, domain.ReminderKey(5))
	require.NoError(t, err)
	require.NoError(t, q.Submit(ctx, reminder(5, "New"), 2*time.Minute))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, ok, err := q.Lookup(ctx, domain.ReminderKey(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.t.Add(2*time.Minute), job.Due)
	assert.Greater(t, job.Revision, first.Revision)
	payload, err := domain.UnmarshalReminderPayload(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "New", payload.TaskTitle)
}

func TestClaimDueJobs_OnlyDue(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(1, "soon"), time.Second))
	require.NoError(t, q.Submit(ctx, reminder(2, "later"), time.Hour))

	jobs, err := q.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	c.add(2 * time.Second)
	jobs, err = q.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.ReminderKey(1), jobs[0].Key)
	assert.Equal(t, domain.JobTaskReminder, jobs[0].Name)
}

func TestClaimDueJobs_LeaseHidesUntilExpired(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(1, "x"), time.Second))
	c.add(time.Second)

	jobs, err := q.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	jobs, err = q.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "leased job must not be claimed twice")

	c.add(time.Minute)
	jobs, err = q.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "job must be claimable again after the lease")
}

func TestClaimDueJobs_Limit(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, q.Submit(ctx, reminder(id, "x"), time.Duration(id)*time.Second))
	}
	c.add(time.Hour)

	jobs, err := q.ClaimDueJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.ReminderKey(1), jobs[0].Key)
	assert.Equal(t, domain.ReminderKey(2), jobs[1].Key)

	jobs, err = q.ClaimDueJobs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDelete_RevisionGuard(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(9, "first"), time.Second))
	c.add(time.Second)
	claimed, err := q.ClaimDueJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// rescheduled while the claimed revision was in flight
	require.NoError(t, q.Submit(ctx, reminder(9, "second"), time.Hour))
	require.NoError(t, q.Delete(ctx, claimed[0].Key, claimed[0].Revision))

	job, ok, err := q.Lookup(ctx, domain.ReminderKey(9))
	require.NoError(t, err)
	require.True(t, ok, "superseding job must survive deletion of the old revision")
	payload, err := domain.UnmarshalReminderPayload(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "second", payload.TaskTitle)

	require.NoError(t, q.Delete(ctx, job.Key, job.Revision))
	_, ok, err = q.Lookup(ctx, domain.ReminderKey(9))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancel(t *testing.T) {
	q, c := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(7, "x"), time.Second))
	require.NoError(t, q.Cancel(ctx, domain.ReminderKey(7)))
	require.NoError(t, q.Cancel(ctx, domain.ReminderKey(8)), "cancelling an unknown key is fine")

	c.add(time.Hour)
	jobs, err := q.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRevisionsStayUniqueAcrossCancel(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, reminder(3, "a"), time.Minute))
	before, _, err := q.Lookup(ctx, domain.ReminderKey(3))
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, domain.ReminderKey(3)))
	require.NoError(t, q.Submit(ctx, reminder(3, "b"), time.Minute))

	require.NoError(t, q.Delete(ctx, before.Key, before.Revision))
	_, ok, err := q.Lookup(ctx, domain.ReminderKey(3))
	require.NoError(t, err)
	assert.True(t, ok)
}
