// Package redis keeps deferred jobs in Redis: a sorted set ordered by due
// time, a hash of encoded jobs and a hash of job revisions. Durability is
// whatever persistence the Redis server is configured with (AOF recommended).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const DefaultPrefix = "remind:jobs:"

type storedJob struct {
	Name        string `json:"name"`
	Payload     []byte `json:"payload"`
	Due         int64  `json:"due"`
	RetryCount  uint16 `json:"retryCount,omitempty"`
	RetryReason string `json:"retryReason,omitempty"`
}

// KEYS: due zset, jobs hash, revision counter, revisions hash
// ARGV: key, encoded job, due ms
var submitScript = redis.NewScript(`
local rev = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[4], ARGV[1], rev)
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return rev
`)

// KEYS: due zset, jobs hash, revisions hash
// ARGV: now ms, lease-until ms, limit
// Returns key, encoded job, revision triples.
var claimScript = redis.NewScript(`
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
local out = {}
for _, k in ipairs(keys) do
  local v = redis.call('HGET', KEYS[2], k)
  if v then
    redis.call('ZADD', KEYS[1], ARGV[2], k)
    table.insert(out, k)
    table.insert(out, v)
    table.insert(out, redis.call('HGET', KEYS[3], k) or '0')
  else
    redis.call('ZREM', KEYS[1], k)
  end
end
return out
`)

// KEYS: due zset, jobs hash, revisions hash
// ARGV: key, revision
var deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) == ARGV[2] then
  redis.call('ZREM', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[2], ARGV[1])
  redis.call('HDEL', KEYS[3], ARGV[1])
  return 1
end
return 0
`)

type Queue struct {
	client    redis.UniversalClient
	due       string
	jobs      string
	counter   string
	revisions string
	lease     time.Duration
	now       func() time.Time
}

func New(client redis.UniversalClient, prefix string, lease time.Duration) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Queue{
		client:    client,
		due:       prefix + "due",
		jobs:      prefix + "data",
		counter:   prefix + "revision",
		revisions: prefix + "revisions",
		lease:     lease,
		now:       time.Now,
	}
}

func (q *Queue) Submit(ctx context.Context, job domain.Job, delay time.Duration) error {
	due := q.now().Add(delay)
	data, err := json.Marshal(storedJob{
		Name:        job.Name,
		Payload:     job.Payload,
		Due:         due.UnixMilli(),
		RetryCount:  job.RetryCount,
		RetryReason: job.RetryReason,
	})
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.Key, err)
	}
	keys := []string{q.due, q.jobs, q.counter, q.revisions}
	if err := submitScript.Run(ctx, q.client, keys, job.Key, data, due.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("submit job %s: %w", job.Key, err)
	}
	log.Debugf("Submitted %s/%s due %s", job.Name, job.Key, due.Format(time.RFC3339))
	return nil
}

func (q *Queue) Cancel(ctx context.Context, key string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.due, key)
		pipe.HDel(ctx, q.jobs, key)
		pipe.HDel(ctx, q.revisions, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", key, err)
	}
	return nil
}

// ClaimDueJobs leases up to limit due jobs. A leased job is due again once
// the lease runs out unless it was deleted or replaced meanwhile.
func (q *Queue) ClaimDueJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := q.now()
	keys := []string{q.due, q.jobs, q.revisions}
	res, err := claimScript.Run(ctx, q.client, keys, now.UnixMilli(), now.Add(q.lease).UnixMilli(), limit).Slice()
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(res)%3 != 0 {
		return nil, fmt.Errorf("claim due jobs: unexpected reply length %d", len(res))
	}

	jobs := make([]domain.Job, 0, len(res)/3)
	for i := 0; i < len(res); i += 3 {
		key, _ := res[i].(string)
		data, _ := res[i+1].(string)
		rev, _ := res[i+2].(string)
		job, err := decodeJob(key, data, rev)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Delete removes the job only while it still has the given revision.
func (q *Queue) Delete(ctx context.Context, key string, revision int64) error {
	keys := []string{q.due, q.jobs, q.revisions}
	if err := deleteScript.Run(ctx, q.client, keys, key, revision).Err(); err != nil {
		return fmt.Errorf("delete job %s@%d: %w", key, revision, err)
	}
	return nil
}

func (q *Queue) Lookup(ctx context.Context, key string) (domain.Job, bool, error) {
	data, err := q.client.HGet(ctx, q.jobs, key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("lookup job %s: %w", key, err)
	}
	rev, err := q.client.HGet(ctx, q.revisions, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Job{}, false, fmt.Errorf("lookup revision of %s: %w", key, err)
	}
	job, err := decodeJob(key, data, rev)
	if err != nil {
		return domain.Job{}, false, err
	}
	return job, true, nil
}

// Len returns the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, q.jobs).Result()
}

func decodeJob(key, data, rev string) (domain.Job, error) {
	var sj storedJob
	if err := json.Unmarshal([]byte(data), &sj); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s: %w", key, err)
	}
	job := domain.Job{
		Key:         key,
		Name:        sj.Name,
		Payload:     sj.Payload,
		Due:         time.UnixMilli(sj.Due).UTC(),
		RetryCount:  sj.RetryCount,
		RetryReason: sj.RetryReason,
	}
	if rev != "" {
		r, err := strconv.ParseInt(rev, 10, 64)
		if err != nil {
			return domain.Job{}, fmt.Errorf("decode revision of %s: %w", key, err)
		}
		job.Revision = r
	}
	return job, nil
}
