// Package postgres keeps deferred jobs in a PostgreSQL table, one row per job key.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

//go:embed schema.sql
var Schema string

type Queue struct {
	pool  *pgxpool.Pool
	lease time.Duration
	now   func() time.Time
}

// New returns a queue whose claims expire after lease, so a job claimed by a
// crashed observer becomes due again.
func New(pool *pgxpool.Pool, lease time.Duration) *Queue {
	return &Queue{pool: pool, lease: lease, now: time.Now}
}

func (q *Queue) Migrate(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate job table: %w", err)
	}
	return nil
}

// Submit upserts the job by key. A replaced job gets a new revision and
// loses any claim.
func (q *Queue) Submit(ctx context.Context, job domain.Job, delay time.Duration) error {
	const stmt = `
        INSERT INTO job
          (key, name, payload, due, retry_count, retry_reason)
        VALUES
          ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (key) DO UPDATE SET
          name = EXCLUDED.name,
          payload = EXCLUDED.payload,
          due = EXCLUDED.due,
          retry_count = EXCLUDED.retry_count,
          retry_reason = EXCLUDED.retry_reason,
          revision = nextval('job_revision_seq'),
          claimed_until = NULL
        `
	due := q.now().Add(delay)
	_, err := q.pool.Exec(ctx, stmt, job.Key, job.Name, job.Payload, due, int(job.RetryCount), job.RetryReason)
	if err != nil {
		return fmt.Errorf("submit job %s: %w", job.Key, err)
	}
	log.Debugf("Submitted %s/%s due %s", job.Name, job.Key, due.Format(time.RFC3339))
	return nil
}

func (q *Queue) Cancel(ctx context.Context, key string) error {
	const stmt = `
      DELETE FROM job WHERE key = $1`
	if _, err := q.pool.Exec(ctx, stmt, key); err != nil {
		return fmt.Errorf("cancel job %s: %w", key, err)
	}
	return nil
}

// ClaimDueJobs leases up to limit due jobs that are not leased already.
func (q *Queue) ClaimDueJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	const stmt = `
    UPDATE job SET claimed_until = $2
    WHERE key IN (
      SELECT key FROM job
      WHERE due <= $1 AND (claimed_until IS NULL OR claimed_until < $1)
      ORDER BY due
      LIMIT $3
      FOR UPDATE SKIP LOCKED
    )
    RETURNING key, name, payload, due, revision, retry_count, retry_reason
     `
	now := q.now()
	rows, err := q.pool.Query(ctx, stmt, now, now.Add(q.lease), limit)
	if err != nil {
		return nil, fmt.Errorf("query claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows claim due jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes the job only while it still has the given revision.
func (q *Queue) Delete(ctx context.Context, key string, revision int64) error {
	const stmt = `
      DELETE FROM job WHERE key = $1 AND revision = $2`
	if _, err := q.pool.Exec(ctx, stmt, key, revision); err != nil {
		return fmt.Errorf("delete job %s@%d: %w", key, revision, err)
	}
	return nil
}

func (q *Queue) Lookup(ctx context.Context, key string) (domain.Job, bool, error) {
	const stmt = `
    SELECT key, name, payload, due, revision, retry_count, retry_reason
    FROM job
    WHERE key = $1
     `
	job, err := scanJob(q.pool.QueryRow(ctx, stmt, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("lookup job %s: %w", key, err)
	}
	return job, true, nil
}

func scanJob(row pgx.Row) (job domain.Job, err error) {
	var retryCount int32
	err = row.Scan(&job.Key, &job.Name, &job.Payload, &job.Due, &job.Revision, &retryCount, &job.RetryReason)
	job.RetryCount = uint16(retryCount)
	return
}
