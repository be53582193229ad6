package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ecociel/remind/gateway/rest"
	"github.com/ecociel/remind/lib/config"
	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/kafkaclient"
	"github.com/ecociel/remind/lib/notify"
	notifyredis "github.com/ecociel/remind/lib/notify/redis"
	"github.com/ecociel/remind/lib/observer"
	"github.com/ecociel/remind/lib/observer/kafka"
	pgqueue "github.com/ecociel/remind/lib/queue/postgres"
	redisqueue "github.com/ecociel/remind/lib/queue/redis"
	"github.com/ecociel/remind/lib/reminder"
	"github.com/ecociel/remind/lib/scheduler"
	"github.com/ecociel/remind/lib/store"
	"github.com/ecociel/remind/lib/tasks"
	"github.com/ecociel/remind/lib/undo"
	"github.com/ecociel/remind/lib/worker"
	"github.com/ecociel/remind/metrics"
	"github.com/ecociel/remind/repos/sql"
	"github.com/ecociel/remind/repos/sqlite"
	"github.com/ecociel/remind/uc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

type publisher interface {
	PublishSync(ctx context.Context, job domain.Job) error
}

type jobQueue interface {
	scheduler.JobQueue
	ClaimDueJobs(ctx context.Context, limit int) ([]domain.Job, error)
	Delete(ctx context.Context, key string, revision int64) error
}

// app holds the process-wide services of one command. Everything is created
// lazily so that each command opens only the connections it needs.
type app struct {
	cfg     config.Config
	reg     *prometheus.Registry
	metrics *metrics.PromMetrics

	pool    *pgxpool.Pool
	rdb     *redis.Client
	queue   jobQueue
	inbox   *notifyredis.Inbox
	closers []func()
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.SetupLogging(); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	return &app{cfg: cfg, reg: reg, metrics: metrics.NewPromMetrics(reg)}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := pgxpool.New(ctx, a.cfg.DbConnectionUri)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

func (a *app) redis() *redis.Client {
	if a.rdb == nil {
		a.rdb = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = a.rdb.Close() })
	}
	return a.rdb
}

func (a *app) taskBackend(ctx context.Context) (store.Backend, error) {
	if a.cfg.StoreDriver == "postgres" {
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return sql.NewPostgresRepo(pool), nil
	}
	db, err := sqlite.Open(a.cfg.SqlitePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	return db, nil
}

func (a *app) jobQueue(ctx context.Context) (jobQueue, error) {
	if a.queue != nil {
		return a.queue, nil
	}
	if a.cfg.QueueDriver == "postgres" {
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		a.queue = pgqueue.New(pool, a.cfg.ClaimLease)
	} else {
		a.queue = redisqueue.New(a.redis(), "", a.cfg.ClaimLease)
	}
	return a.queue, nil
}

func (a *app) notificationInbox() *notifyredis.Inbox {
	if a.inbox == nil {
		a.inbox = notifyredis.New(a.redis(), "")
	}
	return a.inbox
}

func (a *app) dispatcher() *notify.Dispatcher {
	var poster notify.Poster = notify.LogPoster{}
	if a.cfg.NotifyBackend == "redis" {
		poster = a.notificationInbox()
	}
	var gate notify.Gate
	switch a.cfg.NotificationPermission {
	case "granted":
		gate = notify.Static(true)
	case "denied":
		gate = notify.Static(false)
	case "redis":
		gate = a.notificationInbox()
	default:
		gate = notify.AlwaysGranted{}
	}
	return notify.NewDispatcher(poster, gate, a.metrics)
}

// worker returns a worker executing reminders. client may be nil for the
// local transport.
func (a *app) worker(ctx context.Context, client *kgo.Client) (*worker.Worker, error) {
	q, err := a.jobQueue(ctx)
	if err != nil {
		return nil, err
	}
	d := a.dispatcher()
	d.Prepare(ctx)
	// A nil *kgo.Client must not end up in the consumer interface.
	w := worker.New(nil, q)
	if client != nil {
		w = worker.New(client, q)
	}
	w.RegisterHandler(domain.JobTaskReminder, reminder.NewExecutor(d).Handle)
	return w, nil
}

func (a *app) kafkaPublisher() (*kafka.Publisher, error) {
	client, err := kafkaclient.NewProducer(a.cfg.QueueHostPorts, a.cfg.RemindersTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return kafka.New(client, a.cfg.RemindersTopic), nil
}

func (a *app) kafkaConsumer() (*kgo.Client, error) {
	client, err := kafkaclient.NewConsumer(a.cfg.QueueHostPorts, a.cfg.ConsumerGroup, a.cfg.RemindersTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *app) observer(ctx context.Context, pub publisher) (*observer.Observer, error) {
	q, err := a.jobQueue(ctx)
	if err != nil {
		return nil, err
	}
	return observer.New(a.cfg.ObserverLimit, a.cfg.ObserverInterval, q, pub).WithMetrics(a.metrics), nil
}

func (a *app) service(ctx context.Context) (*rest.Service, error) {
	backend, err := a.taskBackend(ctx)
	if err != nil {
		return nil, err
	}
	q, err := a.jobQueue(ctx)
	if err != nil {
		return nil, err
	}
	repo := tasks.NewRepository(store.New(backend))
	sched := scheduler.New(q, a.metrics)
	window := undo.New(a.cfg.UndoWindow)
	policy := uc.Policy{CancelOnDelete: a.cfg.CancelOnDelete, RescheduleOnUndo: a.cfg.RescheduleOnUndo}

	cmds := rest.Commands{
		AddTask:             uc.MakeAddTaskUseCase(repo, sched, time.Now),
		UpdateTask:          uc.MakeUpdateTaskUseCase(repo, sched, time.Now),
		DeleteTask:          uc.MakeDeleteTaskUseCase(repo, sched, window, policy),
		UndoDelete:          uc.MakeUndoByTokenUseCase(window, uc.MakeUndoDeleteUseCase(repo, sched, policy, time.Now)),
		GetTaskOnce:         uc.MakeGetTaskOnceUseCase(repo),
		ListTasks:           uc.MakeListTasksUseCase(repo),
		SubscribeAllTasks:   uc.MakeSubscribeAllTasksUseCase(repo),
		SubscribeByPriority: uc.MakeSubscribeByPriorityUseCase(repo),
	}
	var inbox rest.Inbox
	if a.cfg.NotifyBackend == "redis" {
		inbox = a.notificationInbox()
	}
	return rest.NewService(cmds, inbox), nil
}

// serve runs h on addr until ctx is done.
func serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", addr, err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})
}
