package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/notify"
	notifyredis "github.com/ecociel/remind/lib/notify/redis"
	"github.com/ecociel/remind/lib/scheduler"
	"github.com/ecociel/remind/lib/store"
	"github.com/ecociel/remind/lib/tasks"
	"github.com/ecociel/remind/lib/undo"
	"github.com/ecociel/remind/repos/sqlite"
	"github.com/ecociel/remind/uc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	pending map[string]time.Duration
}

func (m *mockQueue) Submit(_ context.Context, job domain.Job, delay time.Duration) error {
	m.pending[job.Key] = delay
	return nil
}

func (m *mockQueue) Cancel(_ context.Context, key string) error {
	delete(m.pending, key)
	return nil
}

type fixture struct {
	handler http.Handler
	queue   *mockQueue
	inbox   *notifyredis.Inbox
}

func setup(t *testing.T) fixture {
	t.Helper()
	backend, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	inbox := notifyredis.New(client, "")

	repo := tasks.NewRepository(store.New(backend))
	q := &mockQueue{pending: make(map[string]time.Duration)}
	sched := scheduler.New(q, nil)
	window := undo.New(time.Minute)
	policy := uc.Policy{CancelOnDelete: true, RescheduleOnUndo: true}

	svc := NewService(Commands{
		AddTask:             uc.MakeAddTaskUseCase(repo, sched, time.Now),
		UpdateTask:          uc.MakeUpdateTaskUseCase(repo, sched, time.Now),
		DeleteTask:          uc.MakeDeleteTaskUseCase(repo, sched, window, policy),
		UndoDelete:          uc.MakeUndoByTokenUseCase(window, uc.MakeUndoDeleteUseCase(repo, sched, policy, time.Now)),
		GetTaskOnce:         uc.MakeGetTaskOnceUseCase(repo),
		ListTasks:           uc.MakeListTasksUseCase(repo),
		SubscribeAllTasks:   uc.MakeSubscribeAllTasksUseCase(repo),
		SubscribeByPriority: uc.MakeSubscribeByPriorityUseCase(repo),
	}, inbox)
	return fixture{handler: svc.Container(prometheus.NewRegistry()), queue: q, inbox: inbox}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func millis(d time.Duration) *int64 {
	ms := time.Now().Add(d).UnixMilli()
	return &ms
}

func TestAddAndGetTask(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/tasks", TaskDTO{Title: "Buy milk", Priority: domain.PriorityLow, DueDate: millis(time.Hour)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TaskDTO](t, rec)
	require.NotZero(t, created.ID)
	assert.Contains(t, f.queue.pending, domain.ReminderKey(created.ID))

	rec = f.do(t, http.MethodGet, "/tasks/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[TaskDTO](t, rec)
	assert.Equal(t, created, got)
}

func TestAddTask_EmptyTitle(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/tasks", TaskDTO{Title: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTask_NotFound(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/tasks/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateTask(t *testing.T) {
	f := setup(t)
	created := decode[TaskDTO](t, f.do(t, http.MethodPost, "/tasks", TaskDTO{Title: "Draft", Priority: domain.PriorityMedium}))
	assert.Empty(t, f.queue.pending)

	rec := f.do(t, http.MethodPut, "/tasks/"+itoa(created.ID), TaskDTO{Title: "Final", Priority: domain.PriorityHigh, DueDate: millis(time.Minute)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.queue.pending, 1)

	got := decode[TaskDTO](t, f.do(t, http.MethodGet, "/tasks/"+itoa(created.ID), nil))
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, domain.PriorityHigh, got.Priority)

	rec = f.do(t, http.MethodPut, "/tasks/999", TaskDTO{Title: "Ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAndUndo(t *testing.T) {
	f := setup(t)
	created := decode[TaskDTO](t, f.do(t, http.MethodPost, "/tasks", TaskDTO{Title: "Call mom", DueDate: millis(time.Hour)}))

	rec := f.do(t, http.MethodDelete, "/tasks/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decode[DeletionDTO](t, rec)
	assert.Equal(t, created, d.Task)
	require.NotEmpty(t, d.UndoToken)
	assert.Empty(t, f.queue.pending)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/tasks/"+itoa(created.ID), nil).Code)

	rec = f.do(t, http.MethodPost, "/undo/"+d.UndoToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, created, decode[TaskDTO](t, rec))
	assert.Len(t, f.queue.pending, 1)

	rec = f.do(t, http.MethodPost, "/undo/"+d.UndoToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasks(t *testing.T) {
	f := setup(t)
	for _, in := range []TaskDTO{
		{Title: "walk dog", Priority: domain.PriorityLow},
		{Title: "Buy milk", Priority: domain.PriorityHigh},
		{Title: "Buy bread", Priority: domain.PriorityHigh},
	} {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tasks", in).Code)
	}

	all := decode[[]TaskDTO](t, f.do(t, http.MethodGet, "/tasks", nil))
	assert.Len(t, all, 3)

	high := decode[[]TaskDTO](t, f.do(t, http.MethodGet, "/tasks?priority=high&sort=title_asc", nil))
	require.Len(t, high, 2)
	assert.Equal(t, "Buy bread", high[0].Title)

	found := decode[[]TaskDTO](t, f.do(t, http.MethodGet, "/tasks?q=DOG", nil))
	require.Len(t, found, 1)
	assert.Equal(t, "walk dog", found[0].Title)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tasks?priority=urgent", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tasks?sort=due", nil).Code)
}

func TestStreamTasks(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/tasks/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "[]", strings.TrimSpace(lines.Text()))

	body := strings.NewReader(`{"title":"Streamed","priority":1}`)
	post, err := http.Post(srv.URL+"/tasks", "application/json", body)
	require.NoError(t, err)
	_ = post.Body.Close()
	require.Equal(t, http.StatusCreated, post.StatusCode)

	require.True(t, lines.Scan())
	var snap []TaskDTO
	require.NoError(t, json.Unmarshal(lines.Bytes(), &snap))
	require.Len(t, snap, 1)
	assert.Equal(t, "Streamed", snap[0].Title)
}

func TestNotifications(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPut, "/notifications/permission", PermissionDTO{Granted: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	granted, err := f.inbox.Granted(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, notify.NewDispatcher(f.inbox, f.inbox, nil).Notify(ctx, 4, "Task Reminder", `Reminder: "Pay rent" is due!`))

	list := decode[NotificationsDTO](t, f.do(t, http.MethodGet, "/notifications", nil))
	require.Len(t, list.Items, 1)
	assert.Equal(t, int64(4), list.Items[0].ID)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/notifications/4", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/notifications/4", nil).Code)
}

func TestMetricsAndHealth(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
