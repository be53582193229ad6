package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/notify"
	"github.com/ecociel/remind/lib/store"
	"github.com/ecociel/remind/lib/tasklist"
	"github.com/ecociel/remind/lib/undo"
	"github.com/ecociel/remind/uc"
	"github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Commands is the command surface exposed over HTTP.
type Commands struct {
	AddTask             uc.AddTaskUseCase
	UpdateTask          uc.UpdateTaskUseCase
	DeleteTask          uc.DeleteTaskUseCase
	UndoDelete          uc.UndoByTokenUseCase
	GetTaskOnce         uc.GetTaskOnceUseCase
	ListTasks           uc.ListTasksUseCase
	SubscribeAllTasks   uc.SubscribeAllTasksUseCase
	SubscribeByPriority uc.SubscribeByPriorityUseCase
}

type Inbox interface {
	List(ctx context.Context) ([]notify.Notification, error)
	Dismiss(ctx context.Context, id int64) (bool, error)
	SetPermission(ctx context.Context, granted bool) error
}

type Service struct {
	cmds  Commands
	inbox Inbox
}

// NewService serves the notification routes only when inbox is not nil.
func NewService(cmds Commands, inbox Inbox) *Service {
	return &Service{cmds: cmds, inbox: inbox}
}

// Container mounts all web services plus /metrics and /healthz.
func (s *Service) Container(reg prometheus.Gatherer) *restful.Container {
	c := restful.NewContainer()
	c.Add(s.tasksWebService())
	c.Add(s.undoWebService())
	if s.inbox != nil {
		c.Add(s.notificationsWebService())
	}
	if reg != nil {
		c.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	c.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	return c
}

func (s *Service) tasksWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/tasks").Produces(restful.MIME_JSON)

	ws.Route(ws.GET("").To(s.listTasks).
		Param(ws.QueryParameter("priority", "0, 1 or 2, or low, medium, high")).
		Param(ws.QueryParameter("q", "case-insensitive title substring")).
		Param(ws.QueryParameter("sort", "title_asc or title_desc")).
		Writes([]TaskDTO{}))
	ws.Route(ws.POST("").To(s.addTask).Consumes(restful.MIME_JSON).
		Reads(TaskDTO{}).Writes(TaskDTO{}))
	ws.Route(ws.GET("/stream").To(s.streamTasks).
		Param(ws.QueryParameter("priority", "restrict the stream to one priority")))
	ws.Route(ws.GET("/{id:[0-9]+}").To(s.getTask).
		Param(ws.PathParameter("id", "task id")).Writes(TaskDTO{}))
	ws.Route(ws.PUT("/{id:[0-9]+}").To(s.updateTask).Consumes(restful.MIME_JSON).
		Param(ws.PathParameter("id", "task id")).Reads(TaskDTO{}).Writes(TaskDTO{}))
	ws.Route(ws.DELETE("/{id:[0-9]+}").To(s.deleteTask).
		Param(ws.PathParameter("id", "task id")).Writes(DeletionDTO{}))
	return ws
}

func (s *Service) undoWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/undo").Produces(restful.MIME_JSON)
	ws.Route(ws.POST("/{token}").To(s.undoDelete).
		Param(ws.PathParameter("token", "undo token returned by DELETE /tasks/{id}")).
		Writes(TaskDTO{}))
	return ws
}

func (s *Service) notificationsWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/notifications").Produces(restful.MIME_JSON)
	ws.Route(ws.GET("").To(s.listNotifications).Writes(NotificationsDTO{}))
	ws.Route(ws.PUT("/permission").To(s.setPermission).Consumes(restful.MIME_JSON).Reads(PermissionDTO{}))
	ws.Route(ws.DELETE("/{id:[0-9]+}").To(s.dismissNotification).
		Param(ws.PathParameter("id", "notification slot")))
	return ws
}

func writeError(resp *restful.Response, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, uc.ErrEmptyTitle), errors.Is(err, domain.ErrInvalidPriority):
		status = http.StatusBadRequest
	case errors.Is(err, uc.ErrNotFound), errors.Is(err, undo.ErrExpired):
		status = http.StatusNotFound
	default:
		log.Errorf("request failed: %v", err)
	}
	_ = resp.WriteHeaderAndEntity(status, errorDTO{Error: err.Error()})
}

func badRequest(resp *restful.Response, msg string) {
	_ = resp.WriteHeaderAndEntity(http.StatusBadRequest, errorDTO{Error: msg})
}

func pathID(req *restful.Request) (int64, error) {
	return strconv.ParseInt(req.PathParameter("id"), 10, 64)
}

func priorityParam(req *restful.Request) (*domain.Priority, error) {
	raw := req.QueryParameter("priority")
	if raw == "" {
		return nil, nil
	}
	p, err := domain.ParsePriority(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) listTasks(req *restful.Request, resp *restful.Response) {
	p, err := priorityParam(req)
	if err != nil {
		writeError(resp, err)
		return
	}
	order, err := tasklist.ParseOrder(req.QueryParameter("sort"))
	if err != nil {
		badRequest(resp, err.Error())
		return
	}
	ts, err := s.cmds.ListTasks(req.Request.Context(), uc.ListFilter{
		Priority: p,
		Query:    req.QueryParameter("q"),
		Order:    order,
	})
	if err != nil {
		writeError(resp, err)
		return
	}
	_ = resp.WriteEntity(toDTOs(ts))
}

func (s *Service) addTask(req *restful.Request, resp *restful.Response) {
	var in TaskDTO
	if err := req.ReadEntity(&in); err != nil {
		badRequest(resp, "invalid task body")
		return
	}
	t, err := s.cmds.AddTask(req.Request.Context(), in.Title, in.Priority, domain.FromMillis(in.DueDate))
	if err != nil {
		// The task is stored even when only the reminder could not be scheduled.
		if t.ID != 0 {
			log.WithField("task", t.ID).Warnf("task added without reminder: %v", err)
			_ = resp.WriteHeaderAndEntity(http.StatusCreated, toDTO(t))
			return
		}
		writeError(resp, err)
		return
	}
	_ = resp.WriteHeaderAndEntity(http.StatusCreated, toDTO(t))
}

func (s *Service) getTask(req *restful.Request, resp *restful.Response) {
	id, err := pathID(req)
	if err != nil {
		badRequest(resp, "invalid id")
		return
	}
	t, ok, err := s.cmds.GetTaskOnce(req.Request.Context(), id)
	if err != nil {
		writeError(resp, err)
		return
	}
	if !ok {
		writeError(resp, uc.ErrNotFound)
		return
	}
	_ = resp.WriteEntity(toDTO(t))
}

func (s *Service) updateTask(req *restful.Request, resp *restful.Response) {
	id, err := pathID(req)
	if err != nil {
		badRequest(resp, "invalid id")
		return
	}
	var in TaskDTO
	if err := req.ReadEntity(&in); err != nil {
		badRequest(resp, "invalid task body")
		return
	}
	in.ID = id
	found, err := s.cmds.UpdateTask(req.Request.Context(), in.task())
	if err != nil {
		writeError(resp, err)
		return
	}
	if !found {
		writeError(resp, uc.ErrNotFound)
		return
	}
	_ = resp.WriteEntity(in)
}

func (s *Service) deleteTask(req *restful.Request, resp *restful.Response) {
	id, err := pathID(req)
	if err != nil {
		badRequest(resp, "invalid id")
		return
	}
	d, err := s.cmds.DeleteTask(req.Request.Context(), id)
	if err != nil {
		writeError(resp, err)
		return
	}
	_ = resp.WriteEntity(DeletionDTO{
		Task:      toDTO(d.Task),
		UndoToken: d.UndoToken,
		ExpiresAt: d.Expires.UnixMilli(),
	})
}

func (s *Service) undoDelete(req *restful.Request, resp *restful.Response) {
	t, err := s.cmds.UndoDelete(req.Request.Context(), req.PathParameter("token"))
	if err != nil {
		writeError(resp, err)
		return
	}
	_ = resp.WriteEntity(toDTO(t))
}

// streamTasks writes one JSON array per line for every live snapshot until
// the client goes away.
func (s *Service) streamTasks(req *restful.Request, resp *restful.Response) {
	ctx := req.Request.Context()
	p, err := priorityParam(req)
	if err != nil {
		writeError(resp, err)
		return
	}

	var sub *store.Subscription
	if p != nil {
		if sub, err = s.cmds.SubscribeByPriority(ctx, *p); err != nil {
			writeError(resp, err)
			return
		}
	} else {
		sub = s.cmds.SubscribeAllTasks(ctx)
	}
	defer sub.Close()

	resp.Header().Set("Content-Type", "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)
	flusher, _ := resp.ResponseWriter.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	enc := json.NewEncoder(resp)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := enc.Encode(toDTOs(snap)); err != nil {
				log.Debugf("task stream closed: %v", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Service) listNotifications(req *restful.Request, resp *restful.Response) {
	items, err := s.inbox.List(req.Request.Context())
	if err != nil {
		writeError(resp, err)
		return
	}
	_ = resp.WriteEntity(NotificationsDTO{Items: items})
}

func (s *Service) dismissNotification(req *restful.Request, resp *restful.Response) {
	id, err := pathID(req)
	if err != nil {
		badRequest(resp, "invalid id")
		return
	}
	ok, err := s.inbox.Dismiss(req.Request.Context(), id)
	if err != nil {
		writeError(resp, err)
		return
	}
	if !ok {
		_ = resp.WriteHeaderAndEntity(http.StatusNotFound, errorDTO{Error: "notification not found"})
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

func (s *Service) setPermission(req *restful.Request, resp *restful.Response) {
	var in PermissionDTO
	if err := req.ReadEntity(&in); err != nil {
		badRequest(resp, "invalid permission body")
		return
	}
	if err := s.inbox.SetPermission(req.Request.Context(), in.Granted); err != nil {
		writeError(resp, err)
		return
	}
	_ = resp.WriteEntity(in)
}
